package warehouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func datep(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func intp(n int) *int { return &n }

func TestReconcileBillsOpeningOnly(t *testing.T) {
	open := ReconcileBills([]BillMovement{
		{Ledger: "Acme", RefName: "OP-1", BillType: "Opening",
			Amount: dec("-50000"), MovedOn: datep("2024-03-31"), CreditDays: intp(30)},
		{Ledger: "Acme", RefName: "OP-1", BillType: "Agst Ref",
			Amount: dec("20000"), MovedOn: datep("2024-04-20")},
	})
	require.Len(t, open, 1)
	b := open[0]
	require.True(t, b.OriginalAmount.Equal(dec("70000")), "original %s", b.OriginalAmount)
	require.True(t, b.AdjustedAmount.Equal(dec("20000")))
	require.True(t, b.PendingAmount.Equal(dec("30000")), "pending %s", b.PendingAmount)
	require.Equal(t, "2024-03-31", b.BillDate.Format("2006-01-02"))
	require.Equal(t, "2024-04-30", b.DueDate.Format("2006-01-02"))
	require.Equal(t, "2024-04-20", b.LastAdjustedDate.Format("2006-01-02"))
}

func TestReconcileBillsNewRefOnly(t *testing.T) {
	open := ReconcileBills([]BillMovement{
		{Ledger: "Acme", RefName: "INV-1", BillType: "New Ref",
			Amount: dec("-118000"), MovedOn: datep("2024-04-01"), CreditDays: intp(30)},
		{Ledger: "Acme", RefName: "INV-1", BillType: "Agst Ref",
			Amount: dec("118000"), MovedOn: datep("2024-04-25")},
		{Ledger: "Acme", RefName: "INV-2", BillType: "New Ref",
			Amount: dec("-59000"), MovedOn: datep("2024-04-10"), CreditDays: intp(45)},
	})
	// INV-1 nets to zero and is settled; only INV-2 is open.
	require.Len(t, open, 1)
	b := open[0]
	require.Equal(t, "INV-2", b.RefName)
	require.True(t, b.OriginalAmount.Equal(dec("59000")))
	require.True(t, b.AdjustedAmount.IsZero())
	require.True(t, b.PendingAmount.Equal(dec("59000")))
	require.Equal(t, "2024-05-25", b.DueDate.Format("2006-01-02"))
}

// A bill with both an opening residual and a New Ref is the same bill
// seen twice: the voucher stream defines it, and the opening row must not
// inflate the balance. original - adjusted = pending.
func TestReconcileBillsOpeningPlusNewRef(t *testing.T) {
	open := ReconcileBills([]BillMovement{
		{Ledger: "Acme", RefName: "INV-7", BillType: "Opening",
			Amount: dec("-50000"), MovedOn: datep("2024-03-31"), CreditDays: intp(15)},
		{Ledger: "Acme", RefName: "INV-7", BillType: "New Ref",
			Amount: dec("-100000"), MovedOn: datep("2024-04-05"), CreditDays: intp(30)},
		{Ledger: "Acme", RefName: "INV-7", BillType: "Agst Ref",
			Amount: dec("70000"), MovedOn: datep("2024-05-01")},
	})
	require.Len(t, open, 1)
	b := open[0]
	require.True(t, b.OriginalAmount.Equal(dec("100000")), "original %s", b.OriginalAmount)
	require.True(t, b.AdjustedAmount.Equal(dec("70000")))
	require.True(t, b.PendingAmount.Equal(dec("30000")), "pending %s", b.PendingAmount)
	require.True(t, b.PendingAmount.Equal(b.OriginalAmount.Sub(b.AdjustedAmount)))
	// Identity comes from the New Ref, not the opening row.
	require.Equal(t, "2024-04-05", b.BillDate.Format("2006-01-02"))
	require.Equal(t, "2024-05-05", b.DueDate.Format("2006-01-02"))
}

func TestReconcileBillsOnAccountExcluded(t *testing.T) {
	open := ReconcileBills([]BillMovement{
		{Ledger: "Acme", RefName: "INV-9", BillType: "New Ref",
			Amount: dec("-10000"), MovedOn: datep("2024-04-01")},
		{Ledger: "Acme", RefName: "INV-9", BillType: "On Account",
			Amount: dec("5000"), MovedOn: datep("2024-04-15")},
	})
	require.Len(t, open, 1)
	require.True(t, open[0].PendingAmount.Equal(dec("10000")),
		"pending %s", open[0].PendingAmount)
	require.True(t, open[0].AdjustedAmount.IsZero())
}

func TestReconcileBillsAdvanceRidesBalance(t *testing.T) {
	open := ReconcileBills([]BillMovement{
		{Ledger: "Acme", RefName: "ADV-1", BillType: "New Ref",
			Amount: dec("-20000"), MovedOn: datep("2024-04-01")},
		{Ledger: "Acme", RefName: "ADV-1", BillType: "Advance",
			Amount: dec("5000"), MovedOn: datep("2024-04-02")},
	})
	require.Len(t, open, 1)
	require.True(t, open[0].PendingAmount.Equal(dec("15000")))
}

func TestReconcileBillsDropsSettledWithinTolerance(t *testing.T) {
	open := ReconcileBills([]BillMovement{
		{Ledger: "Acme", RefName: "INV-3", BillType: "New Ref", Amount: dec("-1000.00")},
		{Ledger: "Acme", RefName: "INV-3", BillType: "Agst Ref", Amount: dec("999.99")},
	})
	require.Empty(t, open)
}

func TestReconcileBillsNoDueDateWithoutCreditPeriod(t *testing.T) {
	open := ReconcileBills([]BillMovement{
		{Ledger: "Acme", RefName: "INV-4", BillType: "New Ref",
			Amount: dec("-500"), MovedOn: datep("2024-04-01")},
	})
	require.Len(t, open, 1)
	require.Nil(t, open[0].DueDate)
	require.Equal(t, "No Due Date", AgingBucket(open[0].DueDate, time.Now()))
}

func TestReconcileBillsSortedByLedgerAndRef(t *testing.T) {
	open := ReconcileBills([]BillMovement{
		{Ledger: "Zeta", RefName: "B", BillType: "New Ref", Amount: dec("-1")},
		{Ledger: "Acme", RefName: "B", BillType: "New Ref", Amount: dec("-1")},
		{Ledger: "Acme", RefName: "A", BillType: "New Ref", Amount: dec("-1")},
	})
	require.Len(t, open, 3)
	require.Equal(t, "Acme", open[0].Ledger)
	require.Equal(t, "A", open[0].RefName)
	require.Equal(t, "Zeta", open[2].Ledger)
}
