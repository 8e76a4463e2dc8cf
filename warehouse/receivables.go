package warehouse

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Bill-wise receivables are rebuilt from scratch on every reconciliation:
// opening balances plus every bill movement the voucher loads produced.
// New Ref creates a bill, Agst Ref settles against it, Advance rides
// along in the signed balance, On Account is tracked but stays out of
// both the original amount and the pending algebra.
const billMovementsSQL = `
	SELECT ledger, ref_name, 'Opening' AS bill_type,
	       opening_balance, bill_date, credit_period_days
	FROM opening_bill
	UNION ALL
	SELECT ledger, ref_name, bill_type, amount, voucher_date, credit_days
	FROM voucher_bill_allocation`

// BillMovement is one signed amount against a bill reference: its opening
// balance or a voucher allocation.
type BillMovement struct {
	Ledger     string
	RefName    string
	BillType   string
	Amount     decimal.Decimal
	MovedOn    *time.Time
	CreditDays *int
}

// OpenBill is one reconciled bill with a non-zero balance.
type OpenBill struct {
	Ledger           string
	RefName          string
	BillDate         *time.Time
	DueDate          *time.Time
	OriginalAmount   decimal.Decimal
	AdjustedAmount   decimal.Decimal
	PendingAmount    decimal.Decimal
	LastAdjustedDate *time.Time
}

var pendingTolerance = decimal.NewFromFloat(0.01)

type billAccumulator struct {
	newRefTotal  decimal.Decimal
	agstTotal    decimal.Decimal
	openingTotal decimal.Decimal
	advanceTotal decimal.Decimal
	hasNewRef    bool

	newRefDate   *time.Time
	openingDate  *time.Time
	newRefDays   *int
	openingDays  *int
	lastAdjusted *time.Time
}

// ReconcileBills folds bill movements into open bills. A bill carrying a
// New Ref takes its identity (date, credit period, original amount,
// balance) from the voucher stream; its opening row is the prior-year
// residual of the same bill and is not double-counted. Opening-only bills
// keep the opening row as the bill itself. Bills whose balance nets to
// within a paisa are settled and dropped.
func ReconcileBills(movements []BillMovement) []OpenBill {
	type key struct{ ledger, ref string }
	acc := make(map[key]*billAccumulator)
	var order []key

	for _, mv := range movements {
		k := key{mv.Ledger, mv.RefName}
		a, ok := acc[k]
		if !ok {
			a = &billAccumulator{}
			acc[k] = a
			order = append(order, k)
		}
		switch mv.BillType {
		case "New Ref":
			a.hasNewRef = true
			a.newRefTotal = a.newRefTotal.Add(mv.Amount)
			if a.newRefDate == nil || (mv.MovedOn != nil && mv.MovedOn.Before(*a.newRefDate)) {
				a.newRefDate = mv.MovedOn
			}
			if mv.CreditDays != nil && (a.newRefDays == nil || *mv.CreditDays > *a.newRefDays) {
				a.newRefDays = mv.CreditDays
			}
		case "Agst Ref":
			a.agstTotal = a.agstTotal.Add(mv.Amount)
			if mv.MovedOn != nil && (a.lastAdjusted == nil || mv.MovedOn.After(*a.lastAdjusted)) {
				a.lastAdjusted = mv.MovedOn
			}
		case "Opening":
			a.openingTotal = a.openingTotal.Add(mv.Amount)
			if a.openingDate == nil {
				a.openingDate = mv.MovedOn
			}
			if mv.CreditDays != nil && (a.openingDays == nil || *mv.CreditDays > *a.openingDays) {
				a.openingDays = mv.CreditDays
			}
		case "Advance":
			a.advanceTotal = a.advanceTotal.Add(mv.Amount)
		}
		// On Account stays in the allocation table only.
	}

	var out []OpenBill
	for _, k := range order {
		a := acc[k]
		b := OpenBill{
			Ledger:           k.ledger,
			RefName:          k.ref,
			AdjustedAmount:   a.agstTotal.Abs(),
			LastAdjustedDate: a.lastAdjusted,
		}
		signed := a.newRefTotal.Add(a.advanceTotal).Add(a.agstTotal)
		if a.hasNewRef {
			b.BillDate = a.newRefDate
			b.OriginalAmount = a.newRefTotal.Abs()
			b.DueDate = dueDate(a.newRefDate, a.newRefDays)
		} else {
			signed = signed.Add(a.openingTotal)
			b.BillDate = a.openingDate
			b.OriginalAmount = a.openingTotal.Abs().Add(a.agstTotal.Abs())
			b.DueDate = dueDate(a.openingDate, a.openingDays)
		}
		if signed.Abs().LessThanOrEqual(pendingTolerance) {
			continue
		}
		b.PendingAmount = signed.Abs()
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ledger != out[j].Ledger {
			return out[i].Ledger < out[j].Ledger
		}
		return out[i].RefName < out[j].RefName
	})
	return out
}

func dueDate(billDate *time.Time, creditDays *int) *time.Time {
	if billDate == nil || creditDays == nil {
		return nil
	}
	d := billDate.AddDate(0, 0, *creditDays)
	return &d
}

// RecomputeReceivables rebuilds bill_receivable_fact from the current
// opening bills and bill allocations, and returns the number of open
// bills it now holds.
func (w *Writer) RecomputeReceivables(ctx context.Context) (int64, error) {
	rows, err := w.pool.Query(ctx, billMovementsSQL)
	if err != nil {
		return 0, fmt.Errorf("reading bill movements: %w", err)
	}
	defer rows.Close()

	var movements []BillMovement
	for rows.Next() {
		var mv BillMovement
		if err := rows.Scan(&mv.Ledger, &mv.RefName, &mv.BillType,
			&mv.Amount, &mv.MovedOn, &mv.CreditDays); err != nil {
			return 0, fmt.Errorf("scanning bill movement: %w", err)
		}
		movements = append(movements, mv)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("reading bill movements: %w", err)
	}

	open := ReconcileBills(movements)
	err = pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `TRUNCATE bill_receivable_fact`); err != nil {
			return err
		}
		for _, b := range open {
			if _, err := tx.Exec(ctx, `
				INSERT INTO bill_receivable_fact
					(ledger, ref_name, bill_date, due_date, original_amount, adjusted_amount, pending_amount, last_adjusted_date)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				b.Ledger, b.RefName, b.BillDate, b.DueDate,
				b.OriginalAmount, b.AdjustedAmount, b.PendingAmount, b.LastAdjustedDate); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recomputing receivables: %w", err)
	}
	w.log.Info("receivables recomputed", zap.Int("open_bills", len(open)))
	return int64(len(open)), nil
}

// ReceivableRow is one open bill with its aging bucket attached.
type ReceivableRow struct {
	Ledger           string
	RefName          string
	BillDate         *time.Time
	DueDate          *time.Time
	OriginalAmount   decimal.Decimal
	AdjustedAmount   decimal.Decimal
	PendingAmount    decimal.Decimal
	LastAdjustedDate *time.Time
	AgingBucket      string
}

// Receivables lists every open bill, oldest due date first, with aging
// computed against asOf.
func (w *Writer) Receivables(ctx context.Context, asOf time.Time) ([]ReceivableRow, error) {
	rows, err := w.pool.Query(ctx, `
		SELECT ledger, ref_name, bill_date, due_date,
		       original_amount, adjusted_amount, pending_amount, last_adjusted_date
		FROM bill_receivable_fact
		ORDER BY due_date NULLS LAST, ledger, ref_name`)
	if err != nil {
		return nil, fmt.Errorf("listing receivables: %w", err)
	}
	defer rows.Close()

	var out []ReceivableRow
	for rows.Next() {
		var r ReceivableRow
		if err := rows.Scan(&r.Ledger, &r.RefName, &r.BillDate, &r.DueDate,
			&r.OriginalAmount, &r.AdjustedAmount, &r.PendingAmount, &r.LastAdjustedDate); err != nil {
			return nil, fmt.Errorf("scanning receivable: %w", err)
		}
		r.AgingBucket = AgingBucket(r.DueDate, asOf)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AgingBucket classifies a bill by how far past due it is on asOf.
func AgingBucket(dueDate *time.Time, asOf time.Time) string {
	if dueDate == nil {
		return "No Due Date"
	}
	due := dueDate.Truncate(24 * time.Hour)
	today := asOf.Truncate(24 * time.Hour)
	overdue := int(today.Sub(due).Hours() / 24)
	switch {
	case overdue <= 0:
		return "Not Due"
	case overdue <= 30:
		return "0-30 Days"
	case overdue <= 60:
		return "31-60 Days"
	case overdue <= 90:
		return "61-90 Days"
	default:
		return "90+ Days"
	}
}
