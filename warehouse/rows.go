package warehouse

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/withObsrvr/tally-postgres-ingester/tally"
)

// InvoiceHeader is one voucher of any type, keyed by the derived voucher
// key. Roundoff is carried for the tax identity but is always zero today.
type InvoiceHeader struct {
	VoucherKey  string
	VoucherType string
	Date        time.Time
	CustomerID  string
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
	Roundoff    decimal.Decimal
}

// InvoiceLine is an item-level breakdown row. LineTax and LineTotal are
// filled by AllocateLineTax before writing.
type InvoiceLine struct {
	ItemName  string
	Qty       decimal.Decimal
	UOM       string
	Rate      decimal.Decimal
	Discount  decimal.Decimal
	LineBasic decimal.Decimal
	LineTax   decimal.Decimal
	LineTotal decimal.Decimal
}

// Receipt mirrors a Receipt voucher into the cashflow table.
type Receipt struct {
	ReceiptKey string
	Date       time.Time
	CustomerID string
	Amount     decimal.Decimal
}

// Customer is the party dimension row; the ID is the party name as known
// to the source.
type Customer struct {
	ID          string
	Name        string
	GSTIN       string
	Pincode     string
	City        string
	LedgerGroup string
}

// BillRow is a raw bill-wise movement attached to a voucher; the
// receivables reconciler aggregates these against opening bills.
type BillRow struct {
	VoucherKey  string
	VoucherDate time.Time
	Ledger      string
	RefName     string
	Amount      decimal.Decimal
	BillType    string
	CreditDays  *int
}

// HeaderFromVoucher projects a parsed voucher into its header row.
func HeaderFromVoucher(v *tally.Voucher) InvoiceHeader {
	return InvoiceHeader{
		VoucherKey:  v.Key(),
		VoucherType: v.Type,
		Date:        v.Date,
		CustomerID:  v.Party,
		Subtotal:    v.Subtotal,
		Tax:         v.Tax,
		Total:       v.Total,
		Roundoff:    decimal.Zero,
	}
}

// CustomerFromVoucher builds the dimension row enriched from whatever
// party detail the voucher happened to carry.
func CustomerFromVoucher(v *tally.Voucher) Customer {
	return Customer{
		ID:      v.Party,
		Name:    v.Party,
		GSTIN:   v.PartyGSTIN,
		Pincode: v.PartyPincode,
		City:    v.PartyCity,
	}
}

// LinesFromVoucher converts inventory entries to line rows and allocates
// the voucher tax across them. Raw inventory amounts keep the source's
// sign, which for reversing documents is opposite to the normalized
// header; lines are flipped to agree with the header so their totals sum
// to the voucher total.
func LinesFromVoucher(v *tally.Voucher) []InvoiceLine {
	if len(v.Inventory) == 0 {
		return nil
	}
	lines := make([]InvoiceLine, 0, len(v.Inventory))
	var rawSum decimal.Decimal
	for _, inv := range v.Inventory {
		qty, uom := tally.ParseQuantity(inv.Quantity)
		lines = append(lines, InvoiceLine{
			ItemName:  inv.Item,
			Qty:       qty,
			UOM:       uom,
			Rate:      tally.ParseRate(inv.Rate),
			Discount:  inv.Discount,
			LineBasic: inv.Amount,
		})
		rawSum = rawSum.Add(inv.Amount)
	}
	if rawSum.Sign() != 0 && v.Subtotal.Sign() != 0 && rawSum.Sign() != v.Subtotal.Sign() {
		for i := range lines {
			lines[i].LineBasic = lines[i].LineBasic.Neg()
			lines[i].Qty = lines[i].Qty.Neg()
		}
	}
	AllocateLineTax(lines, v.Tax)
	return lines
}

// AllocateLineTax distributes the voucher tax across lines in proportion
// to line basic amounts, rounding each share to 2 places and absorbing
// the residual into the last line so the shares sum exactly to the tax.
func AllocateLineTax(lines []InvoiceLine, tax decimal.Decimal) {
	if len(lines) == 0 {
		return
	}
	var basicSum decimal.Decimal
	for _, l := range lines {
		basicSum = basicSum.Add(l.LineBasic)
	}
	var allocated decimal.Decimal
	for i := range lines {
		var share decimal.Decimal
		if i == len(lines)-1 {
			share = tax.Sub(allocated)
		} else if !basicSum.IsZero() {
			share = lines[i].LineBasic.Div(basicSum).Mul(tax).Round(2)
		}
		lines[i].LineTax = share
		lines[i].LineTotal = lines[i].LineBasic.Add(share)
		allocated = allocated.Add(share)
	}
}

// BillsFromVoucher projects the voucher's bill-wise allocations.
func BillsFromVoucher(v *tally.Voucher) []BillRow {
	key := v.Key()
	out := make([]BillRow, 0, len(v.Bills))
	for _, b := range v.Bills {
		if b.Name == "" {
			continue
		}
		out = append(out, BillRow{
			VoucherKey:  key,
			VoucherDate: v.Date,
			Ledger:      b.Ledger,
			RefName:     b.Name,
			Amount:      b.Amount,
			BillType:    b.BillType,
			CreditDays:  b.CreditDays,
		})
	}
	return out
}

// ReceiptFromVoucher projects Receipt vouchers; other types return false.
func ReceiptFromVoucher(v *tally.Voucher) (Receipt, bool) {
	if !strings.EqualFold(strings.TrimSpace(v.Type), "Receipt") {
		return Receipt{}, false
	}
	return Receipt{
		ReceiptKey: v.Key(),
		Date:       v.Date,
		CustomerID: v.Party,
		Amount:     v.Total,
	}, true
}
