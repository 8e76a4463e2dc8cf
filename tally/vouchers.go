package tally

import (
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Voucher types that export their legs under LEDGERENTRIES.LIST (the
// invoice family). Everything else uses ALLLEDGERENTRIES.LIST.
var invoiceFamily = map[string]bool{
	"invoice":         true,
	"sales":           true,
	"credit note":     true,
	"sales return":    true,
	"purchase":        true,
	"purchase return": true,
	"debit note":      true,
}

// Members of the invoice family whose warehouse sign convention is
// negative (they reverse revenue or purchases).
var negativeFamily = map[string]bool{
	"credit note":     true,
	"sales return":    true,
	"purchase return": true,
	"debit note":      true,
}

// Voucher types outside the invoice family that are always stored as
// positive magnitudes.
var positiveFamily = map[string]bool{
	"receipt": true,
	"payment": true,
}

func isInvoiceType(t string) bool  { return invoiceFamily[strings.ToLower(strings.TrimSpace(t))] }
func isNegativeType(t string) bool { return negativeFamily[strings.ToLower(strings.TrimSpace(t))] }
func isPositiveType(t string) bool { return positiveFamily[strings.ToLower(strings.TrimSpace(t))] }

// ParseVouchers extracts every voucher from a sanitized Voucher Register
// export, in document order, deduplicated by derived key. A voucher that
// cannot be interpreted is logged and skipped; only an unreadable
// document is an error.
func ParseVouchers(doc string, log *zap.Logger) ([]Voucher, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromString(SanitizeXML(doc)); err != nil {
		return nil, &ParseError{What: "voucher register", Err: err}
	}

	now := time.Now().UTC()
	seen := make(map[string]bool)
	var out []Voucher
	for _, el := range tree.FindElements("//VOUCHER") {
		v, ok := parseVoucher(el, now, log)
		if !ok {
			continue
		}
		key := v.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out, nil
}

func parseVoucher(el *etree.Element, now time.Time, log *zap.Logger) (Voucher, bool) {
	v := Voucher{
		Type:      firstNonEmpty(attrOrChild(el, "VCHTYPE"), childText(el, "VOUCHERTYPENAME")),
		Number:    firstNonEmpty(attrOrChild(el, "VCHNUMBER"), childText(el, "VOUCHERNUMBER")),
		GUID:      attrOrChild(el, "GUID"),
		Narration: childText(el, "NARRATION"),
		Reference: childText(el, "REFERENCE"),
	}
	if v.Type == "" {
		log.Warn("voucher without a type, skipping",
			zap.String("number", v.Number),
			zap.String("guid", v.GUID))
		return Voucher{}, false
	}
	// Remote-synced companies leave GUID blank and carry REMOTEID instead.
	if v.GUID == "" {
		v.GUID = attrOrChild(el, "REMOTEID")
	}

	date, parsed := ParseDate(attrOrChild(el, "DATE"), now)
	if !parsed {
		log.Warn("voucher date missing or unreadable, using today",
			zap.String("type", v.Type),
			zap.String("number", v.Number))
	}
	v.Date = date

	v.Party = childText(el, "PARTYLEDGERNAME")
	if v.Party == "" {
		v.Party = childText(el, "PARTYNAME")
	}
	v.PartyGSTIN = firstNonEmpty(childText(el, "PARTYGSTIN"), childText(el, "BASICBUYERPARTYGSTIN"))
	v.PartyPincode = firstNonEmpty(childText(el, "PARTYPINCODE"), childText(el, "BASICBUYERPINCODE"))
	v.PartyCity = firstNonEmpty(childText(el, "PARTYCITY"), childText(el, "BASICBUYERSTATE"))

	for _, inv := range el.FindElements("ALLINVENTORYENTRIES.LIST") {
		v.Inventory = append(v.Inventory, InventoryEntry{
			Item:     childText(inv, "STOCKITEMNAME"),
			Quantity: firstNonEmpty(childText(inv, "BILLEDQTY"), childText(inv, "ACTUALQTY")),
			Rate:     childText(inv, "RATE"),
			Amount:   ParseAmount(childText(inv, "AMOUNT")),
			Discount: ParseAmount(childText(inv, "DISCOUNT")),
		})
	}

	ledgerTag := "ALLLEDGERENTRIES.LIST"
	if isInvoiceType(v.Type) {
		ledgerTag = "LEDGERENTRIES.LIST"
	}
	for _, entry := range el.FindElements(ledgerTag) {
		le := LedgerEntry{
			Name:    childText(entry, "LEDGERNAME"),
			Amount:  ParseAmount(childText(entry, "AMOUNT")),
			IsParty: strings.EqualFold(childText(entry, "ISPARTYLEDGER"), "Yes"),
		}
		v.Ledger = append(v.Ledger, le)

		billLedger := le.Name
		if billLedger == "" {
			billLedger = v.Party
		}
		for _, bill := range entry.FindElements("BILLALLOCATIONS.LIST") {
			b := BillAllocation{
				Ledger:   billLedger,
				Name:     childText(bill, "NAME"),
				Amount:   ParseAmount(childText(bill, "AMOUNT")),
				BillType: childText(bill, "BILLTYPE"),
			}
			if days, ok := parseCreditDays(childText(bill, "BILLCREDITPERIOD")); ok {
				b.CreditDays = &days
			}
			v.Bills = append(v.Bills, b)
		}
	}

	resolveAmounts(&v, el, log)
	return v, true
}

// resolveAmounts picks subtotal and total from the best evidence the
// voucher offers, then applies the sign convention for its type.
func resolveAmounts(v *Voucher, el *etree.Element, log *zap.Logger) {
	var amtInventory decimal.Decimal
	for _, inv := range v.Inventory {
		amtInventory = amtInventory.Add(inv.Amount)
	}

	amtLedger, haveLedger := partyLedgerAmount(v)

	var amtBill decimal.Decimal
	haveBill := false
	if len(v.Bills) > 0 {
		amtBill = v.Bills[0].Amount
		haveBill = true
	}

	var subtotal, total decimal.Decimal
	switch {
	case len(v.Inventory) > 0 && haveLedger:
		subtotal, total = amtInventory, amtLedger.Abs()
		v.Source = AmountInventoryLedger
	case haveLedger:
		subtotal, total = amtLedger.Abs(), amtLedger.Abs()
		v.Source = AmountLedger
	case len(v.Inventory) > 0 && haveBill:
		subtotal, total = amtInventory, amtBill
		v.Source = AmountBillAllocation
	case len(v.Inventory) > 0:
		subtotal, total = amtInventory, amtInventory
		v.Source = AmountInventoryOnly
	case haveBill:
		subtotal, total = amtBill, amtBill
		v.Source = AmountBillAllocation
	default:
		header := ParseAmount(childText(el, "AMOUNT"))
		subtotal, total = header, header
		v.Source = AmountHeader
		log.Warn("no ledger, inventory, or bill amount on voucher; using header amount",
			zap.String("type", v.Type),
			zap.String("number", v.Number),
			zap.String("party", v.Party),
			zap.String("amount", header.String()))
	}

	v.Subtotal, v.Total, v.Tax = normalizeAmounts(v.Type, subtotal, total)
}

// partyLedgerAmount finds the ledger leg belonging to the voucher party.
// Tally truncates some ledger references, so an exact case-insensitive
// match falls back to a 15-character prefix match.
func partyLedgerAmount(v *Voucher) (decimal.Decimal, bool) {
	if v.Party == "" {
		return decimal.Zero, false
	}
	party := strings.ToLower(strings.TrimSpace(v.Party))
	for _, le := range v.Ledger {
		if strings.ToLower(strings.TrimSpace(le.Name)) == party {
			return le.Amount, true
		}
	}
	prefix := party
	if len(prefix) > 15 {
		prefix = prefix[:15]
	}
	for _, le := range v.Ledger {
		name := strings.ToLower(strings.TrimSpace(le.Name))
		if name != "" && strings.HasPrefix(name, prefix) {
			return le.Amount, true
		}
	}
	for _, le := range v.Ledger {
		if le.IsParty {
			return le.Amount, true
		}
	}
	return decimal.Zero, false
}

// normalizeAmounts applies the warehouse sign convention: reversing
// documents are stored negative, receipts and payments positive, and tax
// is only meaningful for the invoice family.
func normalizeAmounts(vchType string, subtotal, total decimal.Decimal) (sub, tot, tax decimal.Decimal) {
	switch {
	case isNegativeType(vchType):
		if subtotal.IsPositive() {
			subtotal = subtotal.Neg()
		}
		if total.IsPositive() {
			total = total.Neg()
		}
		return subtotal, total, total.Sub(subtotal)
	case isInvoiceType(vchType):
		subtotal, total = subtotal.Abs(), total.Abs()
		return subtotal, total, total.Sub(subtotal)
	case isPositiveType(vchType):
		total = total.Abs()
		return total, total, decimal.Zero
	default:
		return total, total, decimal.Zero
	}
}

func parseCreditDays(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	// Values look like "30 Days" or just "30".
	qty, _ := ParseQuantity(s)
	if qty.IsZero() && !strings.HasPrefix(s, "0") {
		return 0, false
	}
	return int(qty.IntPart()), true
}

func attrOrChild(el *etree.Element, name string) string {
	if a := el.SelectAttrValue(name, ""); strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return childText(el, name)
}

func childText(el *etree.Element, name string) string {
	child := el.FindElement(name)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
