package tally

import (
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// ParseMasters reads every master kind present in a Tally export. Any of
// the result slices may be empty; a ledgers-only export still yields
// ledger groups, inferred from the parent names.
func ParseMasters(doc string) (Masters, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromString(SanitizeXML(doc)); err != nil {
		return Masters{}, &ParseError{What: "masters export", Err: err}
	}

	now := time.Now().UTC()
	m := Masters{}

	for _, el := range tree.FindElements("//GROUP") {
		name := masterName(el)
		if name == "" {
			continue
		}
		m.LedgerGroups = append(m.LedgerGroups, LedgerGroup{
			Name:    name,
			GUID:    childText(el, "GUID"),
			Parent:  childText(el, "PARENT"),
			AlterID: parseAlterID(childText(el, "ALTERID")),
		})
	}

	for _, el := range tree.FindElements("//LEDGER") {
		name := masterName(el)
		if name == "" {
			continue
		}
		m.Ledgers = append(m.Ledgers, Ledger{
			Name:    name,
			GUID:    childText(el, "GUID"),
			Parent:  childText(el, "PARENT"),
			AlterID: parseAlterID(childText(el, "ALTERID")),
		})
		m.OpeningBills = append(m.OpeningBills, parseOpeningBills(el, name, now)...)
	}

	if len(m.LedgerGroups) == 0 && len(m.Ledgers) > 0 {
		m.LedgerGroups = groupsFromLedgers(m.Ledgers)
	}

	for _, el := range tree.FindElements("//STOCKGROUP") {
		name := masterName(el)
		if name == "" {
			continue
		}
		m.StockGroups = append(m.StockGroups, StockGroup{
			Name:    name,
			GUID:    childText(el, "GUID"),
			Parent:  childText(el, "PARENT"),
			AlterID: parseAlterID(childText(el, "ALTERID")),
		})
	}

	for _, el := range tree.FindElements("//STOCKITEM") {
		name := masterName(el)
		if name == "" {
			continue
		}
		m.StockItems = append(m.StockItems, StockItem{
			Name:      name,
			GUID:      childText(el, "GUID"),
			Parent:    childText(el, "PARENT"),
			BaseUnits: childText(el, "BASEUNITS"),
			HSN:       itemHSN(el),
		})
	}

	for _, el := range tree.FindElements("//UNIT") {
		name := masterName(el)
		if name == "" {
			continue
		}
		m.Units = append(m.Units, Unit{
			Name:         name,
			GUID:         childText(el, "GUID"),
			OriginalName: childText(el, "ORIGINALNAME"),
			GSTRepUOM:    childText(el, "GSTREPUOM"),
			IsSimple:     strings.EqualFold(childText(el, "ISSIMPLEUNIT"), "Yes"),
			AlterID:      parseAlterID(childText(el, "ALTERID")),
		})
	}

	return m, nil
}

func parseOpeningBills(ledger *etree.Element, ledgerName string, now time.Time) []OpeningBill {
	var out []OpeningBill
	for _, bill := range ledger.FindElements("BILLALLOCATIONS.LIST") {
		name := childText(bill, "NAME")
		if name == "" {
			continue
		}
		b := OpeningBill{
			Ledger:    ledgerName,
			Name:      name,
			Opening:   ParseAmount(childText(bill, "OPENINGBALANCE")),
			IsAdvance: strings.EqualFold(childText(bill, "ISADVANCE"), "Yes"),
		}
		if s := childText(bill, "BILLDATE"); s != "" {
			if d, ok := ParseDate(s, now); ok {
				b.BillDate = &d
			}
		}
		if days, ok := parseCreditDays(childText(bill, "BILLCREDITPERIOD")); ok {
			b.CreditDays = &days
		}
		out = append(out, b)
	}
	return out
}

// groupsFromLedgers reconstructs the group set when the export carries no
// GROUP elements: every distinct parent name becomes a group, and a group
// that also appears as a ledger inherits that ledger's parent.
func groupsFromLedgers(ledgers []Ledger) []LedgerGroup {
	parentOf := make(map[string]string, len(ledgers))
	for _, l := range ledgers {
		parentOf[l.Name] = l.Parent
	}
	seen := make(map[string]bool)
	var out []LedgerGroup
	for _, l := range ledgers {
		if l.Parent == "" || seen[l.Parent] {
			continue
		}
		seen[l.Parent] = true
		out = append(out, LedgerGroup{
			Name:   l.Parent,
			Parent: parentOf[l.Parent],
		})
	}
	return out
}

// itemHSN prefers the HSN code under HSNDETAILS.LIST; the list carries
// one entry per applicability date, latest last, so the last non-empty
// code is the one in force. Older companies put it directly on the item.
func itemHSN(el *etree.Element) string {
	code := ""
	for _, d := range el.FindElements(".//HSNDETAILS.LIST") {
		if c := childText(d, "HSNCODE"); c != "" {
			code = c
		}
	}
	if code != "" {
		return code
	}
	return childText(el, "HSNCODE")
}

// masterName prefers the NAME attribute, then the NAME child element.
func masterName(el *etree.Element) string {
	return attrOrChild(el, "NAME")
}

// parseAlterID tolerates the space-grouped digits Tally sometimes emits
// (" 1 234"); anything else unparsable is treated as absent.
func parseAlterID(s string) *int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
