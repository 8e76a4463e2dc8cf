package tally

import (
	"fmt"
	"strings"
	"time"
)

// Report names understood by the Tally export engine. Voucher Register is
// the one report that honors SVFROMDATE/SVTODATE; DayBook silently ignores
// them and always returns the current date.
const (
	ReportVoucherRegister = "Voucher Register"
	ReportAccounts        = "List of Accounts"
	ReportStockItems      = "List of Stock Items"
	ReportUnits           = "List of Units"
	ReportAllMasters      = "All Masters"
)

type envelope struct {
	report   string
	company  string
	from, to *time.Time
	explode  bool
}

func (e envelope) render() string {
	var b strings.Builder
	b.WriteString("<ENVELOPE>")
	b.WriteString("<HEADER>")
	b.WriteString("<VERSION>1</VERSION>")
	b.WriteString("<TALLYREQUEST>Export</TALLYREQUEST>")
	b.WriteString("<TYPE>Data</TYPE>")
	fmt.Fprintf(&b, "<ID>%s</ID>", xmlEscape(e.report))
	b.WriteString("</HEADER>")
	b.WriteString("<BODY><DESC><STATICVARIABLES>")
	// $$ is Tally's formula prefix; a single $ is taken literally and
	// the export format falls back to the default.
	b.WriteString("<SVEXPORTFORMAT>$$SysName:XML</SVEXPORTFORMAT>")
	if e.company != "" {
		fmt.Fprintf(&b, "<SVCURRENTCOMPANY>%s</SVCURRENTCOMPANY>", xmlEscape(e.company))
	}
	if e.from != nil {
		fmt.Fprintf(&b, "<SVFROMDATE>%s</SVFROMDATE>", TallyDate(*e.from))
	}
	if e.to != nil {
		fmt.Fprintf(&b, "<SVTODATE>%s</SVTODATE>", TallyDate(*e.to))
	}
	if e.explode {
		b.WriteString("<EXPLODEFLAG>Yes</EXPLODEFLAG>")
	}
	b.WriteString("</STATICVARIABLES></DESC></BODY>")
	b.WriteString("</ENVELOPE>")
	return b.String()
}

// VoucherEnvelope builds the date-windowed Voucher Register request.
func VoucherEnvelope(company string, from, to time.Time) string {
	return envelope{
		report:  ReportVoucherRegister,
		company: company,
		from:    &from,
		to:      &to,
		explode: true,
	}.render()
}

// MasterKind selects which master export to request.
type MasterKind int

const (
	MastersAccounts MasterKind = iota
	MastersStockItems
	MastersUnits
	MastersAll
)

func (k MasterKind) report() string {
	switch k {
	case MastersAccounts:
		return ReportAccounts
	case MastersStockItems:
		return ReportStockItems
	case MastersUnits:
		return ReportUnits
	default:
		return ReportAllMasters
	}
}

// MasterEnvelope builds a masters export request.
func MasterEnvelope(company string, kind MasterKind) string {
	return envelope{
		report:  kind.report(),
		company: company,
		explode: kind == MastersAccounts,
	}.render()
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string { return xmlEscaper.Replace(s) }
