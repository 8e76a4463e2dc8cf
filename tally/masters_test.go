package tally

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const mastersXML = `<ENVELOPE><BODY><DATA><TALLYMESSAGE>
<GROUP NAME="Sundry Debtors">
  <GUID>grp-1</GUID>
  <PARENT>Current Assets</PARENT>
  <ALTERID> 1 023</ALTERID>
</GROUP>
<LEDGER NAME="Acme Industries">
  <GUID>led-1</GUID>
  <PARENT>Sundry Debtors</PARENT>
  <ALTERID>2048</ALTERID>
  <BILLALLOCATIONS.LIST>
    <NAME>OP-77</NAME>
    <BILLDATE>20240315</BILLDATE>
    <OPENINGBALANCE>-25,000.00</OPENINGBALANCE>
    <BILLCREDITPERIOD>45 Days</BILLCREDITPERIOD>
  </BILLALLOCATIONS.LIST>
</LEDGER>
<STOCKGROUP NAME="Widgets">
  <GUID>sg-1</GUID>
</STOCKGROUP>
<STOCKITEM NAME="Widget A">
  <GUID>itm-1</GUID>
  <PARENT>Widgets</PARENT>
  <BASEUNITS>Nos</BASEUNITS>
  <HSNDETAILS.LIST><HSNCODE>8479</HSNCODE></HSNDETAILS.LIST>
</STOCKITEM>
<UNIT NAME="Nos">
  <GUID>unit-1</GUID>
  <ORIGINALNAME>Numbers</ORIGINALNAME>
  <GSTREPUOM>PCS-PIECES</GSTREPUOM>
  <ISSIMPLEUNIT>Yes</ISSIMPLEUNIT>
</UNIT>
</TALLYMESSAGE></DATA></BODY></ENVELOPE>`

func TestParseMasters(t *testing.T) {
	m, err := ParseMasters(mastersXML)
	require.NoError(t, err)

	require.Len(t, m.LedgerGroups, 1)
	g := m.LedgerGroups[0]
	require.Equal(t, "Sundry Debtors", g.Name)
	require.Equal(t, "Current Assets", g.Parent)
	require.NotNil(t, g.AlterID)
	require.Equal(t, int64(1023), *g.AlterID)

	require.Len(t, m.Ledgers, 1)
	l := m.Ledgers[0]
	require.Equal(t, "Acme Industries", l.Name)
	require.Equal(t, "Sundry Debtors", l.Parent)

	require.Len(t, m.OpeningBills, 1)
	b := m.OpeningBills[0]
	require.Equal(t, "Acme Industries", b.Ledger)
	require.Equal(t, "OP-77", b.Name)
	require.True(t, b.Opening.Equal(decimal.NewFromInt(-25000)))
	require.NotNil(t, b.BillDate)
	require.Equal(t, "2024-03-15", b.BillDate.Format("2006-01-02"))
	require.NotNil(t, b.CreditDays)
	require.Equal(t, 45, *b.CreditDays)

	require.Len(t, m.StockGroups, 1)
	require.Len(t, m.StockItems, 1)
	require.Equal(t, "8479", m.StockItems[0].HSN)
	require.Equal(t, "Nos", m.StockItems[0].BaseUnits)

	require.Len(t, m.Units, 1)
	u := m.Units[0]
	require.Equal(t, "Numbers", u.OriginalName)
	require.True(t, u.IsSimple)
}

func TestGroupsInferredFromLedgerParents(t *testing.T) {
	doc := `<X>
		<LEDGER NAME="Acme"><PARENT>Sundry Debtors</PARENT></LEDGER>
		<LEDGER NAME="Bharat Traders"><PARENT>Sundry Debtors</PARENT></LEDGER>
		<LEDGER NAME="Sundry Debtors"><PARENT>Current Assets</PARENT></LEDGER>
	</X>`
	m, err := ParseMasters(doc)
	require.NoError(t, err)

	require.Len(t, m.LedgerGroups, 2)
	byName := map[string]LedgerGroup{}
	for _, g := range m.LedgerGroups {
		byName[g.Name] = g
	}
	require.Equal(t, "Current Assets", byName["Sundry Debtors"].Parent)
	require.Contains(t, byName, "Current Assets")
}

func TestParseMastersSkipsNameless(t *testing.T) {
	doc := `<X><LEDGER><GUID>x</GUID></LEDGER><UNIT NAME="Nos"/></X>`
	m, err := ParseMasters(doc)
	require.NoError(t, err)
	require.Empty(t, m.Ledgers)
	require.Len(t, m.Units, 1)
}

func TestItemHSNTakesLatestDetail(t *testing.T) {
	doc := `<X><STOCKITEM NAME="Widget A">
		<HSNCODE>0000</HSNCODE>
		<HSNDETAILS.LIST><APPLICABLEFROM>20200401</APPLICABLEFROM><HSNCODE>8471</HSNCODE></HSNDETAILS.LIST>
		<HSNDETAILS.LIST><APPLICABLEFROM>20230401</APPLICABLEFROM><HSNCODE>8479</HSNCODE></HSNDETAILS.LIST>
	</STOCKITEM></X>`
	m, err := ParseMasters(doc)
	require.NoError(t, err)
	require.Len(t, m.StockItems, 1)
	require.Equal(t, "8479", m.StockItems[0].HSN)
}

func TestParseAlterID(t *testing.T) {
	require.Nil(t, parseAlterID(""))
	require.Nil(t, parseAlterID("abc"))
	id := parseAlterID(" 2 048 ")
	require.NotNil(t, id)
	require.Equal(t, int64(2048), *id)
}
