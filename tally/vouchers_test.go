package tally

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const salesInvoiceXML = `<ENVELOPE><BODY><DATA><TALLYMESSAGE>
<VOUCHER VCHTYPE="Sales">
  <DATE>20240415</DATE>
  <GUID>abc-123-def</GUID>
  <VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
  <VOUCHERNUMBER>INV-001</VOUCHERNUMBER>
  <PARTYLEDGERNAME>Acme Industries</PARTYLEDGERNAME>
  <NARRATION>April order</NARRATION>
  <ALLINVENTORYENTRIES.LIST>
    <STOCKITEMNAME>Widget A</STOCKITEMNAME>
    <BILLEDQTY>2 Nos</BILLEDQTY>
    <RATE>30,000.00/Nos</RATE>
    <AMOUNT>60,000.00</AMOUNT>
  </ALLINVENTORYENTRIES.LIST>
  <ALLINVENTORYENTRIES.LIST>
    <STOCKITEMNAME>Widget B</STOCKITEMNAME>
    <BILLEDQTY>1 Nos</BILLEDQTY>
    <RATE>40,000.00/Nos</RATE>
    <AMOUNT>40,000.00</AMOUNT>
  </ALLINVENTORYENTRIES.LIST>
  <LEDGERENTRIES.LIST>
    <LEDGERNAME>Acme Industries</LEDGERNAME>
    <ISPARTYLEDGER>Yes</ISPARTYLEDGER>
    <AMOUNT>-1,18,000.00</AMOUNT>
    <BILLALLOCATIONS.LIST>
      <NAME>INV-001</NAME>
      <BILLTYPE>New Ref</BILLTYPE>
      <BILLCREDITPERIOD>30 Days</BILLCREDITPERIOD>
      <AMOUNT>-1,18,000.00</AMOUNT>
    </BILLALLOCATIONS.LIST>
  </LEDGERENTRIES.LIST>
  <LEDGERENTRIES.LIST>
    <LEDGERNAME>Output GST</LEDGERNAME>
    <AMOUNT>18,000.00</AMOUNT>
  </LEDGERENTRIES.LIST>
</VOUCHER>
</TALLYMESSAGE></DATA></BODY></ENVELOPE>`

func TestParseSalesInvoice(t *testing.T) {
	vs, err := ParseVouchers(salesInvoiceXML, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, vs, 1)

	v := vs[0]
	require.Equal(t, "Sales", v.Type)
	require.Equal(t, "INV-001", v.Number)
	require.Equal(t, "abc-123-def", v.GUID)
	require.Equal(t, "abc-123-def", v.Key())
	require.Equal(t, "Acme Industries", v.Party)
	require.Equal(t, "2024-04-15", v.Date.Format("2006-01-02"))

	require.True(t, v.Subtotal.Equal(decimal.NewFromInt(100000)), "subtotal=%s", v.Subtotal)
	require.True(t, v.Total.Equal(decimal.NewFromInt(118000)), "total=%s", v.Total)
	require.True(t, v.Tax.Equal(decimal.NewFromInt(18000)), "tax=%s", v.Tax)
	require.Equal(t, AmountInventoryLedger, v.Source)

	require.Len(t, v.Inventory, 2)
	require.Equal(t, "2 Nos", v.Inventory[0].Quantity)

	require.Len(t, v.Bills, 1)
	b := v.Bills[0]
	require.Equal(t, "Acme Industries", b.Ledger)
	require.Equal(t, "New Ref", b.BillType)
	require.NotNil(t, b.CreditDays)
	require.Equal(t, 30, *b.CreditDays)
	require.True(t, b.Amount.Equal(decimal.NewFromInt(-118000)))
}

func TestParseCreditNoteSignConvention(t *testing.T) {
	doc := `<ENVELOPE><BODY><DATA>
<VOUCHER>
  <DATE>20240501</DATE>
  <GUID>cn-1</GUID>
  <VOUCHERTYPENAME>Credit Note</VOUCHERTYPENAME>
  <VOUCHERNUMBER>CN-7</VOUCHERNUMBER>
  <PARTYLEDGERNAME>Acme Industries</PARTYLEDGERNAME>
  <ALLINVENTORYENTRIES.LIST>
    <STOCKITEMNAME>Widget A</STOCKITEMNAME>
    <AMOUNT>10,000.00</AMOUNT>
  </ALLINVENTORYENTRIES.LIST>
  <LEDGERENTRIES.LIST>
    <LEDGERNAME>Acme Industries</LEDGERNAME>
    <AMOUNT>11,800.00</AMOUNT>
  </LEDGERENTRIES.LIST>
</VOUCHER>
</DATA></BODY></ENVELOPE>`

	vs, err := ParseVouchers(doc, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, vs, 1)

	v := vs[0]
	require.True(t, v.Subtotal.Equal(decimal.NewFromInt(-10000)), "subtotal=%s", v.Subtotal)
	require.True(t, v.Total.Equal(decimal.NewFromInt(-11800)), "total=%s", v.Total)
	require.True(t, v.Tax.Equal(decimal.NewFromInt(-1800)), "tax=%s", v.Tax)
}

func TestParseReceiptWithBillAllocation(t *testing.T) {
	doc := `<ENVELOPE><BODY><DATA>
<VOUCHER>
  <DATE>20240520</DATE>
  <GUID>rcpt-9</GUID>
  <VOUCHERTYPENAME>Receipt</VOUCHERTYPENAME>
  <VOUCHERNUMBER>RC-9</VOUCHERNUMBER>
  <PARTYLEDGERNAME>Acme Industries</PARTYLEDGERNAME>
  <ALLLEDGERENTRIES.LIST>
    <LEDGERNAME>Acme Industries</LEDGERNAME>
    <ISPARTYLEDGER>Yes</ISPARTYLEDGER>
    <AMOUNT>50,000.00</AMOUNT>
    <BILLALLOCATIONS.LIST>
      <NAME>INV-001</NAME>
      <BILLTYPE>Agst Ref</BILLTYPE>
      <AMOUNT>50,000.00</AMOUNT>
    </BILLALLOCATIONS.LIST>
  </ALLLEDGERENTRIES.LIST>
  <ALLLEDGERENTRIES.LIST>
    <LEDGERNAME>HDFC Bank</LEDGERNAME>
    <AMOUNT>-50,000.00</AMOUNT>
  </ALLLEDGERENTRIES.LIST>
</VOUCHER>
</DATA></BODY></ENVELOPE>`

	vs, err := ParseVouchers(doc, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, vs, 1)

	v := vs[0]
	require.True(t, v.Total.Equal(decimal.NewFromInt(50000)))
	require.True(t, v.Subtotal.Equal(v.Total))
	require.True(t, v.Tax.IsZero())

	require.Len(t, v.Bills, 1)
	require.Equal(t, "Agst Ref", v.Bills[0].BillType)
	require.Equal(t, "Acme Industries", v.Bills[0].Ledger)
}

func TestVoucherKeyFallbacks(t *testing.T) {
	t.Run("remoteid promoted when guid blank", func(t *testing.T) {
		doc := `<X><VOUCHER REMOTEID="r-55">
			<VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
			<VOUCHERNUMBER>9</VOUCHERNUMBER>
			<DATE>20240401</DATE>
			<PARTYLEDGERNAME>P</PARTYLEDGERNAME>
			<LEDGERENTRIES.LIST><LEDGERNAME>P</LEDGERNAME><AMOUNT>-100</AMOUNT></LEDGERENTRIES.LIST>
		</VOUCHER></X>`
		vs, err := ParseVouchers(doc, zap.NewNop())
		require.NoError(t, err)
		require.Len(t, vs, 1)
		require.Equal(t, "r-55", vs[0].Key())
	})

	t.Run("composite key when no guid", func(t *testing.T) {
		v := Voucher{Type: "Sales", Number: "INV-2", Party: "P"}
		v.Date, _ = ParseDate("20240401", v.Date)
		require.Equal(t, "Sales/INV-2/2024-04-01/P", v.Key())
	})

	t.Run("hash key when no guid and no number", func(t *testing.T) {
		v := Voucher{Type: "Sales", Party: "P", Total: decimal.NewFromInt(118)}
		v.Date, _ = ParseDate("20240401", v.Date)
		key := v.Key()
		require.True(t, strings.HasPrefix(key, "Sales/2024-04-01/P#"))
		require.Len(t, strings.Split(key, "#")[1], 16)

		// Same content, same key; different amount, different key.
		v2 := v
		require.Equal(t, key, v2.Key())
		v2.Total = decimal.NewFromInt(119)
		require.NotEqual(t, key, v2.Key())
	})
}

func TestParseVouchersDeduplicates(t *testing.T) {
	one := `<VOUCHER>
		<GUID>dup-1</GUID>
		<VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
		<VOUCHERNUMBER>1</VOUCHERNUMBER>
		<DATE>20240401</DATE>
		<PARTYLEDGERNAME>P</PARTYLEDGERNAME>
	</VOUCHER>`
	doc := "<X>" + one + one + "</X>"

	vs, err := ParseVouchers(doc, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, vs, 1)
}

func TestParseVouchersSkipsTypelessVoucher(t *testing.T) {
	doc := `<X>
		<VOUCHER><VOUCHERNUMBER>1</VOUCHERNUMBER><DATE>20240401</DATE></VOUCHER>
		<VOUCHER><GUID>g2</GUID><VOUCHERTYPENAME>Sales</VOUCHERTYPENAME><DATE>20240402</DATE><PARTYLEDGERNAME>P</PARTYLEDGERNAME></VOUCHER>
	</X>`
	vs, err := ParseVouchers(doc, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, vs, 1)
	require.Equal(t, "g2", vs[0].GUID)
}

func TestHeaderAmountFallback(t *testing.T) {
	doc := `<X><VOUCHER>
		<GUID>j-1</GUID>
		<VOUCHERTYPENAME>Journal</VOUCHERTYPENAME>
		<DATE>20240410</DATE>
		<AMOUNT>2,500.00</AMOUNT>
	</VOUCHER></X>`
	vs, err := ParseVouchers(doc, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, vs, 1)
	require.Equal(t, AmountHeader, vs[0].Source)
	require.True(t, vs[0].Total.Equal(decimal.NewFromInt(2500)))
}

func TestPartyLedgerPrefixMatch(t *testing.T) {
	// Tally truncated the ledger reference past 15 characters.
	doc := `<X><VOUCHER>
		<GUID>t-1</GUID>
		<VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
		<DATE>20240410</DATE>
		<PARTYLEDGERNAME>Very Long Customer Name Pvt Ltd</PARTYLEDGERNAME>
		<LEDGERENTRIES.LIST>
			<LEDGERNAME>Very Long Custo</LEDGERNAME>
			<AMOUNT>-5,000.00</AMOUNT>
		</LEDGERENTRIES.LIST>
	</VOUCHER></X>`
	vs, err := ParseVouchers(doc, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, vs, 1)
	require.True(t, vs[0].Total.Equal(decimal.NewFromInt(5000)), "total=%s", vs[0].Total)
	require.Equal(t, AmountLedger, vs[0].Source)
}

func TestNormalizeAmounts(t *testing.T) {
	d := decimal.NewFromInt
	cases := []struct {
		name     string
		vchType  string
		sub, tot int64
		wantSub  int64
		wantTot  int64
		wantTax  int64
	}{
		{"sales stays positive", "Sales", 100, 118, 100, 118, 18},
		{"sales flipped to positive", "Sales", -100, -118, 100, 118, 18},
		{"credit note forced negative", "Credit Note", 100, 118, -100, -118, -18},
		{"credit note already negative", "Credit Note", -100, -118, -100, -118, -18},
		{"sales return forced negative", "Sales Return", 50, 59, -50, -59, -9},
		{"debit note forced negative", "Debit Note", 50, 59, -50, -59, -9},
		{"receipt abs, no tax", "Receipt", -500, -500, 500, 500, 0},
		{"payment abs, no tax", "Payment", -500, -500, 500, 500, 0},
		{"journal keeps sign, no tax", "Journal", -500, -500, -500, -500, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub, tot, tax := normalizeAmounts(tc.vchType, d(tc.sub), d(tc.tot))
			require.True(t, sub.Equal(d(tc.wantSub)), "sub=%s", sub)
			require.True(t, tot.Equal(d(tc.wantTot)), "tot=%s", tot)
			require.True(t, tax.Equal(d(tc.wantTax)), "tax=%s", tax)
		})
	}
}
