package tally

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AmountSource records which resolution path produced a voucher's amounts.
type AmountSource string

const (
	AmountInventoryLedger AmountSource = "inventory+ledger"
	AmountLedger          AmountSource = "ledger"
	AmountBillAllocation  AmountSource = "bill_allocation"
	AmountInventoryOnly   AmountSource = "inventory"
	AmountHeader          AmountSource = "header"
)

// Voucher is one parsed transaction from a Voucher Register export.
// Subtotal/Total/Tax are already sign-normalized for the voucher type.
type Voucher struct {
	Type      string
	Number    string
	GUID      string // REMOTEID is promoted here when GUID is blank
	Date      time.Time
	Party     string
	Narration string
	Reference string

	// Opportunistic party enrichment, blank when the export omits them.
	PartyGSTIN   string
	PartyPincode string
	PartyCity    string

	Subtotal decimal.Decimal
	Total    decimal.Decimal
	Tax      decimal.Decimal
	Source   AmountSource

	Inventory []InventoryEntry
	Ledger    []LedgerEntry
	Bills     []BillAllocation
}

// InventoryEntry keeps quantity and rate as raw strings; the warehouse
// layer splits them into magnitude and unit when building line rows.
type InventoryEntry struct {
	Item     string
	Quantity string
	Rate     string
	Amount   decimal.Decimal
	Discount decimal.Decimal
}

// LedgerEntry is one debit/credit leg of a voucher.
type LedgerEntry struct {
	Name    string
	Amount  decimal.Decimal
	IsParty bool
}

// BillAllocation is one bill-wise reference under a ledger entry. Ledger
// is the enclosing entry's ledger name (the voucher party when the entry
// carries none), which is what receivables reconciliation joins on.
type BillAllocation struct {
	Ledger     string
	Name       string
	Amount     decimal.Decimal
	BillType   string // New Ref, Agst Ref, Advance, On Account
	CreditDays *int
}

// Key derives the stable warehouse identity for the voucher:
// GUID when present, then type/number/date/party, then a content hash
// for vouchers with neither GUID nor number.
func (v *Voucher) Key() string {
	if v.GUID != "" {
		return v.GUID
	}
	date := v.Date.Format("2006-01-02")
	if v.Number != "" {
		return fmt.Sprintf("%s/%s/%s/%s", v.Type, v.Number, date, v.Party)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", v.Type, date, v.Party, v.Total.StringFixed(2))))
	return fmt.Sprintf("%s/%s/%s#%s", v.Type, date, v.Party, hex.EncodeToString(sum[:])[:16])
}

// LedgerGroup is a node in the account-group hierarchy. GUID and AlterID
// are nil for groups inferred from ledger parent names.
type LedgerGroup struct {
	Name    string
	GUID    string
	Parent  string
	AlterID *int64
}

// Ledger is an account master; for customers Parent is typically
// "Sundry Debtors" or a subgroup under it.
type Ledger struct {
	Name    string
	GUID    string
	Parent  string
	AlterID *int64
}

// OpeningBill is a bill-wise opening balance carried on a ledger master.
type OpeningBill struct {
	Ledger     string
	Name       string
	BillDate   *time.Time
	Opening    decimal.Decimal
	CreditDays *int
	IsAdvance  bool
}

// StockGroup mirrors LedgerGroup for the inventory hierarchy.
type StockGroup struct {
	Name    string
	GUID    string
	Parent  string
	AlterID *int64
}

// StockItem is an inventory master.
type StockItem struct {
	Name      string
	GUID      string
	Parent    string
	BaseUnits string
	HSN       string
}

// Unit is a unit-of-measure master.
type Unit struct {
	Name         string
	GUID         string
	OriginalName string
	GSTRepUOM    string
	IsSimple     bool
	AlterID      *int64
}

// Masters is the combined result of a masters export.
type Masters struct {
	LedgerGroups []LedgerGroup
	Ledgers      []Ledger
	OpeningBills []OpeningBill
	StockGroups  []StockGroup
	StockItems   []StockItem
	Units        []Unit
}
