package warehouse

import "context"

// Schema DDL, applied in dependency order. CREATE TABLE IF NOT EXISTS
// keeps bootstrap idempotent; there is no migration machinery here.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS customer_dim (
		customer_id       TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		gstin             TEXT,
		pincode           TEXT,
		city              TEXT,
		ledger_group_name TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_header (
		invoice_key    BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		voucher_key    TEXT NOT NULL UNIQUE,
		voucher_type   TEXT NOT NULL,
		date           DATE NOT NULL,
		customer_id    TEXT REFERENCES customer_dim(customer_id),
		salesperson_id TEXT,
		subtotal       NUMERIC(14,2) NOT NULL DEFAULT 0,
		tax            NUMERIC(14,2) NOT NULL DEFAULT 0,
		total          NUMERIC(14,2) NOT NULL DEFAULT 0,
		roundoff       NUMERIC(14,2) NOT NULL DEFAULT 0,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS invoice_header_date_idx ON invoice_header (date)`,
	`CREATE TABLE IF NOT EXISTS invoice_line (
		line_id     BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		invoice_key BIGINT NOT NULL REFERENCES invoice_header(invoice_key) ON DELETE CASCADE,
		item_id     BIGINT,
		item_name   TEXT,
		qty         NUMERIC(14,3),
		uom         TEXT,
		rate        NUMERIC(14,2),
		discount    NUMERIC(14,2),
		line_basic  NUMERIC(14,2),
		line_tax    NUMERIC(14,2),
		line_total  NUMERIC(14,2),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS invoice_line_invoice_idx ON invoice_line (invoice_key)`,
	`CREATE TABLE IF NOT EXISTS receipt (
		receipt_id  BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		receipt_key TEXT NOT NULL UNIQUE,
		date        DATE NOT NULL,
		customer_id TEXT REFERENCES customer_dim(customer_id),
		amount      NUMERIC(14,2) NOT NULL DEFAULT 0,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_group_dim (
		group_id    BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		guid        TEXT,
		name        TEXT NOT NULL UNIQUE,
		parent_name TEXT,
		alter_id    BIGINT,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS stock_group_dim (
		group_id    BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		guid        TEXT,
		name        TEXT NOT NULL UNIQUE,
		parent_name TEXT,
		alter_id    BIGINT,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS item_dim (
		item_id     BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		guid        TEXT,
		name        TEXT NOT NULL UNIQUE,
		parent_name TEXT,
		base_units  TEXT,
		hsn_code    TEXT,
		brand       TEXT,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS uom_dim (
		name          TEXT PRIMARY KEY,
		guid          TEXT,
		original_name TEXT,
		gst_rep_uom   TEXT,
		is_simple     BOOLEAN NOT NULL DEFAULT FALSE,
		alter_id      BIGINT,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS opening_bill (
		ledger             TEXT NOT NULL,
		ref_name           TEXT NOT NULL,
		bill_date          DATE,
		opening_balance    NUMERIC(14,2) NOT NULL DEFAULT 0,
		credit_period_days INT,
		is_advance         BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (ledger, ref_name)
	)`,
	`CREATE TABLE IF NOT EXISTS voucher_bill_allocation (
		alloc_id     BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		voucher_key  TEXT NOT NULL,
		voucher_date DATE NOT NULL,
		ledger       TEXT NOT NULL,
		ref_name     TEXT NOT NULL,
		amount       NUMERIC(14,2) NOT NULL DEFAULT 0,
		bill_type    TEXT NOT NULL,
		credit_days  INT
	)`,
	`CREATE INDEX IF NOT EXISTS voucher_bill_allocation_key_idx ON voucher_bill_allocation (voucher_key)`,
	`CREATE INDEX IF NOT EXISTS voucher_bill_allocation_bill_idx ON voucher_bill_allocation (ledger, ref_name)`,
	`CREATE TABLE IF NOT EXISTS bill_receivable_fact (
		ledger             TEXT NOT NULL,
		ref_name           TEXT NOT NULL,
		bill_date          DATE,
		due_date           DATE,
		original_amount    NUMERIC(14,2) NOT NULL DEFAULT 0,
		adjusted_amount    NUMERIC(14,2) NOT NULL DEFAULT 0,
		pending_amount     NUMERIC(14,2) NOT NULL DEFAULT 0,
		last_adjusted_date DATE,
		UNIQUE (ledger, ref_name)
	)`,
	`CREATE TABLE IF NOT EXISTS checkpoint (
		stream_name TEXT PRIMARY KEY,
		last_date   DATE NOT NULL,
		last_key    TEXT,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS run_log (
		id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		stream_name TEXT NOT NULL,
		run_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		"rows"      INT NOT NULL DEFAULT 0,
		status      TEXT NOT NULL,
		error       TEXT
	)`,
}

// EnsureSchema creates every warehouse table that does not exist yet.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := w.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	w.log.Info("warehouse schema ensured")
	return nil
}
