package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Writer owns the warehouse connection pool and all write paths.
type Writer struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewWriter connects to the warehouse and verifies the connection.
func NewWriter(ctx context.Context, dsn string, log *zap.Logger) (*Writer, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	log.Info("connected to warehouse")
	return &Writer{pool: pool, log: log}, nil
}

// Close releases the connection pool.
func (w *Writer) Close() {
	w.pool.Close()
}

const upsertCustomerSQL = `
	INSERT INTO customer_dim (customer_id, name, gstin, pincode, city, ledger_group_name)
	VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
	ON CONFLICT (customer_id) DO UPDATE SET
		name              = EXCLUDED.name,
		gstin             = COALESCE(EXCLUDED.gstin, customer_dim.gstin),
		pincode           = COALESCE(EXCLUDED.pincode, customer_dim.pincode),
		city              = COALESCE(EXCLUDED.city, customer_dim.city),
		ledger_group_name = COALESCE(EXCLUDED.ledger_group_name, customer_dim.ledger_group_name)`

const upsertHeaderSQL = `
	INSERT INTO invoice_header
		(voucher_key, voucher_type, date, customer_id, subtotal, tax, total, roundoff, updated_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, now())
	ON CONFLICT (voucher_key) DO UPDATE SET
		voucher_type = EXCLUDED.voucher_type,
		date         = EXCLUDED.date,
		customer_id  = EXCLUDED.customer_id,
		subtotal     = EXCLUDED.subtotal,
		tax          = EXCLUDED.tax,
		total        = EXCLUDED.total,
		roundoff     = EXCLUDED.roundoff,
		updated_at   = now()
	RETURNING invoice_key`

const insertLineSQL = `
	INSERT INTO invoice_line
		(invoice_key, item_name, qty, uom, rate, discount, line_basic, line_tax, line_total)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const insertBillSQL = `
	INSERT INTO voucher_bill_allocation
		(voucher_key, voucher_date, ledger, ref_name, amount, bill_type, credit_days)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// WriteVoucher persists one voucher atomically: customer, header, a full
// replacement of its lines, and a full replacement of its bill-wise
// allocations. A failure anywhere rolls the whole voucher back.
func (w *Writer) WriteVoucher(ctx context.Context, cust Customer, h InvoiceHeader, lines []InvoiceLine, bills []BillRow) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if cust.ID != "" {
		if _, err := tx.Exec(ctx, upsertCustomerSQL,
			cust.ID, cust.Name, cust.GSTIN, cust.Pincode, cust.City, cust.LedgerGroup); err != nil {
			return fmt.Errorf("upsert customer %q: %w", cust.ID, err)
		}
	}

	var invoiceKey int64
	if err := tx.QueryRow(ctx, upsertHeaderSQL,
		h.VoucherKey, h.VoucherType, h.Date, h.CustomerID,
		h.Subtotal, h.Tax, h.Total, h.Roundoff).Scan(&invoiceKey); err != nil {
		return fmt.Errorf("upsert header %q: %w", h.VoucherKey, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM invoice_line WHERE invoice_key = $1`, invoiceKey); err != nil {
		return fmt.Errorf("delete lines %q: %w", h.VoucherKey, err)
	}
	for _, l := range lines {
		if _, err := tx.Exec(ctx, insertLineSQL,
			invoiceKey, l.ItemName, l.Qty, l.UOM, l.Rate, l.Discount,
			l.LineBasic, l.LineTax, l.LineTotal); err != nil {
			return fmt.Errorf("insert line for %q: %w", h.VoucherKey, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM voucher_bill_allocation WHERE voucher_key = $1`, h.VoucherKey); err != nil {
		return fmt.Errorf("delete bill allocations %q: %w", h.VoucherKey, err)
	}
	for _, b := range bills {
		if _, err := tx.Exec(ctx, insertBillSQL,
			b.VoucherKey, b.VoucherDate, b.Ledger, b.RefName, b.Amount, b.BillType, b.CreditDays); err != nil {
			return fmt.Errorf("insert bill allocation for %q: %w", h.VoucherKey, err)
		}
	}

	return tx.Commit(ctx)
}

// UpsertReceipt writes one receipt row, creating its customer if needed.
func (w *Writer) UpsertReceipt(ctx context.Context, r Receipt) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if r.CustomerID != "" {
		if _, err := tx.Exec(ctx, upsertCustomerSQL, r.CustomerID, r.CustomerID, "", "", "", ""); err != nil {
			return fmt.Errorf("upsert customer %q: %w", r.CustomerID, err)
		}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO receipt (receipt_key, date, customer_id, amount, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, now())
		ON CONFLICT (receipt_key) DO UPDATE SET
			date        = EXCLUDED.date,
			customer_id = EXCLUDED.customer_id,
			amount      = EXCLUDED.amount,
			updated_at  = now()`,
		r.ReceiptKey, r.Date, r.CustomerID, r.Amount)
	if err != nil {
		return fmt.Errorf("upsert receipt %q: %w", r.ReceiptKey, err)
	}
	return tx.Commit(ctx)
}

// DeleteWindow removes every voucher-derived row dated inside [from, to]:
// headers (lines cascade), receipts, and bill allocations. Used by
// clear-and-reload before refetching the window.
func (w *Writer) DeleteWindow(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	err := pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM invoice_header WHERE date BETWEEN $1 AND $2`, from, to)
		if err != nil {
			return err
		}
		total += tag.RowsAffected()
		if _, err := tx.Exec(ctx, `DELETE FROM receipt WHERE date BETWEEN $1 AND $2`, from, to); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM voucher_bill_allocation WHERE voucher_date BETWEEN $1 AND $2`, from, to); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("deleting window: %w", err)
	}
	w.log.Info("cleared window",
		zap.String("from", from.Format("2006-01-02")),
		zap.String("to", to.Format("2006-01-02")),
		zap.Int64("headers_deleted", total))
	return total, nil
}
