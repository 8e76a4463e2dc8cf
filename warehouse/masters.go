package warehouse

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/withObsrvr/tally-postgres-ingester/tally"
)

// Master upserts key on the unique name; the GUID travels along as data.
// Tally GUIDs are absent from some exports (notably groups inferred from
// ledger parents), so the natural key is the only one always present.

const masterBatchSize = 200

func (w *Writer) sendBatches(ctx context.Context, what string, n int, queue func(*pgx.Batch, int)) error {
	for start := 0; start < n; start += masterBatchSize {
		end := start + masterBatchSize
		if end > n {
			end = n
		}
		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			queue(batch, i)
		}
		if err := w.pool.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting %s: %w", what, err)
		}
	}
	if n > 0 {
		w.log.Info("masters upserted", zap.String("kind", what), zap.Int("rows", n))
	}
	return nil
}

// UpsertLedgerGroups writes the account-group hierarchy.
func (w *Writer) UpsertLedgerGroups(ctx context.Context, groups []tally.LedgerGroup) error {
	const sql = `
		INSERT INTO ledger_group_dim (guid, name, parent_name, alter_id, updated_at)
		VALUES (NULLIF($1, ''), $2, NULLIF($3, ''), $4, now())
		ON CONFLICT (name) DO UPDATE SET
			guid        = COALESCE(NULLIF(EXCLUDED.guid, ''), ledger_group_dim.guid),
			parent_name = COALESCE(EXCLUDED.parent_name, ledger_group_dim.parent_name),
			alter_id    = COALESCE(EXCLUDED.alter_id, ledger_group_dim.alter_id),
			updated_at  = now()`
	return w.sendBatches(ctx, "ledger groups", len(groups), func(b *pgx.Batch, i int) {
		g := groups[i]
		b.Queue(sql, g.GUID, g.Name, g.Parent, g.AlterID)
	})
}

// UpsertStockGroups writes the inventory-group hierarchy.
func (w *Writer) UpsertStockGroups(ctx context.Context, groups []tally.StockGroup) error {
	const sql = `
		INSERT INTO stock_group_dim (guid, name, parent_name, alter_id, updated_at)
		VALUES (NULLIF($1, ''), $2, NULLIF($3, ''), $4, now())
		ON CONFLICT (name) DO UPDATE SET
			guid        = COALESCE(NULLIF(EXCLUDED.guid, ''), stock_group_dim.guid),
			parent_name = COALESCE(EXCLUDED.parent_name, stock_group_dim.parent_name),
			alter_id    = COALESCE(EXCLUDED.alter_id, stock_group_dim.alter_id),
			updated_at  = now()`
	return w.sendBatches(ctx, "stock groups", len(groups), func(b *pgx.Batch, i int) {
		g := groups[i]
		b.Queue(sql, g.GUID, g.Name, g.Parent, g.AlterID)
	})
}

// UpsertItems writes stock item masters.
func (w *Writer) UpsertItems(ctx context.Context, items []tally.StockItem) error {
	const sql = `
		INSERT INTO item_dim (guid, name, parent_name, base_units, hsn_code, updated_at)
		VALUES (NULLIF($1, ''), $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), now())
		ON CONFLICT (name) DO UPDATE SET
			guid        = COALESCE(NULLIF(EXCLUDED.guid, ''), item_dim.guid),
			parent_name = COALESCE(EXCLUDED.parent_name, item_dim.parent_name),
			base_units  = COALESCE(EXCLUDED.base_units, item_dim.base_units),
			hsn_code    = COALESCE(EXCLUDED.hsn_code, item_dim.hsn_code),
			updated_at  = now()`
	return w.sendBatches(ctx, "stock items", len(items), func(b *pgx.Batch, i int) {
		it := items[i]
		b.Queue(sql, it.GUID, it.Name, it.Parent, it.BaseUnits, it.HSN)
	})
}

// UpsertUnits writes unit-of-measure masters.
func (w *Writer) UpsertUnits(ctx context.Context, units []tally.Unit) error {
	const sql = `
		INSERT INTO uom_dim (name, guid, original_name, gst_rep_uom, is_simple, alter_id, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6, now())
		ON CONFLICT (name) DO UPDATE SET
			guid          = COALESCE(NULLIF(EXCLUDED.guid, ''), uom_dim.guid),
			original_name = COALESCE(EXCLUDED.original_name, uom_dim.original_name),
			gst_rep_uom   = COALESCE(EXCLUDED.gst_rep_uom, uom_dim.gst_rep_uom),
			is_simple     = EXCLUDED.is_simple,
			alter_id      = COALESCE(EXCLUDED.alter_id, uom_dim.alter_id),
			updated_at    = now()`
	return w.sendBatches(ctx, "units", len(units), func(b *pgx.Batch, i int) {
		u := units[i]
		b.Queue(sql, u.Name, u.GUID, u.OriginalName, u.GSTRepUOM, u.IsSimple, u.AlterID)
	})
}

// ReplaceOpeningBills replaces the bill-wise opening balances for every
// ledger present in the batch, leaving other ledgers untouched.
func (w *Writer) ReplaceOpeningBills(ctx context.Context, bills []tally.OpeningBill) error {
	if len(bills) == 0 {
		return nil
	}
	ledgers := make(map[string]bool)
	for _, b := range bills {
		ledgers[b.Ledger] = true
	}
	names := make([]string, 0, len(ledgers))
	for l := range ledgers {
		names = append(names, l)
	}

	err := pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM opening_bill WHERE ledger = ANY($1)`, names); err != nil {
			return err
		}
		for _, b := range bills {
			if _, err := tx.Exec(ctx, `
				INSERT INTO opening_bill
					(ledger, ref_name, bill_date, opening_balance, credit_period_days, is_advance, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now())
				ON CONFLICT (ledger, ref_name) DO UPDATE SET
					bill_date          = EXCLUDED.bill_date,
					opening_balance    = EXCLUDED.opening_balance,
					credit_period_days = EXCLUDED.credit_period_days,
					is_advance         = EXCLUDED.is_advance,
					updated_at         = now()`,
				b.Ledger, b.Name, b.BillDate, b.Opening, b.CreditDays, b.IsAdvance); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing opening bills: %w", err)
	}
	w.log.Info("opening bills replaced",
		zap.Int("ledgers", len(names)), zap.Int("bills", len(bills)))
	return nil
}

// UpdateCustomerGroups backfills customer_dim.ledger_group_name from
// ledger masters for parties that already exist as customers.
func (w *Writer) UpdateCustomerGroups(ctx context.Context, ledgers []tally.Ledger) error {
	const sql = `
		UPDATE customer_dim SET ledger_group_name = $2
		WHERE customer_id = $1 AND (ledger_group_name IS NULL OR ledger_group_name = '')`
	n := 0
	batchable := make([]tally.Ledger, 0, len(ledgers))
	for _, l := range ledgers {
		if l.Parent != "" {
			batchable = append(batchable, l)
			n++
		}
	}
	return w.sendBatches(ctx, "customer groups", n, func(b *pgx.Batch, i int) {
		b.Queue(sql, batchable[i].Name, batchable[i].Parent)
	})
}
