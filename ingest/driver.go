package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/withObsrvr/tally-postgres-ingester/tally"
	"github.com/withObsrvr/tally-postgres-ingester/warehouse"
)

var taxTolerance = decimal.NewFromFloat(0.01)

// Source is the Tally side of the pipeline. *tally.Client satisfies it.
type Source interface {
	FetchVouchers(ctx context.Context, from, to time.Time) (string, error)
	FetchMasters(ctx context.Context, kind tally.MasterKind) (string, error)
}

// Store is the warehouse side. *warehouse.Writer satisfies it.
type Store interface {
	WriteVoucher(ctx context.Context, cust warehouse.Customer, h warehouse.InvoiceHeader, lines []warehouse.InvoiceLine, bills []warehouse.BillRow) error
	UpsertReceipt(ctx context.Context, r warehouse.Receipt) error
	DeleteWindow(ctx context.Context, from, to time.Time) (int64, error)
	Checkpoint(ctx context.Context, stream string) (time.Time, bool, error)
	WriteCheckpoint(ctx context.Context, stream string, date time.Time) error
	AppendRunLog(ctx context.Context, stream string, rows int, status, errMsg string) error
	RecomputeReceivables(ctx context.Context) (int64, error)

	UpsertLedgerGroups(ctx context.Context, groups []tally.LedgerGroup) error
	UpsertStockGroups(ctx context.Context, groups []tally.StockGroup) error
	UpsertItems(ctx context.Context, items []tally.StockItem) error
	UpsertUnits(ctx context.Context, units []tally.Unit) error
	ReplaceOpeningBills(ctx context.Context, bills []tally.OpeningBill) error
	UpdateCustomerGroups(ctx context.Context, ledgers []tally.Ledger) error
}

const (
	defaultBatchDays  = 15
	defaultBatchPause = time.Second
)

// Driver sequences date-windowed loads: fetch, parse, filter, write,
// one voucher transaction at a time.
type Driver struct {
	src   Source
	store Store
	log   *zap.Logger

	batchDays int
	pause     time.Duration
	now       func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithBatchDays overrides the day-by-day batch size.
func WithBatchDays(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.batchDays = n
		}
	}
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithBatchPause overrides the inter-batch pause.
func WithBatchPause(p time.Duration) Option {
	return func(d *Driver) { d.pause = p }
}

// New wires a driver over a source and a store.
func New(src Source, store Store, log *zap.Logger, opts ...Option) *Driver {
	d := &Driver{
		src:       src,
		store:     store,
		log:       log,
		batchDays: defaultBatchDays,
		pause:     defaultBatchPause,
		now:       time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Stats summarizes one load.
type Stats struct {
	Fetched  int
	Written  int
	Errored  int
	Receipts int
}

func (s *Stats) add(o Stats) {
	s.Fetched += o.Fetched
	s.Written += o.Written
	s.Errored += o.Errored
	s.Receipts += o.Receipts
}

func (s Stats) status() string {
	switch {
	case s.Errored == 0:
		return "ok"
	case s.Written > 0:
		return "partial"
	default:
		return "error"
	}
}

// LoadOptions tune backfill-style loads.
type LoadOptions struct {
	DayByDay bool
	DryRun   bool
	Preview  int
}

// RunIncremental loads from one day before the checkpoint (late edits to
// recent vouchers are absorbed by the overlap) through today, then
// advances the checkpoint and refreshes receivables. A missing
// checkpoint starts from April 1 of the current fiscal year.
func (d *Driver) RunIncremental(ctx context.Context) (Stats, error) {
	today := dateOnly(d.now().UTC())
	cp, found, err := d.store.Checkpoint(ctx, warehouse.StreamInvoices)
	if err != nil {
		return Stats{}, err
	}
	// The overlap re-reads the checkpoint day; a first run has no day
	// to re-read and starts at the fiscal year exactly.
	from := dateOnly(cp).AddDate(0, 0, -1)
	if !found {
		from = tally.FiscalYearStart(today)
		d.log.Info("no checkpoint, starting from fiscal year start",
			zap.String("from", from.Format("2006-01-02")))
	}
	if from.After(today) {
		from = today
	}

	stats, err := d.loadWindow(ctx, from, today, LoadOptions{})
	status := stats.status()
	if err != nil {
		status = "error"
	}
	if logErr := d.store.AppendRunLog(ctx, warehouse.StreamInvoices, stats.Written, status, errString(err)); logErr != nil {
		d.log.Warn("could not append run log", zap.Error(logErr))
	}
	if err != nil {
		return stats, err
	}

	if err := d.store.WriteCheckpoint(ctx, warehouse.StreamInvoices, today); err != nil {
		return stats, err
	}
	lastRunDate.Set(float64(today.Unix()))

	if _, err := d.store.RecomputeReceivables(ctx); err != nil {
		d.log.Warn("receivables recompute failed", zap.Error(err))
	}
	d.log.Info("incremental run complete",
		zap.String("from", from.Format("2006-01-02")),
		zap.String("to", today.Format("2006-01-02")),
		zap.Int("written", stats.Written),
		zap.Int("errored", stats.Errored))
	return stats, nil
}

// Backfill loads a historical window. It never touches the checkpoint.
func (d *Driver) Backfill(ctx context.Context, from, to time.Time, opts LoadOptions) (Stats, error) {
	from, to = dateOnly(from), dateOnly(to)
	if from.After(to) {
		return Stats{}, fmt.Errorf("backfill window inverted: %s after %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	var total Stats
	var firstErr error
	if !opts.DayByDay {
		total, firstErr = d.loadWindow(ctx, from, to, opts)
	} else {
		days := int(to.Sub(from).Hours()/24) + 1
		for i := 0; i < days; i++ {
			day := from.AddDate(0, 0, i)
			stats, err := d.loadWindow(ctx, day, day, opts)
			total.add(stats)
			if err != nil {
				d.log.Error("day load failed, continuing",
					zap.String("day", day.Format("2006-01-02")), zap.Error(err))
				total.Errored++
				if firstErr == nil {
					firstErr = err
				}
			}
			if (i+1)%d.batchDays == 0 && i+1 < days {
				d.log.Info("batch complete",
					zap.Int("days_done", i+1),
					zap.Int("days_total", days),
					zap.Int("written", total.Written))
				select {
				case <-time.After(d.pause):
				case <-ctx.Done():
					return total, ctx.Err()
				}
			}
		}
	}

	if !opts.DryRun {
		status := total.status()
		if firstErr != nil && total.Written == 0 {
			status = "error"
		}
		if err := d.store.AppendRunLog(ctx, warehouse.StreamInvoices, total.Written, status, errString(firstErr)); err != nil {
			d.log.Warn("could not append run log", zap.Error(err))
		}
	}
	return total, firstErr
}

// ClearAndReload deletes the window's rows and backfills it again.
func (d *Driver) ClearAndReload(ctx context.Context, from, to time.Time, opts LoadOptions) (Stats, error) {
	from, to = dateOnly(from), dateOnly(to)
	if from.After(to) {
		return Stats{}, fmt.Errorf("reload window inverted: %s after %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	if opts.DryRun {
		d.log.Info("dry run: skipping delete",
			zap.String("from", from.Format("2006-01-02")),
			zap.String("to", to.Format("2006-01-02")))
	} else {
		if _, err := d.store.DeleteWindow(ctx, from, to); err != nil {
			return Stats{}, err
		}
	}
	return d.Backfill(ctx, from, to, opts)
}

// loadWindow performs one fetch-parse-write cycle. Vouchers outside the
// window are dropped even though the source was asked for the window;
// some source builds ignore date parameters.
func (d *Driver) loadWindow(ctx context.Context, from, to time.Time, opts LoadOptions) (Stats, error) {
	fetchesTotal.Inc()
	doc, err := d.src.FetchVouchers(ctx, from, to)
	if err != nil {
		fetchErrors.Inc()
		return Stats{}, err
	}

	parsed, err := tally.ParseVouchers(doc, d.log)
	if err != nil {
		return Stats{}, err
	}

	vouchers := parsed[:0:0]
	for _, v := range parsed {
		day := dateOnly(v.Date)
		if day.Before(from) || day.After(to) {
			continue
		}
		vouchers = append(vouchers, v)
	}

	stats := Stats{Fetched: len(vouchers)}
	if opts.Preview > 0 {
		for i, v := range vouchers {
			if i >= opts.Preview {
				break
			}
			d.log.Info("preview",
				zap.String("key", v.Key()),
				zap.String("type", v.Type),
				zap.String("date", v.Date.Format("2006-01-02")),
				zap.String("party", v.Party),
				zap.String("total", v.Total.StringFixed(2)))
		}
	}
	if opts.DryRun {
		d.log.Info("dry run: nothing written",
			zap.String("from", from.Format("2006-01-02")),
			zap.String("to", to.Format("2006-01-02")),
			zap.Int("vouchers", len(vouchers)))
		return stats, nil
	}

	for i := range vouchers {
		// Cancellation lands between vouchers; the one in flight
		// either commits or rolls back whole.
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		v := &vouchers[i]
		h := warehouse.HeaderFromVoucher(v)
		checkTaxIdentity(h, d.log)
		err := d.store.WriteVoucher(ctx,
			warehouse.CustomerFromVoucher(v), h,
			warehouse.LinesFromVoucher(v), warehouse.BillsFromVoucher(v))
		if err != nil {
			stats.Errored++
			rowsErrored.Inc()
			d.log.Error("voucher write failed, continuing",
				zap.String("key", h.VoucherKey), zap.Error(err))
			continue
		}
		stats.Written++
		vouchersProcessed.Inc()
	}

	// The fetch already holds every receipt in the window; re-project
	// them instead of asking the source again.
	for i := range vouchers {
		r, ok := warehouse.ReceiptFromVoucher(&vouchers[i])
		if !ok {
			continue
		}
		if err := d.store.UpsertReceipt(ctx, r); err != nil {
			stats.Errored++
			rowsErrored.Inc()
			d.log.Error("receipt write failed, continuing",
				zap.String("key", r.ReceiptKey), zap.Error(err))
			continue
		}
		stats.Receipts++
	}
	return stats, nil
}

// checkTaxIdentity warns when total, subtotal, tax, and roundoff disagree
// beyond a paisa. The row is still written; the mismatch is a source
// quality signal, not a reason to drop data.
func checkTaxIdentity(h warehouse.InvoiceHeader, log *zap.Logger) {
	drift := h.Total.Sub(h.Subtotal).Sub(h.Tax).Sub(h.Roundoff).Abs()
	if drift.GreaterThan(taxTolerance) {
		log.Warn("tax identity violated",
			zap.String("key", h.VoucherKey),
			zap.String("drift", drift.StringFixed(2)))
	}
}

// MasterSyncOptions tune a masters sync.
type MasterSyncOptions struct {
	FromFile string // read this export file instead of the source
	DryRun   bool
	Preview  int
}

// SyncMasters loads every master kind from the source (or a saved export
// file) and refreshes the dimensions, opening bills, and receivables.
func (d *Driver) SyncMasters(ctx context.Context, opts MasterSyncOptions) error {
	var doc string
	if opts.FromFile != "" {
		raw, err := os.ReadFile(opts.FromFile)
		if err != nil {
			return fmt.Errorf("reading masters file: %w", err)
		}
		doc, err = tally.DecodeExportFile(raw)
		if err != nil {
			return fmt.Errorf("decoding masters file: %w", err)
		}
	} else {
		var err error
		fetchesTotal.Inc()
		doc, err = d.src.FetchMasters(ctx, tally.MastersAll)
		if err != nil {
			fetchErrors.Inc()
			return err
		}
	}

	m, err := tally.ParseMasters(doc)
	if err != nil {
		return err
	}

	// All Masters on some builds omits accounts; fall back to the
	// dedicated accounts report.
	if len(m.Ledgers) == 0 && opts.FromFile == "" {
		accounts, err := d.src.FetchMasters(ctx, tally.MastersAccounts)
		if err != nil {
			return err
		}
		am, err := tally.ParseMasters(accounts)
		if err != nil {
			return err
		}
		m.LedgerGroups = append(m.LedgerGroups, am.LedgerGroups...)
		m.Ledgers = am.Ledgers
		m.OpeningBills = am.OpeningBills
	}

	d.log.Info("masters parsed",
		zap.Int("ledger_groups", len(m.LedgerGroups)),
		zap.Int("ledgers", len(m.Ledgers)),
		zap.Int("opening_bills", len(m.OpeningBills)),
		zap.Int("stock_groups", len(m.StockGroups)),
		zap.Int("items", len(m.StockItems)),
		zap.Int("units", len(m.Units)))

	if opts.Preview > 0 {
		for i, l := range m.Ledgers {
			if i >= opts.Preview {
				break
			}
			d.log.Info("preview ledger", zap.String("name", l.Name), zap.String("parent", l.Parent))
		}
	}
	if opts.DryRun {
		d.log.Info("dry run: masters not written")
		return nil
	}

	if err := d.store.UpsertLedgerGroups(ctx, m.LedgerGroups); err != nil {
		return err
	}
	if err := d.store.UpsertStockGroups(ctx, m.StockGroups); err != nil {
		return err
	}
	if err := d.store.UpsertUnits(ctx, m.Units); err != nil {
		return err
	}
	if err := d.store.UpsertItems(ctx, m.StockItems); err != nil {
		return err
	}
	if err := d.store.ReplaceOpeningBills(ctx, m.OpeningBills); err != nil {
		return err
	}
	if err := d.store.UpdateCustomerGroups(ctx, m.Ledgers); err != nil {
		return err
	}
	if len(m.OpeningBills) > 0 {
		if _, err := d.store.RecomputeReceivables(ctx); err != nil {
			d.log.Warn("receivables recompute failed", zap.Error(err))
		}
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
