package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/withObsrvr/tally-postgres-ingester/ingest"
	"github.com/withObsrvr/tally-postgres-ingester/tally"
	"github.com/withObsrvr/tally-postgres-ingester/warehouse"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "tally-postgres-ingester",
		Short:         "Ingests Tally vouchers and masters into a Postgres warehouse",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to config file")

	root.AddCommand(
		newRunCmd(&cfgPath),
		newBackfillCmd(&cfgPath),
		newClearAndReloadCmd(&cfgPath),
		newSyncMastersCmd(&cfgPath),
		newReconcileBillsCmd(&cfgPath),
		newTestConnectionCmd(&cfgPath),
	)
	return root
}

// app holds the wired pipeline for one command invocation.
type app struct {
	cfg    *Config
	log    *zap.Logger
	client *tally.Client
	writer *warehouse.Writer
	driver *ingest.Driver
}

// newApp loads configuration and connects both ends of the pipeline.
// Configuration problems are fatal here, before any work starts.
func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	writer, err := warehouse.NewWriter(ctx, cfg.GetPostgresConnectionString(), log)
	if err != nil {
		return nil, err
	}
	if err := writer.EnsureSchema(ctx); err != nil {
		writer.Close()
		return nil, err
	}

	client := tally.NewClient(cfg.Tally.URL, cfg.Tally.Company, log,
		tally.WithTimeouts(
			time.Duration(cfg.Tally.VoucherTimeoutSeconds)*time.Second,
			time.Duration(cfg.Tally.MasterTimeoutSeconds)*time.Second,
		))

	driver := ingest.New(client, writer, log,
		ingest.WithBatchDays(cfg.Ingest.BatchDays))

	return &app{cfg: cfg, log: log, client: client, writer: writer, driver: driver}, nil
}

func (a *app) close() {
	a.writer.Close()
	_ = a.log.Sync()
}

func buildLogger(cfg *Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.Logging.Level)
	}
	var zcfg zap.Config
	if cfg.Logging.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("configuration error: invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one incremental load from the checkpoint through today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			var hs *HealthServer
			if a.cfg.Service.HealthPort > 0 {
				hs = NewHealthServer(a.cfg.Service.HealthPort)
				if err := hs.Start(); err == nil {
					defer hs.Stop()
				}
			}

			stats, err := a.driver.RunIncremental(ctx)
			if hs != nil {
				hs.UpdateMetrics(uint64(stats.Written), uint64(stats.Receipts))
				if err != nil {
					hs.RecordError(err)
				}
			}
			return err
		},
	}
}

func newBackfillCmd(cfgPath *string) *cobra.Command {
	var opts ingest.LoadOptions
	cmd := &cobra.Command{
		Use:   "backfill <from> <to>",
		Short: "Load a historical window without touching the checkpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseDay(args[0])
			if err != nil {
				return err
			}
			to, err := parseDay(args[1])
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.driver.Backfill(ctx, from, to, opts)
			a.log.Info("backfill finished",
				zap.Int("written", stats.Written),
				zap.Int("receipts", stats.Receipts),
				zap.Int("errored", stats.Errored))
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.DayByDay, "day-by-day", false, "fetch one day at a time")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "parse and count but write nothing")
	cmd.Flags().IntVar(&opts.Preview, "preview", 0, "log the first N parsed vouchers")
	return cmd
}

func newClearAndReloadCmd(cfgPath *string) *cobra.Command {
	var opts ingest.LoadOptions
	cmd := &cobra.Command{
		Use:   "clear-and-reload <from> <to>",
		Short: "Delete a window's rows, then backfill it again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseDay(args[0])
			if err != nil {
				return err
			}
			to, err := parseDay(args[1])
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.driver.ClearAndReload(ctx, from, to, opts)
			a.log.Info("clear-and-reload finished",
				zap.Int("written", stats.Written),
				zap.Int("errored", stats.Errored))
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.DayByDay, "day-by-day", false, "fetch one day at a time")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "skip the delete and write nothing")
	return cmd
}

func newSyncMastersCmd(cfgPath *string) *cobra.Command {
	var opts ingest.MasterSyncOptions
	var fromSource bool
	cmd := &cobra.Command{
		Use:   "sync-masters",
		Short: "Refresh ledger, stock, and unit dimensions plus opening bills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromSource && opts.FromFile != "" {
				return fmt.Errorf("configuration error: --from-source and --from-file are mutually exclusive")
			}

			ctx, cancel := signalContext()
			defer cancel()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			return a.driver.SyncMasters(ctx, opts)
		},
	}
	cmd.Flags().BoolVar(&fromSource, "from-source", false, "fetch masters from the configured source (default)")
	cmd.Flags().StringVar(&opts.FromFile, "from-file", "", "read a saved masters export instead of the source")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "parse and count but write nothing")
	cmd.Flags().IntVar(&opts.Preview, "preview", 0, "log the first N parsed ledgers")
	return cmd
}

func newReconcileBillsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-bills",
		Short: "Rebuild bill-wise receivables from opening bills and loaded allocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			open, err := a.writer.RecomputeReceivables(ctx)
			if err != nil {
				return err
			}

			rows, err := a.writer.Receivables(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			buckets := map[string]int{}
			for _, r := range rows {
				buckets[r.AgingBucket]++
			}
			a.log.Info("receivables summary",
				zap.Int64("open_bills", open),
				zap.Any("aging", buckets))
			return nil
		},
	}
}

func newTestConnectionCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Verify the source gateway and company are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.client.TestConnection(ctx); err != nil {
				return fmt.Errorf("source check failed (is the gateway running and the company open?): %w", err)
			}
			a.log.Info("source reachable",
				zap.String("url", a.cfg.Tally.URL),
				zap.String("company", a.cfg.Tally.Company))
			return nil
		},
	}
}
