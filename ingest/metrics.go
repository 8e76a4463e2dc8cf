package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	vouchersProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_ingester_vouchers_processed_total",
		Help: "Vouchers written to the warehouse.",
	})
	rowsErrored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_ingester_rows_errored_total",
		Help: "Vouchers or receipts that failed to write.",
	})
	fetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_ingester_source_fetches_total",
		Help: "Export requests sent to the source.",
	})
	fetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_ingester_source_fetch_errors_total",
		Help: "Export requests that failed after retries.",
	})
	lastRunDate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tally_ingester_last_run_date_seconds",
		Help: "Unix time of the last successful incremental run's window end.",
	})
)
