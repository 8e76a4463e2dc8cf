package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// StreamInvoices is the checkpoint stream the incremental driver advances.
const StreamInvoices = "invoices"

// Checkpoint returns the last committed date for stream, with found=false
// when the stream has never run.
func (w *Writer) Checkpoint(ctx context.Context, stream string) (time.Time, bool, error) {
	var last time.Time
	err := w.pool.QueryRow(ctx,
		`SELECT last_date FROM checkpoint WHERE stream_name = $1`, stream).Scan(&last)
	if err == pgx.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading checkpoint %q: %w", stream, err)
	}
	return last, true, nil
}

// WriteCheckpoint records date as the stream's new high-water mark.
func (w *Writer) WriteCheckpoint(ctx context.Context, stream string, date time.Time) error {
	_, err := w.pool.Exec(ctx, `
		INSERT INTO checkpoint (stream_name, last_date, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (stream_name) DO UPDATE SET
			last_date  = EXCLUDED.last_date,
			updated_at = now()`,
		stream, date)
	if err != nil {
		return fmt.Errorf("writing checkpoint %q: %w", stream, err)
	}
	return nil
}

// AppendRunLog records one run outcome. status is ok, partial, or error.
func (w *Writer) AppendRunLog(ctx context.Context, stream string, rows int, status, errMsg string) error {
	_, err := w.pool.Exec(ctx, `
		INSERT INTO run_log (stream_name, "rows", status, error)
		VALUES ($1, $2, $3, NULLIF($4, ''))`,
		stream, rows, status, errMsg)
	if err != nil {
		return fmt.Errorf("appending run log: %w", err)
	}
	return nil
}
