package tally

import (
	"errors"
	"fmt"
)

// Sentinel errors for transport-level failures. Both are retryable; the
// client wraps them so callers can classify with errors.Is.
var (
	// ErrSourceUnreachable means the TCP/HTTP round trip itself failed
	// (connection refused, timeout, DNS).
	ErrSourceUnreachable = errors.New("tally source unreachable")

	// ErrSourceProtocol means the gateway answered with a non-2xx status.
	ErrSourceProtocol = errors.New("tally protocol error")
)

// LogicalError is Tally reporting failure inside a well-formed response
// (STATUS element present and not "1"). Retrying the same request returns
// the same answer, so the client never retries these.
type LogicalError struct {
	Status string
	Detail string
}

func (e *LogicalError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("tally rejected request: status=%s: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("tally rejected request: status=%s", e.Status)
}

// ParseError marks a document or element that could not be interpreted.
// For a single voucher the driver skips the record and keeps going.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.What, e.Err)
	}
	return fmt.Sprintf("parse %s", e.What)
}

func (e *ParseError) Unwrap() error { return e.Err }
