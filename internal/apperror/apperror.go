// Package apperror names the error kinds the ingestion pipeline
// distinguishes. Callers match against these with errors.Is; only
// Fatal ever reaches the supervisor.
package apperror

import "errors"

var (
	// Transient marks an upstream failure that is safe to retry:
	// RPC 5xx, websocket disconnect.
	Transient = errors.New("transient upstream error")

	// DecodeMissingData marks a block or transaction missing data the
	// processor requires (no transactions, no block_time).
	DecodeMissingData = errors.New("missing required data")

	// DecodeMalformed marks a transaction that cannot be decoded as the
	// JSON variant; the processor skips it silently.
	DecodeMalformed = errors.New("malformed transaction encoding")

	// Timeout marks an operation that exceeded its deadline.
	Timeout = errors.New("operation timed out")

	// PoolExhausted marks a database connection pool that could not
	// hand out a connection within its acquire timeout.
	PoolExhausted = errors.New("connection pool exhausted")

	// DBIntegrity marks a primary-key conflict; by design this is a
	// success (idempotent re-insert), never propagated as a failure.
	DBIntegrity = errors.New("database integrity conflict")

	// DBOther marks any other database error; the caller rolls back
	// and drops the batch.
	DBOther = errors.New("database error")

	// Fatal marks an error that must reach the supervisor and trigger
	// root context cancellation.
	Fatal = errors.New("fatal error")
)

// Wrap annotates err with kind so errors.Is(wrapped, kind) succeeds
// while preserving the original message and chain.
func Wrap(kind error, msg string, err error) error {
	if err == nil {
		return &kindError{kind: kind, msg: msg}
	}
	return &kindError{kind: kind, msg: msg, cause: err}
}

type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return e.kind
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}
