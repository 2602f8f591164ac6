package storage

import (
	"context"
	"errors"
	"time"

	"linkkibot/internal/event"
)

var (
	ErrDisabled = errors.New("storage disabled")
	// ErrUnavailable marks connection, transport and unexpected backend
	// failures. Duplicates are never reported through it.
	ErrUnavailable = errors.New("storage unavailable")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL at DSN
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver       string
	DSN          string
	Path         string
	BusyTimeout  time.Duration // sqlite only; 0 means 5s
	MaxOpenConns int           // 0 means driver default (1 for sqlite)

	// Location reads payload times that carry no UTC offset.
	Location *time.Location
}

// Store is the event persistence API.
type Store interface {
	// EnsureSchema creates the events table and its unique indexes. It is
	// idempotent.
	EnsureSchema(ctx context.Context) error
	// InsertIfNew stores rec unless a row with the same fingerprint or
	// identity key exists. It reports whether a row was created.
	InsertIfNew(ctx context.Context, rec event.Record) (bool, error)
	// QueryWindow returns payloads with any candidate time in [start, end],
	// ascending by effective time.
	QueryWindow(ctx context.Context, start, end time.Time) ([]event.Record, error)
	// QueryDelta is QueryWindow(start, start+delta).
	QueryDelta(ctx context.Context, start time.Time, delta time.Duration) ([]event.Record, error)
	Close() error
}

// OpError is a storage failure tagged with the operation that hit it.
// errors.Is(err, ErrUnavailable) holds for every OpError.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return "storage " + e.Op + ": unavailable"
	}
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }

func opErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Err: err}
}
