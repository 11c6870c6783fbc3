package engine

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrBindingConflict marks a source listing id already bound to a
	// different property. Surfaced for manual reconciliation, never
	// auto-resolved.
	ErrBindingConflict = errors.New("binding conflict")

	// ErrTransientConflict marks store contention that persisted past the
	// bounded retry budget. The observation is safe to redeliver.
	ErrTransientConflict = errors.New("transient store conflict")

	// ErrInvariantViolation marks a gap between current state and the
	// history log. It indicates a bug; ingestion for the property halts.
	ErrInvariantViolation = errors.New("history invariant violation")
)

// BindingConflictError carries the detail of a refused re-bind. The
// attempted side is identified by its normalized address key; the property
// resolved for the observation does not survive the transaction rollback.
type BindingConflictError struct {
	SourceName       string
	SourceListingID  string
	BoundPropertyID  int64
	AttemptedAddress string
}

func (e *BindingConflictError) Error() string {
	return fmt.Sprintf("source %s listing %s is bound to property %d, refusing re-bind to address %s",
		e.SourceName, e.SourceListingID, e.BoundPropertyID, e.AttemptedAddress)
}

func (e *BindingConflictError) Unwrap() error { return ErrBindingConflict }

// InvariantError reports a field whose current state does not match the
// latest history entry.
type InvariantError struct {
	PropertyID   int64
	Field        string
	CurrentValue *string
	HistoryValue *string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("property %d field %s: current state %s does not match latest history value %s",
		e.PropertyID, e.Field, strOrNull(e.CurrentValue), strOrNull(e.HistoryValue))
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

func strOrNull(s *string) string {
	if s == nil {
		return "<null>"
	}
	return *s
}

// isTransient reports whether an error is SQLite lock contention that a
// retry can resolve.
func isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
