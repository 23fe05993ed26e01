package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrSchemaMismatch    = errors.New("schema mismatch")
	ErrSourceUnavailable = errors.New("source unavailable")
)

// Drop reasons reported with MalformedRecordError.
const (
	ReasonBadTimestamp = "bad_timestamp"
	ReasonDuplicateID  = "duplicate_id"
)

// MalformedRecordError marks a single row that was dropped during normalization.
type MalformedRecordError struct {
	ID     string
	Reason string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed record %q: %s: %v", e.ID, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed record %q: %s", e.ID, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }
