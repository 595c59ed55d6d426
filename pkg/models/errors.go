package models

import (
	"errors"
	"fmt"
)

// MalformedInputError reports a field value that could not be normalized.
// It is never fatal: the pipeline records it, leaves the field empty, and
// keeps the rest of the record.
type MalformedInputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed %s %q: %s", e.Field, e.Value, e.Reason)
}

// InvariantViolationError reports a record that would corrupt resolution
// state, like a duplicate pointing at another duplicate. It is fatal for
// that record: the record is excluded from detection and ranking until
// repaired.
type InvariantViolationError struct {
	MemberID string
	Reason   string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation on member %s: %s", e.MemberID, e.Reason)
}

// IsMalformedInput reports whether err wraps a MalformedInputError.
func IsMalformedInput(err error) bool {
	var target *MalformedInputError
	return errors.As(err, &target)
}

// IsInvariantViolation reports whether err wraps an InvariantViolationError.
func IsInvariantViolation(err error) bool {
	var target *InvariantViolationError
	return errors.As(err, &target)
}
