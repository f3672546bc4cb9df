//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package model

import (
	"errors"
	"fmt"
)

// Row and batch level errors. Callers match them with errors.Is.
var (
	// ErrInvalidAttribute reports a missing or malformed attribute. The row
	// is rejected and nothing is registered.
	ErrInvalidAttribute = errors.New("invalid attribute")

	// ErrNoMatchingVersion reports a known business key with no version
	// effective at the requested time. Retryable once the dimension backfills.
	ErrNoMatchingVersion = errors.New("no matching dimension version")

	// ErrDuplicateFact reports a second fact for the same order line and
	// transaction type. Not retried.
	ErrDuplicateFact = errors.New("duplicate fact")

	// ErrQuantityInconsistency reports shipped or returned quantities that
	// exceed what was ordered or shipped.
	ErrQuantityInconsistency = errors.New("quantity inconsistency")

	// ErrTimestampOrder reports order, payment, ship and delivery
	// timestamps that go backwards.
	ErrTimestampOrder = errors.New("timestamp order violation")

	// ErrUnresolvedReference reports a reference to a business key that has
	// not been loaded yet. Retryable.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrOutOfOrderVersion reports a dimension change dated at or before the
	// start of the current version.
	ErrOutOfOrderVersion = errors.New("out of order dimension version")

	// ErrMalformedBatch reports input that cannot be read as a batch at all.
	// It is fatal to the whole batch.
	ErrMalformedBatch = errors.New("malformed batch")

	// ErrSurrogateKeyConflict reports a warehouse row stored under a
	// surrogate key that belongs to another business key.
	ErrSurrogateKeyConflict = errors.New("surrogate key conflict")
)

// IsRetryable reports whether err is worth retrying after dimensions catch
// up.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnresolvedReference) || errors.Is(err, ErrNoMatchingVersion)
}

// FieldError ties a failure to the input field that caused it.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

// NewFieldError creates a FieldError with a formatted reason.
func NewFieldError(field string, err error, format string, args ...any) *FieldError {
	return &FieldError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
		Err:    err,
	}
}

func (e *FieldError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %v: %s", e.Field, e.Err, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// InvalidAttribute is shorthand for a FieldError wrapping ErrInvalidAttribute.
func InvalidAttribute(field, format string, args ...any) *FieldError {
	return NewFieldError(field, ErrInvalidAttribute, format, args...)
}
