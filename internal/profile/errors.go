package profile

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is.
var (
	ErrTableNotFound  = errors.New("table not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrStore          = errors.New("store error")

	// ErrNoColumnsLeft is returned by DropColumns when every column of the
	// table would be removed.
	ErrNoColumnsLeft = errors.New("cannot drop every column of a table")

	// ErrInvalidLimit is returned by SampleByPredicate for limit <= 0.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrInvalidPredicate is returned for an unknown predicate kind or a
	// pattern predicate without a pattern.
	ErrInvalidPredicate = errors.New("invalid predicate")
)

// NotFoundError reports a table that does not exist in the store.
type NotFoundError struct {
	Table string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("table %q not found", e.Table)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrTableNotFound }

// ColumnNotFoundError reports a column absent from a table's current schema.
type ColumnNotFoundError struct {
	Table  string
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found in table %q", e.Column, e.Table)
}

func (e *ColumnNotFoundError) Is(target error) bool { return target == ErrColumnNotFound }

// StoreError wraps a failure of the underlying database.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
