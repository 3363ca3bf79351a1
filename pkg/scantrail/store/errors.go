package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates an unknown scan instance or event hash.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateInstance indicates a scan instance ID already exists.
	ErrDuplicateInstance = errors.New("scan instance already exists")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store is closed")

	// ErrInsufficientCriteria indicates fewer than two search criteria
	// were supplied. Unrestricted full-table searches are refused.
	ErrInsufficientCriteria = errors.New("at least two search criteria required")

	// ErrInvalidGrouping indicates an unknown result summary grouping.
	ErrInvalidGrouping = errors.New("invalid summary grouping")
)

// StoreError wraps a storage engine failure with the operation that hit it.
type StoreError struct {
	// Op is the operation that failed ("store event", "delete instance").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// SchemaError indicates the database schema could not be created or seeded.
// The store is unusable when initialization fails this way.
type SchemaError struct {
	Err error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("store: schema initialization failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.Err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

