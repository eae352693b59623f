package models

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrEmptyEvent      = errors.New("event has no recorded pings")
	ErrMalformedRow    = errors.New("malformed ping row")
	ErrCoordination    = errors.New("unexpected coordination payload")
	ErrSessionNotFound = errors.New("session not found")
)

// StoreError reports a failed read or write against the tabular backend
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err, mapping sql.ErrNoRows to ErrNotFound
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return &StoreError{Op: op, Err: err}
}
