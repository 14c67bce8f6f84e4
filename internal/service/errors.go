package service

import (
	"errors"
	"fmt"

	"zoneadmin/internal/repository"
)

// ErrNotFound is surfaced when the referenced pending transaction does not
// exist, including when a concurrent Complete already consumed it.
var ErrNotFound = repository.ErrNotFound

// ErrReferenceMismatch is surfaced when a caller-supplied reference id
// conflicts with a pending row's stored external_ref.
var ErrReferenceMismatch = errors.New("payment: reference id does not match stored external_ref")

// ValidationError reports missing or malformed caller input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payment: %s", e.Msg)
}

// StoreError wraps a transactional persistence failure. The enclosing
// operation has been rolled back; the pending row is intact for retry.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("payment: store failure: %v", e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
