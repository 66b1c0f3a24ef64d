// internal/app/groupbuy/errors.go
package groupbuy

import (
	"errors"
	"fmt"
)

// Business-rule failures are expected and returned typed for the caller to
// render. ErrConcurrencyConflict and persistence failures are retried by
// the caller at the request level, never internally.
var (
	ErrGroupNotFound       = errors.New("group not found")
	ErrGroupEnded          = errors.New("group has ended")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrNotParticipant      = errors.New("no active participation in this group")
	ErrInsufficientSlots   = errors.New("not enough slots available")
	ErrConcurrencyConflict = errors.New("operation conflicted with a concurrent request; retry")
	ErrInvalidStatus       = errors.New("unknown group status")
	ErrPersistence         = errors.New("persistence failure")
)

// InsufficientSlotsError carries the real availability so the caller can
// offer a reduced quantity. errors.Is(err, ErrInsufficientSlots) matches.
type InsufficientSlotsError struct {
	Available int64
}

func (e *InsufficientSlotsError) Error() string {
	return fmt.Sprintf("not enough slots available (%d left)", e.Available)
}

func (e *InsufficientSlotsError) Is(target error) bool {
	return target == ErrInsufficientSlots
}

// PersistenceError wraps a datastore error. It is always surfaced, never
// swallowed: a partial write here risks the count/ledger invariants.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
