package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrEventNotFound       = errors.New("event not found")
	ErrSeatNotFound        = errors.New("seat not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrAlreadyFinalized    = errors.New("reservation already finalized")
	ErrExpiredReservation  = errors.New("reservation expired")
	ErrConcurrencyConflict = errors.New("concurrent modification")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnknownStatus       = errors.New("unknown status")

	// ErrLockWaitExpired is returned when seat-lock acquisition exceeds its
	// bound. Retryable: the contending critical section is short.
	ErrLockWaitExpired = errors.New("seat lock wait expired")

	// ErrStoreUnavailable wraps persistence failures on client-facing
	// transitions. Retryable: no in-memory state was left modified.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// SeatUnavailableError names every requested seat that was not Available at
// check time so the caller can let the user re-pick.
type SeatUnavailableError struct {
	SeatIDs []uuid.UUID
}

func (e *SeatUnavailableError) Error() string {
	ids := make([]string, len(e.SeatIDs))
	for i, id := range e.SeatIDs {
		ids[i] = id.String()
	}
	sort.Strings(ids)
	return fmt.Sprintf("seats unavailable: %s", strings.Join(ids, ", "))
}

// IsRetryable reports whether the caller may retry the operation with a
// fresh read, per the propagation policy for transition errors.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrLockWaitExpired) ||
		errors.Is(err, ErrStoreUnavailable)
}
