package domain

import (
	"time"

	"github.com/google/uuid"
)

type Seat struct {
	ID      uuid.UUID
	EventID uuid.UUID
	Number  string // e.g. "A-12"
	Row     string
	Zone    string // e.g. "VIP", "Tribune"
	Price   float64
	Status  SeatStatus
}

type Reservation struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	UserID      uuid.UUID
	SeatIDs     []uuid.UUID // immutable after creation, non-empty
	Status      ReservationStatus
	TotalAmount float64 // fixed at creation, never recomputed
	ExpiresAt   *time.Time
	// Version is the optimistic concurrency token. Every committed
	// transition increments it; a transition that observes a stale
	// version fails with ErrConcurrencyConflict.
	Version      uint64
	CreatedAt    time.Time
	PaymentRef   string
	RefundIssued bool
}

// Clone returns a deep copy safe to hand out across goroutines.
func (r Reservation) Clone() Reservation {
	out := r
	out.SeatIDs = append([]uuid.UUID(nil), r.SeatIDs...)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}

// Expired reports whether the reservation is a Pending hold whose TTL has
// elapsed at the given instant.
func (r Reservation) Expired(now time.Time) bool {
	return r.Status == ReservationPending && r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

type Event struct {
	ID       uuid.UUID
	Name     string
	Venue    string
	StartsAt time.Time
}
