// Package inventory owns per-seat status and provides the only atomic
// primitive for multi-seat transitions. Every operation acquires per-seat
// locks in ascending seat-ID order and releases them in reverse, so two
// callers contending for overlapping seat sets serialize here and can never
// deadlock; callers for disjoint sets proceed in parallel.
package inventory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservation-engine/internal/domain"
	"github.com/robertarktes/seat-reservation-engine/internal/observability"
)

const defaultLockWait = 2 * time.Second

type seatSlot struct {
	// lock is a one-slot semaphore instead of a sync.Mutex so acquisition
	// can race a deadline in a select.
	lock chan struct{}
	seat domain.Seat
}

type Inventory struct {
	mu       sync.RWMutex // guards the map, not seat status
	seats    map[uuid.UUID]*seatSlot
	lockWait time.Duration
}

type Option func(*Inventory)

// WithLockWait bounds how long a multi-seat operation waits for seat locks
// before surfacing a retryable error.
func WithLockWait(d time.Duration) Option {
	return func(inv *Inventory) {
		if d > 0 {
			inv.lockWait = d
		}
	}
}

func New(opts ...Option) *Inventory {
	inv := &Inventory{
		seats:    make(map[uuid.UUID]*seatSlot),
		lockWait: defaultLockWait,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Load seeds the inventory from durable state. Callers run it before any
// concurrent access.
func (inv *Inventory) Load(seats []domain.Seat) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, s := range seats {
		inv.seats[s.ID] = &seatSlot{
			lock: make(chan struct{}, 1),
			seat: s,
		}
	}
}

// TryHold transitions every requested seat Available -> Held as one atomic
// unit. On failure nothing changes and the returned SeatUnavailableError
// names every seat that was not Available at check time.
func (inv *Inventory) TryHold(ctx context.Context, seatIDs []uuid.UUID) error {
	return inv.withSeats(ctx, seatIDs, func(slots []*seatSlot) error {
		var unavailable []uuid.UUID
		for _, sl := range slots {
			if sl.seat.Status != domain.SeatAvailable {
				unavailable = append(unavailable, sl.seat.ID)
			}
		}
		if len(unavailable) > 0 {
			return &domain.SeatUnavailableError{SeatIDs: unavailable}
		}
		for _, sl := range slots {
			sl.seat.Status = domain.SeatHeld
		}
		return nil
	})
}

// Release transitions the given seats back to Available. Idempotent:
// releasing an already-Available seat is a no-op.
func (inv *Inventory) Release(ctx context.Context, seatIDs []uuid.UUID) error {
	return inv.withSeats(ctx, seatIDs, func(slots []*seatSlot) error {
		for _, sl := range slots {
			sl.seat.Status = domain.SeatAvailable
		}
		return nil
	})
}

// Finalize transitions Held -> Finalized. Fails without mutating anything if
// any seat is not currently Held.
func (inv *Inventory) Finalize(ctx context.Context, seatIDs []uuid.UUID) error {
	return inv.withSeats(ctx, seatIDs, func(slots []*seatSlot) error {
		for _, sl := range slots {
			if sl.seat.Status != domain.SeatHeld {
				return errors.Wrapf(domain.ErrInvalidTransition, "seat %s is %s, not HELD", sl.seat.ID, sl.seat.Status)
			}
		}
		for _, sl := range slots {
			sl.seat.Status = domain.SeatFinalized
		}
		return nil
	})
}

// SetStatuses force-applies seat statuses. It bypasses transition checks and
// exists only so the ledger can roll back an in-memory change whose durable
// commit failed.
func (inv *Inventory) SetStatuses(ctx context.Context, statuses map[uuid.UUID]domain.SeatStatus) error {
	ids := make([]uuid.UUID, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	return inv.withSeats(ctx, ids, func(slots []*seatSlot) error {
		for _, sl := range slots {
			sl.seat.Status = statuses[sl.seat.ID]
		}
		return nil
	})
}

// Seat returns a copy of the seat record.
func (inv *Inventory) Seat(id uuid.UUID) (domain.Seat, error) {
	inv.mu.RLock()
	sl, ok := inv.seats[id]
	inv.mu.RUnlock()
	if !ok {
		return domain.Seat{}, errors.Wrapf(domain.ErrSeatNotFound, "seat %s", id)
	}
	sl.lock <- struct{}{}
	seat := sl.seat
	<-sl.lock
	return seat, nil
}

// SeatsByEvent returns copies of every seat belonging to the event, ordered
// by seat number for stable seat maps.
func (inv *Inventory) SeatsByEvent(eventID uuid.UUID) []domain.Seat {
	inv.mu.RLock()
	slots := make([]*seatSlot, 0, len(inv.seats))
	for _, sl := range inv.seats {
		slots = append(slots, sl)
	}
	inv.mu.RUnlock()

	var out []domain.Seat
	for _, sl := range slots {
		sl.lock <- struct{}{}
		seat := sl.seat
		<-sl.lock
		if seat.EventID == eventID {
			out = append(out, seat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// withSeats resolves, sorts and locks the requested seats, runs fn, then
// unlocks in reverse order. fn sees every seat locked and may mutate status.
func (inv *Inventory) withSeats(ctx context.Context, seatIDs []uuid.UUID, fn func([]*seatSlot) error) error {
	sorted := append([]uuid.UUID(nil), seatIDs...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	inv.mu.RLock()
	slots := make([]*seatSlot, 0, len(sorted))
	for _, id := range sorted {
		sl, ok := inv.seats[id]
		if !ok {
			inv.mu.RUnlock()
			return errors.Wrapf(domain.ErrSeatNotFound, "seat %s", id)
		}
		slots = append(slots, sl)
	}
	inv.mu.RUnlock()

	acquired, err := inv.acquire(ctx, slots)
	if err != nil {
		return err
	}
	defer releaseLocks(acquired)

	return fn(slots)
}

// acquire takes every slot's lock in the already-sorted order. One deadline
// covers the whole sequence; on timeout or cancellation the locks taken so
// far are released and the caller gets a retryable error.
func (inv *Inventory) acquire(ctx context.Context, slots []*seatSlot) ([]*seatSlot, error) {
	deadline := time.NewTimer(inv.lockWait)
	defer deadline.Stop()

	acquired := make([]*seatSlot, 0, len(slots))
	for _, sl := range slots {
		select {
		case sl.lock <- struct{}{}:
			acquired = append(acquired, sl)
		case <-deadline.C:
			releaseLocks(acquired)
			observability.LockWaitTimeouts.Inc()
			return nil, domain.ErrLockWaitExpired
		case <-ctx.Done():
			releaseLocks(acquired)
			return nil, errors.Wrap(ctx.Err(), "seat lock acquisition")
		}
	}
	return acquired, nil
}

func releaseLocks(acquired []*seatSlot) {
	for i := len(acquired) - 1; i >= 0; i-- {
		<-acquired[i].lock
	}
}
