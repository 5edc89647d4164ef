package inventory_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservation-engine/internal/domain"
	"github.com/robertarktes/seat-reservation-engine/internal/inventory"
	"golang.org/x/sync/errgroup"
)

func newInventory(t *testing.T, n int) (*inventory.Inventory, []uuid.UUID) {
	t.Helper()
	eventID := uuid.New()
	seats := make([]domain.Seat, n)
	ids := make([]uuid.UUID, n)
	for i := range seats {
		ids[i] = uuid.New()
		seats[i] = domain.Seat{
			ID:      ids[i],
			EventID: eventID,
			Number:  "A-" + string(rune('1'+i)),
			Price:   50.0,
			Status:  domain.SeatAvailable,
		}
	}
	inv := inventory.New()
	inv.Load(seats)
	return inv, ids
}

func statusOf(t *testing.T, inv *inventory.Inventory, id uuid.UUID) domain.SeatStatus {
	t.Helper()
	seat, err := inv.Seat(id)
	if err != nil {
		t.Fatalf("seat lookup: %v", err)
	}
	return seat.Status
}

func TestTryHold_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	inv, ids := newInventory(t, 3)

	if err := inv.TryHold(ctx, ids[:2]); err != nil {
		t.Fatalf("expected hold to succeed, got %v", err)
	}
	for _, id := range ids[:2] {
		if got := statusOf(t, inv, id); got != domain.SeatHeld {
			t.Errorf("seat %s: expected HELD, got %s", id, got)
		}
	}

	// Overlapping request must fail without touching the free seat.
	err := inv.TryHold(ctx, []uuid.UUID{ids[1], ids[2]})
	var unavail *domain.SeatUnavailableError
	if !errors.As(err, &unavail) {
		t.Fatalf("expected SeatUnavailableError, got %v", err)
	}
	if len(unavail.SeatIDs) != 1 || unavail.SeatIDs[0] != ids[1] {
		t.Errorf("expected conflict to name seat %s, got %v", ids[1], unavail.SeatIDs)
	}
	if got := statusOf(t, inv, ids[2]); got != domain.SeatAvailable {
		t.Errorf("failed hold must not change seat %s, got %s", ids[2], got)
	}
}

func TestTryHold_UnknownSeat(t *testing.T) {
	ctx := context.Background()
	inv, ids := newInventory(t, 1)

	err := inv.TryHold(ctx, []uuid.UUID{ids[0], uuid.New()})
	if !errors.Is(err, domain.ErrSeatNotFound) {
		t.Fatalf("expected ErrSeatNotFound, got %v", err)
	}
	if got := statusOf(t, inv, ids[0]); got != domain.SeatAvailable {
		t.Errorf("expected seat untouched, got %s", got)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	ctx := context.Background()
	inv, ids := newInventory(t, 2)

	if err := inv.TryHold(ctx, ids); err != nil {
		t.Fatal(err)
	}
	if err := inv.Release(ctx, ids); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := inv.Release(ctx, ids); err != nil {
		t.Fatalf("second release must be a no-op, got %v", err)
	}
	for _, id := range ids {
		if got := statusOf(t, inv, id); got != domain.SeatAvailable {
			t.Errorf("seat %s: expected AVAILABLE, got %s", id, got)
		}
	}
}

func TestFinalize_RequiresHeld(t *testing.T) {
	ctx := context.Background()
	inv, ids := newInventory(t, 2)

	if err := inv.Finalize(ctx, ids); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for available seats, got %v", err)
	}

	if err := inv.TryHold(ctx, ids[:1]); err != nil {
		t.Fatal(err)
	}
	// Mixed set: one held, one available. Nothing may change.
	if err := inv.Finalize(ctx, ids); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for mixed set, got %v", err)
	}
	if got := statusOf(t, inv, ids[0]); got != domain.SeatHeld {
		t.Errorf("failed finalize must not change seat %s, got %s", ids[0], got)
	}

	if err := inv.Finalize(ctx, ids[:1]); err != nil {
		t.Fatalf("finalize held seat: %v", err)
	}
	if got := statusOf(t, inv, ids[0]); got != domain.SeatFinalized {
		t.Errorf("expected FINALIZED, got %s", got)
	}
}

// Concurrent overlapping hold requests must never double-allocate: after all
// requests settle, the held seats are exactly the union of the winners'
// seat sets and no seat belongs to two winners.
func TestConcurrentHolds_NoDoubleAllocation(t *testing.T) {
	ctx := context.Background()
	inv, ids := newInventory(t, 8)

	// Overlapping windows of 3 seats each plus reversed variants, so lock
	// order discipline is actually exercised.
	var requests [][]uuid.UUID
	for i := 0; i+3 <= len(ids); i++ {
		window := append([]uuid.UUID(nil), ids[i:i+3]...)
		requests = append(requests, window)
		reversed := []uuid.UUID{window[2], window[1], window[0]}
		requests = append(requests, reversed)
	}

	results := make([]error, len(requests))
	g := new(errgroup.Group)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			results[i] = inv.TryHold(ctx, req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	wonBy := make(map[uuid.UUID]int)
	for i, err := range results {
		if err == nil {
			for _, id := range requests[i] {
				if prev, taken := wonBy[id]; taken {
					t.Fatalf("seat %s won by requests %d and %d", id, prev, i)
				}
				wonBy[id] = i
			}
			continue
		}
		var unavail *domain.SeatUnavailableError
		if !errors.As(err, &unavail) && !errors.Is(err, domain.ErrLockWaitExpired) {
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
	}

	for _, id := range ids {
		want := domain.SeatAvailable
		if _, won := wonBy[id]; won {
			want = domain.SeatHeld
		}
		if got := statusOf(t, inv, id); got != want {
			t.Errorf("seat %s: expected %s, got %s", id, want, got)
		}
	}
}

func TestDisjointHoldsBothSucceed(t *testing.T) {
	ctx := context.Background()
	inv, ids := newInventory(t, 4)

	g := new(errgroup.Group)
	g.Go(func() error { return inv.TryHold(ctx, ids[:2]) })
	g.Go(func() error { return inv.TryHold(ctx, ids[2:]) })
	if err := g.Wait(); err != nil {
		t.Fatalf("disjoint holds must both succeed, got %v", err)
	}
	for _, id := range ids {
		if got := statusOf(t, inv, id); got != domain.SeatHeld {
			t.Errorf("seat %s: expected HELD, got %s", id, got)
		}
	}
}
