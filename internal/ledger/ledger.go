// Package ledger owns reservation records and enforces the reservation
// state machine: Pending -> Paid | Cancelled. Every seat-status change in
// the system flows through a ledger transition.
//
// Transitions follow an optimistic version protocol: read the reservation
// with its version, validate the guards, then commit only if the version is
// unchanged, incrementing it. A concurrent Pay and Expire therefore resolve
// deterministically: whichever commits its version bump first wins and the
// loser fails with ErrConcurrencyConflict or observes the terminal state.
package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservation-engine/internal/clock"
	"github.com/robertarktes/seat-reservation-engine/internal/domain"
	"github.com/robertarktes/seat-reservation-engine/internal/inventory"
	"github.com/robertarktes/seat-reservation-engine/internal/notify"
	"github.com/robertarktes/seat-reservation-engine/internal/observability"
)

const (
	defaultHoldTTL      = 15 * time.Minute
	defaultCancelCutoff = 24 * time.Hour
)

type entry struct {
	mu  sync.Mutex
	res domain.Reservation
}

func (e *entry) snapshot() domain.Reservation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.res.Clone()
}

type Ledger struct {
	inv     *inventory.Inventory
	store   Store
	catalog Catalog
	emitter notify.Emitter
	auditor Auditor
	clk     clock.Clock
	logger  observability.Logger

	holdTTL              time.Duration
	cancelCutoff         time.Duration
	allowPastEventCancel bool

	mu           sync.RWMutex
	reservations map[uuid.UUID]*entry
}

type Option func(*Ledger)

func WithClock(clk clock.Clock) Option {
	return func(l *Ledger) { l.clk = clk }
}

func WithHoldTTL(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.holdTTL = d
		}
	}
}

func WithCancelCutoff(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.cancelCutoff = d
		}
	}
}

// WithPastEventCancel controls whether a reservation for an event that has
// already started can still be cancelled (admins included).
func WithPastEventCancel(allow bool) Option {
	return func(l *Ledger) { l.allowPastEventCancel = allow }
}

func WithAuditor(a Auditor) Option {
	return func(l *Ledger) { l.auditor = a }
}

func New(inv *inventory.Inventory, store Store, catalog Catalog, emitter notify.Emitter, logger observability.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		inv:                  inv,
		store:                store,
		catalog:              catalog,
		emitter:              emitter,
		clk:                  clock.NewSystem(),
		logger:               logger,
		holdTTL:              defaultHoldTTL,
		cancelCutoff:         defaultCancelCutoff,
		allowPastEventCancel: true,
		reservations:         make(map[uuid.UUID]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Restore seeds the ledger from durable state before concurrent access.
func (l *Ledger) Restore(reservations []domain.Reservation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range reservations {
		l.reservations[r.ID] = &entry{res: r.Clone()}
	}
}

// CreateHold atomically holds the requested seats and records a Pending
// reservation with a TTL. On any failure after the seats were held, the
// hold is rolled back before returning.
func (l *Ledger) CreateHold(ctx context.Context, actor Actor, eventID uuid.UUID, seatIDs []uuid.UUID) (domain.Reservation, error) {
	if len(seatIDs) == 0 {
		return domain.Reservation{}, errors.Wrap(domain.ErrInvalidInput, "no seats requested")
	}
	seen := make(map[uuid.UUID]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if _, dup := seen[id]; dup {
			return domain.Reservation{}, errors.Wrapf(domain.ErrInvalidInput, "duplicate seat %s", id)
		}
		seen[id] = struct{}{}
	}

	if _, err := l.catalog.GetEvent(ctx, eventID); err != nil {
		return domain.Reservation{}, err
	}

	if err := l.inv.TryHold(ctx, seatIDs); err != nil {
		var unavail *domain.SeatUnavailableError
		if errors.As(err, &unavail) {
			observability.SeatConflicts.Inc()
		}
		return domain.Reservation{}, err
	}

	total := 0.0
	for _, id := range seatIDs {
		seat, err := l.inv.Seat(id)
		if err != nil {
			l.rollbackSeats(ctx, seatIDs, domain.SeatAvailable)
			return domain.Reservation{}, err
		}
		total += seat.Price
	}

	now := l.clk.Now()
	expires := now.Add(l.holdTTL)
	res := domain.Reservation{
		ID:          uuid.New(),
		EventID:     eventID,
		UserID:      actor.ID,
		SeatIDs:     append([]uuid.UUID(nil), seatIDs...),
		Status:      domain.ReservationPending,
		TotalAmount: total,
		ExpiresAt:   &expires,
		Version:     1,
		CreatedAt:   now,
	}

	batch := Batch{
		Reservation: res,
		SeatStatus:  seatStatuses(seatIDs, domain.SeatHeld),
		Event:       l.event(notify.TopicSeatsHeld, res, now),
	}
	if err := l.store.Commit(ctx, batch); err != nil {
		l.rollbackSeats(ctx, seatIDs, domain.SeatAvailable)
		return domain.Reservation{}, errors.Mark(errors.Wrap(err, "commit hold"), domain.ErrStoreUnavailable)
	}

	l.mu.Lock()
	l.reservations[res.ID] = &entry{res: res.Clone()}
	l.mu.Unlock()

	observability.HoldsCreated.Inc()
	l.emitter.Emit(ctx, batch.Event)
	l.audit(ctx, "reservation.hold", res)
	return res, nil
}

// Pay drives Pending -> Paid, finalizing the seats. Payment itself is a
// trusted operation invoked by the caller; the ledger only validates the
// transition.
func (l *Ledger) Pay(ctx context.Context, actor Actor, reservationID uuid.UUID) (domain.Reservation, error) {
	e, err := l.entryOf(reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	snap := e.snapshot()

	if !actor.mayAccess(snap) {
		return domain.Reservation{}, errors.Wrap(domain.ErrForbidden, "not the reservation owner")
	}
	switch snap.Status {
	case domain.ReservationPaid:
		return domain.Reservation{}, domain.ErrAlreadyFinalized
	case domain.ReservationCancelled:
		return domain.Reservation{}, errors.Wrap(domain.ErrInvalidTransition, "reservation is cancelled")
	}
	now := l.clk.Now()
	if snap.Expired(now) {
		return domain.Reservation{}, domain.ErrExpiredReservation
	}

	next := snap.Clone()
	next.Status = domain.ReservationPaid
	next.ExpiresAt = nil
	next.PaymentRef = paymentRef()
	next.Version = snap.Version + 1

	err = l.commit(ctx, e, snap.Version, next, commitPlan{
		seatStatus: seatStatuses(snap.SeatIDs, domain.SeatFinalized),
		rollback:   seatStatuses(snap.SeatIDs, domain.SeatHeld),
		invOp: func(ctx context.Context) error {
			return l.inv.Finalize(ctx, snap.SeatIDs)
		},
		event: l.event(notify.TopicReservationPaid, next, now),
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	observability.Payments.Inc()
	l.audit(ctx, "reservation.paid", next)
	return next.Clone(), nil
}

// Cancel drives Pending|Paid -> Cancelled on behalf of the owner or an
// admin, releasing the seats. Non-admins are held to the cancellation
// cutoff before event start; cancelling a Paid reservation marks a refund.
func (l *Ledger) Cancel(ctx context.Context, actor Actor, reservationID uuid.UUID) (domain.Reservation, error) {
	e, err := l.entryOf(reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	snap := e.snapshot()

	if !actor.mayAccess(snap) {
		return domain.Reservation{}, errors.Wrap(domain.ErrForbidden, "not the reservation owner")
	}
	if snap.Status == domain.ReservationCancelled {
		return domain.Reservation{}, errors.Wrap(domain.ErrInvalidTransition, "reservation already cancelled")
	}

	ev, err := l.catalog.GetEvent(ctx, snap.EventID)
	if err != nil {
		return domain.Reservation{}, err
	}
	now := l.clk.Now()
	if !l.allowPastEventCancel && ev.StartsAt.Before(now) {
		return domain.Reservation{}, errors.Wrap(domain.ErrForbidden, "event already started")
	}
	if !actor.Admin && ev.StartsAt.Sub(now) < l.cancelCutoff {
		return domain.Reservation{}, errors.Wrapf(domain.ErrForbidden, "cancellation closes %s before event start", l.cancelCutoff)
	}

	next := snap.Clone()
	next.Status = domain.ReservationCancelled
	next.ExpiresAt = nil
	next.Version = snap.Version + 1
	if snap.Status == domain.ReservationPaid {
		next.RefundIssued = true
	}

	prior := domain.SeatHeld
	if snap.Status == domain.ReservationPaid {
		prior = domain.SeatFinalized
	}
	err = l.commit(ctx, e, snap.Version, next, commitPlan{
		seatStatus: seatStatuses(snap.SeatIDs, domain.SeatAvailable),
		rollback:   seatStatuses(snap.SeatIDs, prior),
		invOp: func(ctx context.Context) error {
			return l.inv.Release(ctx, snap.SeatIDs)
		},
		event: l.event(notify.TopicReservationCancelled, next, now),
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	reason := "user"
	if actor.Admin {
		reason = "admin"
	}
	observability.Cancellations.WithLabelValues(reason).Inc()
	l.emitter.Emit(ctx, l.event(notify.TopicSeatsReleased, next, now))
	l.audit(ctx, "reservation.cancelled", next)
	return next.Clone(), nil
}

// Expire drives an overdue Pending hold to Cancelled. Invoked by the
// sweeper; losing the version race to a concurrent Pay is expected and
// surfaces as ErrConcurrencyConflict or ErrInvalidTransition.
func (l *Ledger) Expire(ctx context.Context, reservationID uuid.UUID) error {
	e, err := l.entryOf(reservationID)
	if err != nil {
		return err
	}
	snap := e.snapshot()

	if snap.Status != domain.ReservationPending {
		return errors.Wrapf(domain.ErrInvalidTransition, "reservation is %s", snap.Status)
	}
	now := l.clk.Now()
	if !snap.Expired(now) {
		return errors.Wrap(domain.ErrInvalidTransition, "reservation not yet expired")
	}

	next := snap.Clone()
	next.Status = domain.ReservationCancelled
	next.ExpiresAt = nil
	next.Version = snap.Version + 1

	err = l.commit(ctx, e, snap.Version, next, commitPlan{
		seatStatus: seatStatuses(snap.SeatIDs, domain.SeatAvailable),
		rollback:   seatStatuses(snap.SeatIDs, domain.SeatHeld),
		invOp: func(ctx context.Context) error {
			return l.inv.Release(ctx, snap.SeatIDs)
		},
		event: l.event(notify.TopicReservationExpired, next, now),
	})
	if err != nil {
		return err
	}

	observability.Cancellations.WithLabelValues("expired").Inc()
	l.emitter.Emit(ctx, l.event(notify.TopicSeatsReleased, next, now))
	l.audit(ctx, "reservation.expired", next)
	return nil
}

// Get returns the reservation to its owner or an admin.
func (l *Ledger) Get(_ context.Context, actor Actor, reservationID uuid.UUID) (domain.Reservation, error) {
	e, err := l.entryOf(reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	snap := e.snapshot()
	if !actor.mayAccess(snap) {
		return domain.Reservation{}, errors.Wrap(domain.ErrForbidden, "not the reservation owner")
	}
	return snap, nil
}

// ListByOwner returns the actor's own reservations, newest first.
func (l *Ledger) ListByOwner(_ context.Context, actor Actor) []domain.Reservation {
	return l.list(func(r domain.Reservation) bool { return r.UserID == actor.ID })
}

// ListAll returns every reservation; admin only.
func (l *Ledger) ListAll(_ context.Context, actor Actor) ([]domain.Reservation, error) {
	if !actor.Admin {
		return nil, errors.Wrap(domain.ErrForbidden, "admin only")
	}
	return l.list(func(domain.Reservation) bool { return true }), nil
}

// OverduePending returns the IDs of Pending reservations whose TTL elapsed
// before now. The sweep is level-triggered: anything that survives a tick
// because of a race is picked up again on the next one.
func (l *Ledger) OverduePending(now time.Time) []uuid.UUID {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.reservations))
	for _, e := range l.reservations {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	var due []uuid.UUID
	for _, e := range entries {
		if snap := e.snapshot(); snap.Expired(now) {
			due = append(due, snap.ID)
		}
	}
	return due
}

type commitPlan struct {
	seatStatus map[uuid.UUID]domain.SeatStatus
	rollback   map[uuid.UUID]domain.SeatStatus
	invOp      func(ctx context.Context) error
	event      notify.Event
}

// commit applies one validated transition under the reservation's lock: the
// version is re-checked, the inventory change applied, the batch durably
// committed, and only then the in-memory record replaced. A persistence
// failure rolls the inventory back so memory never runs ahead of storage.
func (l *Ledger) commit(ctx context.Context, e *entry, expect uint64, next domain.Reservation, plan commitPlan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.res.Version != expect {
		return errors.Wrapf(domain.ErrConcurrencyConflict, "reservation %s at version %d, expected %d", next.ID, e.res.Version, expect)
	}

	if err := plan.invOp(ctx); err != nil {
		return err
	}

	batch := Batch{Reservation: next, SeatStatus: plan.seatStatus, Event: plan.event}
	if err := l.store.Commit(ctx, batch); err != nil {
		if rbErr := l.inv.SetStatuses(ctx, plan.rollback); rbErr != nil {
			l.logger.WithError(rbErr).WithField("reservation_id", next.ID).Error("failed to roll back seat statuses")
		}
		return errors.Mark(errors.Wrap(err, "commit transition"), domain.ErrStoreUnavailable)
	}

	e.res = next.Clone()
	l.emitter.Emit(ctx, plan.event)
	return nil
}

func (l *Ledger) entryOf(id uuid.UUID) (*entry, error) {
	l.mu.RLock()
	e, ok := l.reservations[id]
	l.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
	}
	return e, nil
}

func (l *Ledger) list(keep func(domain.Reservation) bool) []domain.Reservation {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.reservations))
	for _, e := range l.reservations {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	var out []domain.Reservation
	for _, e := range entries {
		if snap := e.snapshot(); keep(snap) {
			out = append(out, snap)
		}
	}
	return out
}

func (l *Ledger) event(topic string, res domain.Reservation, now time.Time) notify.Event {
	return notify.Event{
		ID:            uuid.New(),
		Topic:         topic,
		ReservationID: res.ID,
		EventID:       res.EventID,
		UserID:        res.UserID,
		SeatIDs:       append([]uuid.UUID(nil), res.SeatIDs...),
		Amount:        res.TotalAmount,
		OccurredAt:    now,
	}
}

func (l *Ledger) audit(ctx context.Context, action string, res domain.Reservation) {
	if l.auditor == nil {
		return
	}
	if err := l.auditor.RecordTransition(ctx, action, res); err != nil {
		l.logger.WithError(err).WithField("reservation_id", res.ID).Warn("audit record failed")
	}
}

func (l *Ledger) rollbackSeats(ctx context.Context, seatIDs []uuid.UUID, status domain.SeatStatus) {
	if err := l.inv.SetStatuses(ctx, seatStatuses(seatIDs, status)); err != nil {
		l.logger.WithError(err).Error("failed to roll back seat statuses")
	}
}

func seatStatuses(seatIDs []uuid.UUID, status domain.SeatStatus) map[uuid.UUID]domain.SeatStatus {
	out := make(map[uuid.UUID]domain.SeatStatus, len(seatIDs))
	for _, id := range seatIDs {
		out[id] = status
	}
	return out
}

func paymentRef() string {
	return "PAY-" + strings.ToUpper(uuid.New().String()[:8])
}
