// Package sweeper reclaims seats from holds whose TTL elapsed without
// payment. One periodic task scans the ledger and drives each overdue
// Pending reservation to Cancelled.
package sweeper

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservation-engine/internal/clock"
	"github.com/robertarktes/seat-reservation-engine/internal/domain"
	"github.com/robertarktes/seat-reservation-engine/internal/observability"
)

const defaultInterval = time.Minute

// Ledger is the slice of the reservation ledger the sweeper needs.
type Ledger interface {
	OverduePending(now time.Time) []uuid.UUID
	Expire(ctx context.Context, reservationID uuid.UUID) error
}

type Sweeper struct {
	ledger   Ledger
	clk      clock.Clock
	logger   observability.Logger
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(s *Sweeper) { s.clk = clk }
}

func New(ledger Ledger, logger observability.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		ledger:   ledger,
		clk:      clock.NewSystem(),
		logger:   logger,
		interval: defaultInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the periodic sweep. It returns immediately; use Stop for a
// clean shutdown.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop signals the sweep loop and waits for the in-flight tick to drain.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("expiration sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one scan-and-reclaim cycle. Failures on an individual
// reservation never halt the sweep: the expected races (a payment won, an
// admin cancelled first) are skipped, anything else is logged and the cycle
// continues with the remaining candidates.
func (s *Sweeper) Sweep(ctx context.Context) {
	started := time.Now()
	defer func() {
		observability.SweepDuration.Observe(time.Since(started).Seconds())
	}()

	due := s.ledger.OverduePending(s.clk.Now())
	for _, id := range due {
		err := s.ledger.Expire(ctx, id)
		switch {
		case err == nil:
			s.logger.WithField("reservation_id", id).Info("expired hold reclaimed")
		case errors.Is(err, domain.ErrConcurrencyConflict),
			errors.Is(err, domain.ErrInvalidTransition),
			errors.Is(err, domain.ErrReservationNotFound):
			observability.SweepRaceLosses.Inc()
			s.logger.WithError(err).WithField("reservation_id", id).Debug("skipping reservation this tick")
		default:
			s.logger.WithError(err).WithField("reservation_id", id).Error("failed to expire reservation")
		}
	}
}
