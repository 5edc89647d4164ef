package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sre_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	HoldsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sre_holds_created_total",
			Help: "Reservations created as Pending holds",
		},
	)

	SeatConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sre_seat_conflicts_total",
			Help: "Hold attempts rejected because a seat was unavailable",
		},
	)

	Payments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sre_payments_total",
			Help: "Reservations transitioned to Paid",
		},
	)

	Cancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sre_cancellations_total",
			Help: "Reservations transitioned to Cancelled",
		},
		[]string{"reason"}, // user, admin, expired
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sre_sweep_seconds",
			Help:    "Duration of one expiration sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweepRaceLosses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sre_sweep_race_losses_total",
			Help: "Expirations skipped because a concurrent transition won",
		},
	)

	LockWaitTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sre_lock_wait_timeouts_total",
			Help: "Seat lock acquisitions that exceeded the wait bound",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sre_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sre_rate_limit_exceeded_total",
			Help: "Requests rejected by rate limiting",
		},
	)
)
