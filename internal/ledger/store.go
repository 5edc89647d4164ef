package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservation-engine/internal/domain"
	"github.com/robertarktes/seat-reservation-engine/internal/notify"
)

// Batch is the durable image of one committed transition: the full
// reservation record, the seat statuses it changed, and the integration
// event for the outbox. The store applies it atomically or not at all.
type Batch struct {
	Reservation domain.Reservation
	SeatStatus  map[uuid.UUID]domain.SeatStatus
	Event       notify.Event
}

// Store is the persistence collaborator. The ledger commits the batch
// before applying a transition in memory; a Commit error therefore leaves
// the in-memory state unchanged (or rolled back) and is surfaced to the
// caller as retryable.
type Store interface {
	Load(ctx context.Context) ([]domain.Seat, []domain.Reservation, error)
	Commit(ctx context.Context, batch Batch) error
}

// Catalog supplies event existence and start time for the
// cancellation-cutoff guard.
type Catalog interface {
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
}

// Auditor records committed transitions out of band. Failures are logged,
// never propagated.
type Auditor interface {
	RecordTransition(ctx context.Context, action string, res domain.Reservation) error
}
