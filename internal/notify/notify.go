// Package notify is the outbound announcement surface for committed
// reservation transitions. Delivery is best-effort and fire-and-forget: an
// emit failure never blocks or rolls back the transition that produced it.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TopicSeatsHeld            = "seats.held"
	TopicSeatsReleased        = "seats.released"
	TopicReservationPaid      = "reservation.paid"
	TopicReservationCancelled = "reservation.cancelled"
	TopicReservationExpired   = "reservation.expired"
)

type Event struct {
	ID            uuid.UUID   `json:"id"`
	Topic         string      `json:"topic"`
	ReservationID uuid.UUID   `json:"reservation_id"`
	EventID       uuid.UUID   `json:"event_id"`
	UserID        uuid.UUID   `json:"user_id"`
	SeatIDs       []uuid.UUID `json:"seat_ids"`
	Amount        float64     `json:"amount"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

func (e Event) Payload() []byte {
	data, _ := json.Marshal(e)
	return data
}

type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// Nop discards events; for tests and for running without a broker.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}
