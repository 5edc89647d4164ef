package ledger

import (
	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservation-engine/internal/domain"
)

// Actor is the identity pair supplied by the authentication boundary.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

// mayAccess is the capability predicate evaluated inside transition guards:
// admins may act on any reservation, everyone else only on their own.
func (a Actor) mayAccess(r domain.Reservation) bool {
	return a.Admin || a.ID == r.UserID
}
