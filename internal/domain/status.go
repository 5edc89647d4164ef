package domain

// SeatStatus is the closed set of states a seat can be in. A seat in
// SeatHeld or SeatFinalized is referenced by exactly one active reservation.
type SeatStatus uint8

const (
	SeatAvailable SeatStatus = iota
	SeatHeld
	SeatFinalized
)

func (s SeatStatus) String() string {
	switch s {
	case SeatAvailable:
		return "AVAILABLE"
	case SeatHeld:
		return "HELD"
	case SeatFinalized:
		return "FINALIZED"
	}
	return "UNKNOWN"
}

// ParseSeatStatus maps the persisted representation back to the enum.
func ParseSeatStatus(s string) (SeatStatus, error) {
	switch s {
	case "AVAILABLE":
		return SeatAvailable, nil
	case "HELD":
		return SeatHeld, nil
	case "FINALIZED":
		return SeatFinalized, nil
	}
	return SeatAvailable, ErrUnknownStatus
}

// ReservationStatus is the closed set of reservation states. Pending is the
// only non-terminal state; Paid and Cancelled are terminal.
type ReservationStatus uint8

const (
	ReservationPending ReservationStatus = iota
	ReservationPaid
	ReservationCancelled
)

func (s ReservationStatus) String() string {
	switch s {
	case ReservationPending:
		return "PENDING"
	case ReservationPaid:
		return "PAID"
	case ReservationCancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

func (s ReservationStatus) Terminal() bool {
	return s == ReservationPaid || s == ReservationCancelled
}

func ParseReservationStatus(s string) (ReservationStatus, error) {
	switch s {
	case "PENDING":
		return ReservationPending, nil
	case "PAID":
		return ReservationPaid, nil
	case "CANCELLED":
		return ReservationCancelled, nil
	}
	return ReservationPending, ErrUnknownStatus
}
