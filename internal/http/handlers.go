package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservation-engine/internal/domain"
	"github.com/robertarktes/seat-reservation-engine/internal/idempotency"
	"github.com/robertarktes/seat-reservation-engine/internal/inventory"
	"github.com/robertarktes/seat-reservation-engine/internal/ledger"
)

type Handlers struct {
	ledger *ledger.Ledger
	inv    *inventory.Inventory
	idemp  *idempotency.Idempotency
}

func NewHandlers(ldg *ledger.Ledger, inv *inventory.Inventory, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{
		ledger: ldg,
		inv:    inv,
		idemp:  idemp,
	}
}

type reservationResponse struct {
	ID           uuid.UUID   `json:"id"`
	EventID      uuid.UUID   `json:"event_id"`
	UserID       uuid.UUID   `json:"user_id"`
	SeatIDs      []uuid.UUID `json:"seat_ids"`
	Status       string      `json:"status"`
	TotalAmount  float64     `json:"total_amount"`
	ExpiresAt    *string     `json:"expires_at"`
	CreatedAt    string      `json:"created_at"`
	PaymentRef   string      `json:"payment_ref,omitempty"`
	RefundIssued bool        `json:"refund_issued"`
}

func toResponse(res domain.Reservation) reservationResponse {
	out := reservationResponse{
		ID:           res.ID,
		EventID:      res.EventID,
		UserID:       res.UserID,
		SeatIDs:      res.SeatIDs,
		Status:       res.Status.String(),
		TotalAmount:  res.TotalAmount,
		CreatedAt:    res.CreatedAt.Format(time.RFC3339),
		PaymentRef:   res.PaymentRef,
		RefundIssued: res.RefundIssued,
	}
	if res.ExpiresAt != nil {
		s := res.ExpiresAt.Format(time.RFC3339)
		out.ExpiresAt = &s
	}
	return out
}

func (h *Handlers) CreateHold(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err == nil && existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		EventID uuid.UUID   `json:"event_id"`
		SeatIDs []uuid.UUID `json:"seat_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.ledger.CreateHold(r.Context(), actor, req.EventID, req.SeatIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	data, _ := json.Marshal(toResponse(res))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) Pay(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	res, err := h.ledger.Pay(r.Context(), actor, id)
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		// One fresh retry; a lost Pay-vs-Expire race resolves to a clean
		// terminal-state error on re-read.
		res, err = h.ledger.Pay(r.Context(), actor, id)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toResponse(res))
}

func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	res, err := h.ledger.Cancel(r.Context(), actor, id)
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		res, err = h.ledger.Cancel(r.Context(), actor, id)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toResponse(res))
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	res, err := h.ledger.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toResponse(res))
}

func (h *Handlers) ListMyReservations(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	out := []reservationResponse{}
	for _, res := range h.ledger.ListByOwner(r.Context(), actor) {
		out = append(out, toResponse(res))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (h *Handlers) ListReservations(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	all, err := h.ledger.ListAll(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	out := []reservationResponse{}
	for _, res := range all {
		out = append(out, toResponse(res))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (h *Handlers) GetEventSeats(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	type seatResponse struct {
		ID     uuid.UUID `json:"id"`
		Number string    `json:"number"`
		Row    string    `json:"row"`
		Zone   string    `json:"zone"`
		Price  float64   `json:"price"`
		Status string    `json:"status"`
	}
	out := []seatResponse{}
	for _, seat := range h.inv.SeatsByEvent(eventID) {
		out = append(out, seatResponse{
			ID:     seat.ID,
			Number: seat.Number,
			Row:    seat.Row,
			Zone:   seat.Zone,
			Price:  seat.Price,
			Status: seat.Status.String(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func writeError(w http.ResponseWriter, err error) {
	var unavail *domain.SeatUnavailableError
	switch {
	case errors.As(err, &unavail):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":    "seats unavailable",
			"seat_ids": unavail.SeatIDs,
		})
	case errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrSeatNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrExpiredReservation):
		http.Error(w, "your hold expired", http.StatusConflict)
	case errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrencyConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case domain.IsRetryable(err):
		http.Error(w, "temporarily unavailable, try again", http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
