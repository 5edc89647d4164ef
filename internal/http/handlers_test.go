package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/seat-reservation-engine/internal/adapters/redis"
	"github.com/robertarktes/seat-reservation-engine/internal/clock"
	"github.com/robertarktes/seat-reservation-engine/internal/domain"
	httpapi "github.com/robertarktes/seat-reservation-engine/internal/http"
	"github.com/robertarktes/seat-reservation-engine/internal/idempotency"
	"github.com/robertarktes/seat-reservation-engine/internal/inventory"
	"github.com/robertarktes/seat-reservation-engine/internal/ledger"
	"github.com/robertarktes/seat-reservation-engine/internal/notify"
	"github.com/robertarktes/seat-reservation-engine/internal/observability"
	"github.com/robertarktes/seat-reservation-engine/internal/ratelimit"
)

const testSecret = "handlers-test-secret"

type nopStore struct{}

func (nopStore) Load(context.Context) ([]domain.Seat, []domain.Reservation, error) {
	return nil, nil, nil
}

func (nopStore) Commit(context.Context, ledger.Batch) error { return nil }

type stubCatalog struct {
	events map[uuid.UUID]domain.Event
}

func (c *stubCatalog) GetEvent(_ context.Context, id uuid.UUID) (domain.Event, error) {
	ev, ok := c.events[id]
	if !ok {
		return domain.Event{}, errors.Wrapf(domain.ErrEventNotFound, "event %s", id)
	}
	return ev, nil
}

type testAPI struct {
	router  http.Handler
	eventID uuid.UUID
	seatIDs []uuid.UUID
}

// newTestAPI wires the full router over an in-memory ledger. The redis
// client points at a closed port: idempotency replay and rate limiting fail
// open, which is the behavior the handlers rely on when redis is down.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	eventID := uuid.New()
	catalog := &stubCatalog{events: map[uuid.UUID]domain.Event{
		eventID: {ID: eventID, Name: "Men's Final", StartsAt: clk.Now().Add(48 * time.Hour)},
	}}

	seatIDs := []uuid.UUID{uuid.New(), uuid.New()}
	inv := inventory.New()
	inv.Load([]domain.Seat{
		{ID: seatIDs[0], EventID: eventID, Number: "A-1", Price: 50, Status: domain.SeatAvailable},
		{ID: seatIDs[1], EventID: eventID, Number: "A-2", Price: 75, Status: domain.SeatAvailable},
	})

	ldg := ledger.New(inv, nopStore{}, catalog, notify.Nop{}, observability.NewNopLogger(),
		ledger.WithClock(clk))

	deadRedis := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(deadRedis), time.Hour)
	rl := ratelimit.NewRateLimiter(redisadapter.NewCache(deadRedis))

	h := httpapi.NewHandlers(ldg, inv, idemp)
	router := httpapi.SetupRouter(h, observability.NewNopLogger(), rl, testSecret)

	return &testAPI{router: router, eventID: eventID, seatIDs: seatIDs}
}

func signToken(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.New().String())
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) hold(t *testing.T, token string, seatIDs []uuid.UUID) map[string]interface{} {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/reservations", token, map[string]interface{}{
		"event_id": a.eventID,
		"seat_ids": seatIDs,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create hold: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/v1/reservations", "", map[string]interface{}{
		"event_id": api.eventID,
		"seat_ids": api.seatIDs,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", rec.Code)
	}

	bad := signToken(t, uuid.New(), "user") + "tampered"
	rec = api.do(t, http.MethodGet, "/v1/reservations/my", bad, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("tampered token: expected 401, got %d", rec.Code)
	}
}

func TestIdempotencyKeyRequired(t *testing.T) {
	api := newTestAPI(t)
	token := signToken(t, uuid.New(), "user")

	req := httptest.NewRequest(http.MethodPost, "/v1/reservations", bytes.NewBufferString("{}"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing key: expected 400, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/reservations", bytes.NewBufferString("{}"))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", "short")
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short key: expected 400, got %d", rec.Code)
	}
}

func TestIdempotencyKeyScopedToHoldCreation(t *testing.T) {
	api := newTestAPI(t)
	token := signToken(t, uuid.New(), "user")

	created := api.hold(t, token, api.seatIDs[:1])
	id := created["id"].(string)

	// Pay and cancel are keyed by the reservation ID; neither needs an
	// Idempotency-Key.
	req := httptest.NewRequest(http.MethodPost, "/v1/reservations/"+id+"/payment", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("pay without key: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/reservations/"+id+"/cancel", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel without key: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHoldPayFlow(t *testing.T) {
	api := newTestAPI(t)
	token := signToken(t, uuid.New(), "user")

	created := api.hold(t, token, api.seatIDs)
	if created["status"] != "PENDING" {
		t.Errorf("expected PENDING, got %v", created["status"])
	}
	if created["total_amount"] != float64(125) {
		t.Errorf("expected total 125, got %v", created["total_amount"])
	}
	if created["expires_at"] == nil {
		t.Error("expected an expiry on a fresh hold")
	}

	id := created["id"].(string)
	rec := api.do(t, http.MethodPost, fmt.Sprintf("/v1/reservations/%s/payment", id), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pay: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var paid map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &paid); err != nil {
		t.Fatal(err)
	}
	if paid["status"] != "PAID" {
		t.Errorf("expected PAID, got %v", paid["status"])
	}
	if paid["expires_at"] != nil {
		t.Errorf("paid reservation must not carry an expiry, got %v", paid["expires_at"])
	}

	rec = api.do(t, http.MethodPost, fmt.Sprintf("/v1/reservations/%s/payment", id), token, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second pay: expected 409, got %d", rec.Code)
	}
}

func TestSeatConflictNamesSeats(t *testing.T) {
	api := newTestAPI(t)
	first := signToken(t, uuid.New(), "user")
	second := signToken(t, uuid.New(), "user")

	api.hold(t, first, api.seatIDs[:1])

	rec := api.do(t, http.MethodPost, "/v1/reservations", second, map[string]interface{}{
		"event_id": api.eventID,
		"seat_ids": api.seatIDs,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		SeatIDs []uuid.UUID `json:"seat_ids"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.SeatIDs) != 1 || body.SeatIDs[0] != api.seatIDs[0] {
		t.Errorf("expected conflict naming %s, got %v", api.seatIDs[0], body.SeatIDs)
	}
}

func TestOwnershipEnforcedOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	owner := signToken(t, uuid.New(), "user")
	stranger := signToken(t, uuid.New(), "user")
	admin := signToken(t, uuid.New(), "admin")

	created := api.hold(t, owner, api.seatIDs[:1])
	id := created["id"].(string)

	rec := api.do(t, http.MethodGet, "/v1/reservations/"+id, stranger, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("stranger get: expected 403, got %d", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/v1/reservations/"+id, admin, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("admin get: expected 200, got %d", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/v1/reservations", stranger, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin list: expected 403, got %d", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/v1/reservations", admin, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("admin list: expected 200, got %d", rec.Code)
	}
}

func TestEventSeatsPublic(t *testing.T) {
	api := newTestAPI(t)
	token := signToken(t, uuid.New(), "user")
	api.hold(t, token, api.seatIDs[:1])

	rec := api.do(t, http.MethodGet, fmt.Sprintf("/v1/events/%s/seats", api.eventID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without a token, got %d", rec.Code)
	}
	var seats []struct {
		Number string `json:"number"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &seats); err != nil {
		t.Fatal(err)
	}
	if len(seats) != 2 {
		t.Fatalf("expected 2 seats, got %d", len(seats))
	}
	if seats[0].Number != "A-1" || seats[0].Status != "HELD" {
		t.Errorf("expected A-1 HELD, got %s %s", seats[0].Number, seats[0].Status)
	}
	if seats[1].Status != "AVAILABLE" {
		t.Errorf("expected A-2 AVAILABLE, got %s", seats[1].Status)
	}
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/v1/healthz", "/v1/readyz"} {
		rec := api.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
