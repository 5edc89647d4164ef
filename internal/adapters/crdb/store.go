package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/seat-reservation-engine/internal/domain"
	"github.com/robertarktes/seat-reservation-engine/internal/ledger"
)

const (
	serializationFailureCode = "40001"
)

// Store is the durable side of the ledger: one Commit applies a full
// transition batch (reservation row, seat statuses, outbox record) in a
// single SERIALIZABLE transaction.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == serializationFailureCode {
			return errors.Mark(err, domain.ErrConcurrencyConflict)
		}
		return err
	}

	return tx.Commit(ctx)
}

// Commit implements ledger.Store.
func (s *Store) Commit(ctx context.Context, batch ledger.Batch) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		res := batch.Reservation
		_, err := tx.Exec(ctx, `
			INSERT INTO reservations (id, event_id, user_id, status, total_amount, expires_at, version, created_at, payment_ref, refund_issued)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				status = excluded.status,
				expires_at = excluded.expires_at,
				version = excluded.version,
				payment_ref = excluded.payment_ref,
				refund_issued = excluded.refund_issued
		`, res.ID, res.EventID, res.UserID, res.Status.String(), res.TotalAmount,
			res.ExpiresAt, res.Version, res.CreatedAt, res.PaymentRef, res.RefundIssued)
		if err != nil {
			return err
		}

		for _, seatID := range res.SeatIDs {
			_, err := tx.Exec(ctx, `
				INSERT INTO reservation_seats (reservation_id, seat_id)
				VALUES ($1, $2)
				ON CONFLICT (reservation_id, seat_id) DO NOTHING
			`, res.ID, seatID)
			if err != nil {
				return err
			}
		}

		// One pipelined batch; a pgx.Tx rejects concurrent Execs.
		if err := updateSeatStatuses(ctx, tx, batch.SeatStatus); err != nil {
			return err
		}

		return s.insertOutbox(ctx, tx, outboxRecord{
			ID:            uuid.New(),
			AggregateType: "reservation",
			AggregateID:   res.ID,
			EventType:     batch.Event.Topic,
			Payload:       batch.Event.Payload(),
			DedupeKey:     batch.Event.ID.String(),
		})
	})
}

func updateSeatStatuses(ctx context.Context, tx pgx.Tx, statuses map[uuid.UUID]domain.SeatStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	ids := make([]uuid.UUID, 0, len(statuses))
	for seatID, status := range statuses {
		ids = append(ids, seatID)
		b.Queue(`UPDATE seats SET status = $2 WHERE id = $1`, seatID, status.String())
	}
	br := tx.SendBatch(ctx, b)
	defer br.Close()

	for _, seatID := range ids {
		tag, err := br.Exec()
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(domain.ErrSeatNotFound, "seat %s", seatID)
		}
	}
	return br.Close()
}

// Load implements ledger.Store: the full durable seat and reservation state
// read once at startup.
func (s *Store) Load(ctx context.Context) ([]domain.Seat, []domain.Reservation, error) {
	seats, err := s.loadSeats(ctx)
	if err != nil {
		return nil, nil, err
	}
	reservations, err := s.loadReservations(ctx)
	if err != nil {
		return nil, nil, err
	}
	return seats, reservations, nil
}

func (s *Store) loadSeats(ctx context.Context) ([]domain.Seat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, seat_number, seat_row, zone, price, status
		FROM seats
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []domain.Seat
	for rows.Next() {
		var seat domain.Seat
		var status string
		if err := rows.Scan(&seat.ID, &seat.EventID, &seat.Number, &seat.Row, &seat.Zone, &seat.Price, &status); err != nil {
			return nil, err
		}
		if seat.Status, err = domain.ParseSeatStatus(status); err != nil {
			return nil, errors.Wrapf(err, "seat %s", seat.ID)
		}
		seats = append(seats, seat)
	}
	return seats, rows.Err()
}

func (s *Store) loadReservations(ctx context.Context) ([]domain.Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.event_id, r.user_id, r.status, r.total_amount, r.expires_at,
		       r.version, r.created_at, r.payment_ref, r.refund_issued, rs.seat_id
		FROM reservations r
		JOIN reservation_seats rs ON rs.reservation_id = r.id
		ORDER BY r.created_at, r.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	var current *domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		var status string
		var expiresAt *time.Time
		var seatID uuid.UUID
		if err := rows.Scan(&res.ID, &res.EventID, &res.UserID, &status, &res.TotalAmount,
			&expiresAt, &res.Version, &res.CreatedAt, &res.PaymentRef, &res.RefundIssued, &seatID); err != nil {
			return nil, err
		}
		if current == nil || current.ID != res.ID {
			if current != nil {
				out = append(out, *current)
			}
			if res.Status, err = domain.ParseReservationStatus(status); err != nil {
				return nil, errors.Wrapf(err, "reservation %s", res.ID)
			}
			res.ExpiresAt = expiresAt
			current = &res
		}
		current.SeatIDs = append(current.SeatIDs, seatID)
	}
	if current != nil {
		out = append(out, *current)
	}
	return out, rows.Err()
}

// Migrate creates the schema. Idempotent; used at startup and by tests.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS seats (
			id UUID PRIMARY KEY,
			event_id UUID NOT NULL,
			seat_number TEXT NOT NULL,
			seat_row TEXT NOT NULL DEFAULT '',
			zone TEXT NOT NULL DEFAULT '',
			price FLOAT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('AVAILABLE', 'HELD', 'FINALIZED'))
		);
		CREATE TABLE IF NOT EXISTS reservations (
			id UUID PRIMARY KEY,
			event_id UUID NOT NULL,
			user_id UUID NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('PENDING', 'PAID', 'CANCELLED')),
			total_amount FLOAT NOT NULL,
			expires_at TIMESTAMPTZ,
			version INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			payment_ref TEXT NOT NULL DEFAULT '',
			refund_issued BOOL NOT NULL DEFAULT false
		);
		CREATE TABLE IF NOT EXISTS reservation_seats (
			reservation_id UUID NOT NULL,
			seat_id UUID NOT NULL,
			PRIMARY KEY (reservation_id, seat_id)
		);
		CREATE TABLE IF NOT EXISTS outbox (
			id UUID PRIMARY KEY,
			aggregate_type TEXT NOT NULL,
			aggregate_id UUID NOT NULL,
			event_type TEXT NOT NULL,
			payload_json BYTES NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			published_at TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'NEW',
			dedupe_key TEXT NOT NULL
		);
	`)
	return err
}

// SeedSeats inserts seats that do not exist yet; used by tests and by
// operators bootstrapping an event's seat map.
func (s *Store) SeedSeats(ctx context.Context, seats []domain.Seat) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, seat := range seats {
			_, err := tx.Exec(ctx, `
				INSERT INTO seats (id, event_id, seat_number, seat_row, zone, price, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO NOTHING
			`, seat.ID, seat.EventID, seat.Number, seat.Row, seat.Zone, seat.Price, seat.Status.String())
			if err != nil {
				return err
			}
		}
		return nil
	})
}
