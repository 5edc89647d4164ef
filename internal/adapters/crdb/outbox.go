package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type outboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED
	DedupeKey     string
}

// OutboxMessage is what the outbox publisher needs to forward a record.
type OutboxMessage struct {
	ID        uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
	DedupeKey string
}

func (s *Store) insertOutbox(ctx context.Context, tx pgx.Tx, record outboxRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey)
	return err
}

func (s *Store) UnpublishedOutbox(ctx context.Context, limit int) ([]OutboxMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_type, payload_json, created_at, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OutboxMessage
	for rows.Next() {
		var rec OutboxMessage
		if err := rows.Scan(&rec.ID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.DedupeKey); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return err
}
