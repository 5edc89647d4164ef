package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservation-engine/internal/domain"
	"github.com/robertarktes/seat-reservation-engine/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger keeps a history of committed transitions. Reservations are
// never deleted from the ledger, but the audit trail additionally records
// who moved them and when.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type auditDoc struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    uuid.UUID `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

// RecordTransition implements ledger.Auditor.
func (a *AuditLogger) RecordTransition(ctx context.Context, action string, res domain.Reservation) error {
	seatIDs := make([]string, len(res.SeatIDs))
	for i, id := range res.SeatIDs {
		seatIDs[i] = id.String()
	}
	doc := auditDoc{
		ID:        uuid.New(),
		Action:    action,
		UserID:    res.UserID,
		Timestamp: time.Now(),
		Data: bson.M{
			"reservation_id": res.ID.String(),
			"event_id":       res.EventID.String(),
			"status":         res.Status.String(),
			"seat_ids":       seatIDs,
			"total_amount":   res.TotalAmount,
			"version":        res.Version,
			"refund_issued":  res.RefundIssued,
		},
	}
	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		a.logger.WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}
