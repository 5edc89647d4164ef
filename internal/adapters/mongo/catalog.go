package mongo

import (
	"context"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservation-engine/internal/domain"
	"github.com/robertarktes/seat-reservation-engine/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepository reads event documents. The engine only needs existence
// and the start time (for the cancellation-cutoff guard); everything else
// on the document belongs to the catalog service that writes it.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

type eventDoc struct {
	ID        uuid.UUID `bson:"_id"`
	Name      string    `bson:"name"`
	Venue     string    `bson:"venue"`
	StartsAt  time.Time `bson:"starts_at"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// GetEvent implements ledger.Catalog.
func (c *CatalogRepository) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	var doc eventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if cerrors.Is(err, mongo.ErrNoDocuments) {
		return domain.Event{}, cerrors.Wrapf(domain.ErrEventNotFound, "event %s", id)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to get event")
		return domain.Event{}, err
	}
	return domain.Event{
		ID:       doc.ID,
		Name:     doc.Name,
		Venue:    doc.Venue,
		StartsAt: doc.StartsAt,
	}, nil
}

// CreateEvent exists for bootstrap tooling and tests.
func (c *CatalogRepository) CreateEvent(ctx context.Context, ev domain.Event) error {
	now := time.Now()
	_, err := c.coll.InsertOne(ctx, eventDoc{
		ID:        ev.ID,
		Name:      ev.Name,
		Venue:     ev.Venue,
		StartsAt:  ev.StartsAt,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		c.logger.WithError(err).Error("failed to create event")
		return err
	}
	return nil
}
