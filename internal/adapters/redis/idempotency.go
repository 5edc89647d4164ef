package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// keys are namespaced per engine so a shared redis can also serve the rate
// limiter and future tenants
const idempKeyPrefix = "sre:idemp:"

// Idempotency stores the completed response for an Idempotency-Key so a
// retried hold creation replays it instead of contending for seats again.
type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

// IdempResponse is the stored image of one completed request.
type IdempResponse struct {
	Status int    `json:"status"`
	Result []byte `json:"result"`
}

// Get returns the stored response for the key, or nil if none was recorded.
func (i *Idempotency) Get(ctx context.Context, key string) (*IdempResponse, error) {
	val, err := i.client.Get(ctx, idempKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read idempotency record")
	}
	var resp IdempResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, errors.Wrap(err, "decode idempotency record")
	}
	return &resp, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "encode idempotency record")
	}
	if err := i.client.Set(ctx, idempKeyPrefix+key, data, ttl).Err(); err != nil {
		return errors.Wrap(err, "store idempotency record")
	}
	return nil
}
