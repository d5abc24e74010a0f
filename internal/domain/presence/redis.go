package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/model"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "presence:"

var _ Store = (*RedisStore)(nil)

// RedisStore keeps presence records in a shared key-value store so that
// multiple service instances observe the same presence state. This is
// the multi-instance side of the scaling boundary; the interface keeps
// it interchangeable with the in-memory map.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, userID uuid.UUID) (*model.PresenceRecord, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotSeen
	}
	if err != nil {
		return nil, fmt.Errorf("presence: redis get: %w", err)
	}

	var rec model.PresenceRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("presence: decode record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, rec *model.PresenceRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("presence: encode record: %w", err)
	}
	// Records are kept indefinitely; retention is an external policy.
	if err := s.client.Set(ctx, redisKeyPrefix+rec.UserID.String(), raw, 0).Err(); err != nil {
		return fmt.Errorf("presence: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) All(ctx context.Context) ([]*model.PresenceRecord, error) {
	var out []*model.PresenceRecord

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("presence: redis get %s: %w", iter.Val(), err)
		}
		var rec model.PresenceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("presence: decode record %s: %w", iter.Val(), err)
		}
		out = append(out, &rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("presence: redis scan: %w", err)
	}
	return out, nil
}
