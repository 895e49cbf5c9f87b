package results

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/visionrelay/visionrelay/internal/models"
)

// RedisStore is a Redis-backed result store shared across gateway instances.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed store. It verifies connectivity before
// returning so callers can fall back to the in-memory store.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) (*RedisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if prefix == "" {
		prefix = "results:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &RedisStore{client: client, prefix: prefix, ttl: ttl}, nil
}

func (s *RedisStore) Put(ctx context.Context, requestID string, resp models.ClientResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	s.client.Set(ctx, s.prefix+requestID, data, s.ttl)
}

func (s *RedisStore) Get(ctx context.Context, requestID string) (models.ClientResponse, bool) {
	data, err := s.client.Get(ctx, s.prefix+requestID).Bytes()
	if err != nil {
		return models.ClientResponse{}, false
	}

	var resp models.ClientResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return models.ClientResponse{}, false
	}
	return resp, true
}

// Ensure RedisStore implements Store.
var _ Store = (*RedisStore)(nil)
