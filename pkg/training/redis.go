package training

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

const redisKeyPrefix = "arbiter:training:"

// RedisStore keeps training configuration records in Redis, for
// deployments where several evaluator processes share one trained state.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store backed by the given Redis instance.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// NewRedisStoreWithClient wraps an existing client (used in tests).
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, snapshotHash string) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+snapshotHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, contracts.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("training: redis get: %w", err)
	}
	return data, nil
}

// Put implements Store. Records never expire; staleness is a snapshot
// comparison, not a TTL.
func (s *RedisStore) Put(ctx context.Context, snapshotHash string, record []byte) error {
	if err := s.client.Set(ctx, redisKeyPrefix+snapshotHash, record, 0).Err(); err != nil {
		return fmt.Errorf("training: redis set: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
