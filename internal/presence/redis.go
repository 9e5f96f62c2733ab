package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps presence as expiring keys so every instance sees the same state.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore builds a store writing keys under prefix (default "presence").
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "presence"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(userID int64) string {
	return fmt.Sprintf("%s:user:%d", s.prefix, userID)
}

// Touch implements Store. SET ... GET returns the previous value atomically,
// so exactly one of two concurrent touches observes the transition.
func (s *RedisStore) Touch(ctx context.Context, userID int64, ttl time.Duration) (bool, error) {
	err := s.rdb.SetArgs(ctx, s.key(userID), time.Now().Unix(), redis.SetArgs{TTL: ttl, Get: true}).Err()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// IsOnline implements Store.
func (s *RedisStore) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
