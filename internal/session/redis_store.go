package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore keeps session records under session:<id>:<key> with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func redisKey(sessionID string, key Key) string {
	return fmt.Sprintf("session:%s:%s", sessionID, key)
}

func (s *RedisStore) Get(ctx context.Context, sessionID string, key Key) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKey(sessionID, key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to read session key from Redis")
		return nil, fmt.Errorf("failed to get session key: %w", err)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, sessionID string, key Key, value []byte) error {
	if err := s.client.Set(ctx, redisKey(sessionID, key), value, s.ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to store session key in Redis")
		return fmt.Errorf("failed to set session key: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, sessionID string, key Key) error {
	if err := s.client.Del(ctx, redisKey(sessionID, key)).Err(); err != nil {
		return fmt.Errorf("failed to remove session key: %w", err)
	}
	return nil
}
