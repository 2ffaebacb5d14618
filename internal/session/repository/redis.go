package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"exam-practice/backend/internal/session/domain"
)

// DefaultRedisKeyPrefix namespaces session keys.
const DefaultRedisKeyPrefix = "admin:session:"

// minRedisTTL keeps tombstones of already-expired sessions around long enough
// for the heartbeat to observe them.
const minRedisTTL = time.Minute

// RedisRepository stores sessions as JSON values whose key TTL tracks ExpiresAt.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
	nowF   func() time.Time
}

// NewRedisRepository returns a session repository backed by client.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisRepository{client: client, prefix: prefix, nowF: time.Now}
}

func (r *RedisRepository) key(id string) string { return r.prefix + id }

func (r *RedisRepository) Save(ctx context.Context, s *domain.AdminSession) error {
	data, err := json.Marshal(ToRecord(s))
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := s.ExpiresAt.Sub(r.nowF())
	if ttl < minRedisTTL {
		ttl = minRedisTTL
	}
	if err := r.client.Set(ctx, r.key(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*domain.AdminSession, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return rec.ToDomain(), nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
