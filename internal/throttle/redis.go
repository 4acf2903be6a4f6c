package throttle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/InboxGo/internal/domain"
)

const (
	redisKeyPrefix  = "login_attempt:"
	redisMaxRetries = 8
)

// RedisStore keeps records in Redis, one JSON value per session key. Updates
// run as WATCH/MULTI transactions retried on conflict.
type RedisStore struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewRedisStore creates a Redis-backed store. Keys expire after retention
// unless a lock extends past it.
func NewRedisStore(client redis.UniversalClient, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention}
}

func (s *RedisStore) key(session string) string {
	return redisKeyPrefix + session
}

func (s *RedisStore) Get(ctx context.Context, key string) (*domain.LoginAttempt, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get login attempt: %w", err)
	}
	return decodeAttempt(data)
}

func (s *RedisStore) Update(ctx context.Context, key string, fn MutateFunc) error {
	k := s.key(key)

	txf := func(tx *redis.Tx) error {
		var cur *domain.LoginAttempt
		data, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if cur, err = decodeAttempt(data); err != nil {
				return err
			}
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}

		if next == nil {
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, k)
				return nil
			})
			return err
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode login attempt: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, encoded, s.ttl(next))
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update login attempt: %w", err)
		}
		return nil
	}
	return ErrContended
}

func (s *RedisStore) ttl(rec *domain.LoginAttempt) time.Duration {
	ttl := s.retention
	if rec.LockedUntil != nil {
		if d := time.Until(*rec.LockedUntil); d > ttl {
			ttl = d
		}
	}
	if ttl <= 0 {
		return 0
	}
	return ttl
}

func decodeAttempt(data []byte) (*domain.LoginAttempt, error) {
	var rec domain.LoginAttempt
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode login attempt: %w", err)
	}
	return &rec, nil
}
