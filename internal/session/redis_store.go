package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisIndexKey     = "session:index"
	defaultSessionTTL = 72 * time.Hour
)

// RedisStore keeps sessions in Redis so they survive a process restart.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewRedisStore builds a Redis-backed Store. A non-positive ttl uses 72h.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{redis: client, ttl: ttl, now: time.Now}
}

func sessionKey(userID string) string {
	return fmt.Sprintf("session:%s", userID)
}

func linkKey(linkID string) string {
	return fmt.Sprintf("session:link:%s", linkID)
}

func (r *RedisStore) Get(ctx context.Context, userID string) (*Session, error) {
	data, err := r.redis.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: load %s: %w", userID, err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", userID, err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if s == nil || s.UserID == "" {
		return errInvalidSession
	}
	prev, err := r.Get(ctx, s.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	s.UpdatedAt = r.now()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", s.UserID, err)
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(s.UserID), data, r.ttl)
		pipe.SAdd(ctx, redisIndexKey, s.UserID)
		if prev != nil && prev.PaymentLinkID != "" && prev.PaymentLinkID != s.PaymentLinkID {
			pipe.Del(ctx, linkKey(prev.PaymentLinkID))
		}
		if s.PaymentLinkID != "" {
			pipe.Set(ctx, linkKey(s.PaymentLinkID), s.UserID, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: save %s: %w", s.UserID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	prev, err := r.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(userID))
		pipe.SRem(ctx, redisIndexKey, userID)
		if prev != nil && prev.PaymentLinkID != "" {
			pipe.Del(ctx, linkKey(prev.PaymentLinkID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: delete %s: %w", userID, err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context) ([]*Session, error) {
	users, err := r.redis.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("session: list index: %w", err)
	}
	out := make([]*Session, 0, len(users))
	var stale []any
	for _, userID := range users {
		s, err := r.Get(ctx, userID)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, userID)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(stale) > 0 {
		// Records expired by Redis TTL leave their index entry behind.
		if err := r.redis.SRem(ctx, redisIndexKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("session: prune index: %w", err)
		}
	}
	return out, nil
}

func (r *RedisStore) FindByPaymentLink(ctx context.Context, linkID string) (*Session, error) {
	if linkID == "" {
		return nil, ErrNotFound
	}
	userID, err := r.redis.Get(ctx, linkKey(linkID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: resolve link %s: %w", linkID, err)
	}
	s, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.PaymentLinkID != linkID {
		return nil, ErrNotFound
	}
	return s, nil
}
