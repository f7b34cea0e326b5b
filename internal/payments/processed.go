package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const processedTTL = 48 * time.Hour

// ProcessedTracker remembers provider event ids so webhook retries are applied once.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

func processedKey(provider, eventID string) string {
	return fmt.Sprintf("processed:%s:%s", provider, eventID)
}

// RedisProcessedTracker stores event markers in Redis with a 48h expiry.
type RedisProcessedTracker struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisProcessedTracker(client *redis.Client) *RedisProcessedTracker {
	if client == nil {
		panic("payments: redis client cannot be nil")
	}
	return &RedisProcessedTracker{redis: client, ttl: processedTTL}
}

func (t *RedisProcessedTracker) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := t.redis.Exists(ctx, processedKey(provider, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("payments: check processed: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed returns false when the event was already marked.
func (t *RedisProcessedTracker) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := t.redis.SetNX(ctx, processedKey(provider, eventID), time.Now().UTC().Format(time.RFC3339), t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("payments: mark processed: %w", err)
	}
	return ok, nil
}

// MemoryProcessedTracker is the single-process tracker used with the memory session backend.
type MemoryProcessedTracker struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryProcessedTracker() *MemoryProcessedTracker {
	return &MemoryProcessedTracker{seen: make(map[string]time.Time), ttl: processedTTL, now: time.Now}
}

func (t *MemoryProcessedTracker) AlreadyProcessed(_ context.Context, provider, eventID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liveLocked(processedKey(provider, eventID)), nil
}

func (t *MemoryProcessedTracker) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := processedKey(provider, eventID)
	if t.liveLocked(key) {
		return false, nil
	}
	now := t.now()
	for k, at := range t.seen {
		if now.Sub(at) > t.ttl {
			delete(t.seen, k)
		}
	}
	t.seen[key] = now
	return true, nil
}

func (t *MemoryProcessedTracker) liveLocked(key string) bool {
	at, ok := t.seen[key]
	return ok && t.now().Sub(at) <= t.ttl
}
