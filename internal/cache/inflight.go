package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InFlight tracks request keys that are currently being processed. It only
// guards against concurrent duplicates and never replays a response.
type InFlight interface {
	// Acquire returns false when key is already held
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

func inflightKey(key string) string {
	return fmt.Sprintf("inflight:%s", key)
}

// RedisInFlight shares the guard across API instances
type RedisInFlight struct {
	redis *Redis
}

// NewRedisInFlight creates a Redis-backed guard
func NewRedisInFlight(r *Redis) *RedisInFlight {
	return &RedisInFlight{redis: r}
}

func (g *RedisInFlight) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.redis.Client.SetNX(ctx, inflightKey(key), time.Now().UnixNano(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire in-flight key: %w", err)
	}
	return ok, nil
}

func (g *RedisInFlight) Release(ctx context.Context, key string) error {
	if err := g.redis.Client.Del(ctx, inflightKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release in-flight key: %w", err)
	}
	return nil
}

// MemoryInFlight is the single-instance guard used when Redis is not configured
type MemoryInFlight struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewMemoryInFlight creates an in-process guard
func NewMemoryInFlight() *MemoryInFlight {
	return &MemoryInFlight{
		held: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (g *MemoryInFlight) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expires, ok := g.held[key]; ok && now.Before(expires) {
		return false, nil
	}
	g.held[key] = now.Add(ttl)
	return true, nil
}

func (g *MemoryInFlight) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
	return nil
}
