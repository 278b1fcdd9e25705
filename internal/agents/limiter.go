package agents

import (
	"context"
	"sync"
	"time"

	"dialer-engine/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// SlotLimiter bounds concurrent calls per agent. The bound holds across
// engine instances when backed by Redis; the memory implementation is for
// tests and single-node deployments.
type SlotLimiter interface {
	// Acquire reserves one call slot for the agent. It returns false,
	// without error, when the agent is already at capacity.
	Acquire(ctx context.Context, agentID string) (bool, error)
	Release(ctx context.Context, agentID string) error
}

// RedisSlotLimiter counts in-flight calls per agent in Redis. The slot key
// carries a TTL so a crashed instance cannot pin an agent at capacity
// forever.
type RedisSlotLimiter struct {
	rdb           *redis.Client
	maxConcurrent int
	ttl           time.Duration
}

func NewRedisSlotLimiter(rdb *redis.Client, maxConcurrent int, ttl time.Duration) *RedisSlotLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &RedisSlotLimiter{rdb: rdb, maxConcurrent: maxConcurrent, ttl: ttl}
}

func slotKey(agentID string) string { return "dialer:agent_slots:" + agentID }

func (l *RedisSlotLimiter) Acquire(ctx context.Context, agentID string) (bool, error) {
	return utils.AcquireCallSlot(ctx, l.rdb, slotKey(agentID), l.maxConcurrent, l.ttl)
}

func (l *RedisSlotLimiter) Release(ctx context.Context, agentID string) error {
	return utils.ReleaseCallSlot(ctx, l.rdb, slotKey(agentID))
}

// MemorySlotLimiter is the in-process equivalent.
type MemorySlotLimiter struct {
	mu            sync.Mutex
	counts        map[string]int
	maxConcurrent int
}

func NewMemorySlotLimiter(maxConcurrent int) *MemorySlotLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &MemorySlotLimiter{counts: make(map[string]int), maxConcurrent: maxConcurrent}
}

func (l *MemorySlotLimiter) Acquire(ctx context.Context, agentID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[agentID] >= l.maxConcurrent {
		return false, nil
	}
	l.counts[agentID]++
	return true, nil
}

func (l *MemorySlotLimiter) Release(ctx context.Context, agentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[agentID] > 0 {
		l.counts[agentID]--
	}
	return nil
}
