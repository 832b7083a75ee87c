package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anhducle99/bluecode/internal/clock"
	"github.com/redis/go-redis/v9"
)

// StatusLedger admits the first terminal status reported for a (call, team)
// pair. Later claims for the same pair are refused until the entry expires
// or the claim is released.
type StatusLedger interface {
	Claim(ctx context.Context, callID, team string) (bool, error)
	// Release drops a claim whose status could not be recorded so that a
	// teammate can still answer.
	Release(ctx context.Context, callID, team string) error
}

func ledgerKey(callID, team string) string {
	return "bluecode:status:" + callID + ":" + team
}

// MemoryLedger is the single-replica ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	clk     clock.Clock
	ttl     time.Duration
	entries map[string]time.Time
}

func NewMemoryLedger(clk clock.Clock, ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		clk:     clock.OrReal(clk),
		ttl:     ttl,
		entries: make(map[string]time.Time),
	}
}

func (l *MemoryLedger) Claim(_ context.Context, callID, team string) (bool, error) {
	now := l.clk.Now()
	key := ledgerKey(callID, team)

	l.mu.Lock()
	defer l.mu.Unlock()

	if expires, ok := l.entries[key]; ok && now.Before(expires) {
		return false, nil
	}
	l.entries[key] = now.Add(l.ttl)
	return true, nil
}

func (l *MemoryLedger) Release(_ context.Context, callID, team string) error {
	l.mu.Lock()
	delete(l.entries, ledgerKey(callID, team))
	l.mu.Unlock()
	return nil
}

// Prune drops expired entries.
func (l *MemoryLedger) Prune() int {
	now := l.clk.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, expires := range l.entries {
		if !now.Before(expires) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// RedisLedger shares claims between server replicas using SET NX.
type RedisLedger struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisLedger(rdb redis.Cmdable, ttl time.Duration) *RedisLedger {
	return &RedisLedger{rdb: rdb, ttl: ttl}
}

func (l *RedisLedger) Claim(ctx context.Context, callID, team string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, ledgerKey(callID, team), 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim call status: %w", err)
	}
	return ok, nil
}

func (l *RedisLedger) Release(ctx context.Context, callID, team string) error {
	if err := l.rdb.Del(ctx, ledgerKey(callID, team)).Err(); err != nil {
		return fmt.Errorf("failed to release call status: %w", err)
	}
	return nil
}
