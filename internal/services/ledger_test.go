package services

import (
	"context"
	"testing"
	"time"

	"github.com/anhducle99/bluecode/internal/clock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_FirstClaimWins(t *testing.T) {
	ledger := NewMemoryLedger(clock.NewFake(time.Time{}), time.Minute)
	ctx := context.Background()

	ok, err := ledger.Claim(ctx, "call-1", "ICU")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.Claim(ctx, "call-1", "ICU")
	require.NoError(t, err)
	assert.False(t, ok)

	// Other team, other call
	ok, _ = ledger.Claim(ctx, "call-1", "Cardiology")
	assert.True(t, ok)
	ok, _ = ledger.Claim(ctx, "call-2", "ICU")
	assert.True(t, ok)
}

func TestMemoryLedger_Expiry(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	ledger := NewMemoryLedger(clk, time.Minute)
	ctx := context.Background()

	ok, _ := ledger.Claim(ctx, "call-1", "ICU")
	require.True(t, ok)

	clk.Advance(59 * time.Second)
	assert.Equal(t, 0, ledger.Prune())
	ok, _ = ledger.Claim(ctx, "call-1", "ICU")
	assert.False(t, ok)

	clk.Advance(time.Second)
	assert.Equal(t, 1, ledger.Prune())
	assert.Equal(t, 0, ledger.Len())

	ok, _ = ledger.Claim(ctx, "call-1", "ICU")
	assert.True(t, ok)
}

func TestMemoryLedger_ReleaseReopensClaim(t *testing.T) {
	ledger := NewMemoryLedger(clock.NewFake(time.Time{}), time.Minute)
	ctx := context.Background()

	ok, _ := ledger.Claim(ctx, "call-1", "ICU")
	require.True(t, ok)
	ok, _ = ledger.Claim(ctx, "call-1", "Cardiology")
	require.True(t, ok)

	require.NoError(t, ledger.Release(ctx, "call-1", "ICU"))
	assert.Equal(t, 1, ledger.Len())

	ok, _ = ledger.Claim(ctx, "call-1", "ICU")
	assert.True(t, ok)
	ok, _ = ledger.Claim(ctx, "call-1", "Cardiology")
	assert.False(t, ok)

	// Releasing an unknown pair is harmless.
	assert.NoError(t, ledger.Release(ctx, "call-9", "ICU"))
}

func TestRedisLedger_Unreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	ledger := NewRedisLedger(rdb, time.Minute)

	ok, err := ledger.Claim(context.Background(), "call-1", "ICU")

	assert.False(t, ok)
	assert.ErrorContains(t, err, "failed to claim call status")

	assert.ErrorContains(t, ledger.Release(context.Background(), "call-1", "ICU"), "failed to release call status")
}

func TestLedgerKey(t *testing.T) {
	assert.Equal(t, "bluecode:status:call-1:ICU", ledgerKey("call-1", "ICU"))
}
