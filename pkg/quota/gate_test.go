package quota

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestGate(clock *manualClock) *Gate {
	store := NewMemoryStore()
	return NewGate(store, store, nil).WithClock(clock.Now)
}

func TestBurstThenMonthlyThenExceeded(t *testing.T) {
	clock := newManualClock()
	g := newTestGate(clock)
	ctx := context.Background()
	plan := Plan{MonthlyQuota: 5, Burst: 2}

	expected := []Status{StatusBurst, StatusBurst, StatusOK, StatusOK, StatusOK}
	for i, want := range expected {
		// Distinct context keys keep the debounce out of this test.
		d, err := g.Admit(ctx, "acme", string(rune('a'+i)), plan)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "admission %d", i)
		assert.Equal(t, want, d.Status, "admission %d", i)
	}

	d, err := g.Admit(ctx, "acme", "f", plan)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, StatusQuotaExceeded, d.Status)
}

func TestDebounceWindow(t *testing.T) {
	clock := newManualClock()
	g := newTestGate(clock)
	ctx := context.Background()
	plan := Plan{MonthlyQuota: 100, Burst: 0}

	first, err := g.Admit(ctx, "acme", "ctx-1", plan)
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	clock.Advance(30 * time.Second)
	repeat, err := g.Admit(ctx, "acme", "ctx-1", plan)
	require.NoError(t, err)
	assert.False(t, repeat.Allowed)
	assert.Equal(t, StatusDebounced, repeat.Status)

	// A different context key passes inside the window.
	other, err := g.Admit(ctx, "acme", "ctx-2", plan)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	// After the window the original context passes again.
	clock.Advance(DebounceTTL)
	late, err := g.Admit(ctx, "acme", "ctx-1", plan)
	require.NoError(t, err)
	assert.True(t, late.Allowed)
}

func TestRejectedAdmissionDoesNotArmDebounce(t *testing.T) {
	clock := newManualClock()
	g := newTestGate(clock)
	ctx := context.Background()
	plan := Plan{MonthlyQuota: 1, Burst: 0}

	first, err := g.Admit(ctx, "acme", "ctx-1", plan)
	require.NoError(t, err)
	require.True(t, first.Allowed)

	clock.Advance(time.Second)
	rejected, err := g.Admit(ctx, "acme", "ctx-2", plan)
	require.NoError(t, err)
	require.Equal(t, StatusQuotaExceeded, rejected.Status)

	// ctx-2 never succeeded, so after the month resets it must not be
	// treated as a repeat.
	clock.Advance(31 * 24 * time.Hour)
	d, err := g.Admit(ctx, "acme", "ctx-2", plan)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLazyMonthlyReset(t *testing.T) {
	clock := newManualClock()
	g := newTestGate(clock)
	ctx := context.Background()
	plan := Plan{MonthlyQuota: 2, Burst: 1}

	for _, key := range []string{"a", "b"} {
		d, err := g.Admit(ctx, "acme", key, plan)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	exceeded, err := g.Admit(ctx, "acme", "c", plan)
	require.NoError(t, err)
	require.Equal(t, StatusQuotaExceeded, exceeded.Status)

	// 2026-03-10 plus 22 days lands in April; the reset applies lazily and
	// the burst pool refills.
	clock.Advance(22 * 24 * time.Hour)
	d, err := g.Admit(ctx, "acme", "d", plan)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, StatusBurst, d.Status)
	assert.Equal(t, int64(1), d.MonthlyUsed)
}

func TestResetAtIsNextUTCMonthStart(t *testing.T) {
	clock := newManualClock()
	g := newTestGate(clock)

	d, err := g.Admit(context.Background(), "acme", "a", Plan{MonthlyQuota: 10, Burst: 0})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), d.ResetAt)
}

func TestTenantsAreIsolated(t *testing.T) {
	clock := newManualClock()
	g := newTestGate(clock)
	ctx := context.Background()
	plan := Plan{MonthlyQuota: 1, Burst: 0}

	first, err := g.Admit(ctx, "acme", "ctx", plan)
	require.NoError(t, err)
	require.True(t, first.Allowed)

	other, err := g.Admit(ctx, "globex", "ctx", plan)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "another tenant's quota is unaffected")
}

func TestEmptyTenantRejected(t *testing.T) {
	g := newTestGate(newManualClock())
	_, err := g.Admit(context.Background(), "", "ctx", Plan{MonthlyQuota: 1})
	assert.Error(t, err)
}

func TestGlobalLimiter(t *testing.T) {
	clock := newManualClock()
	store := NewMemoryStore()
	g := NewGate(store, store, nil).WithClock(clock.Now).WithGlobalLimit(0, 1)
	ctx := context.Background()
	plan := Plan{MonthlyQuota: 10, Burst: 0}

	first, err := g.Admit(ctx, "acme", "a", plan)
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	// Zero refill rate: the single token is spent.
	second, err := g.Admit(ctx, "acme", "b", plan)
	require.NoError(t, err)
	assert.Equal(t, StatusRateLimited, second.Status)
}

func TestSQLiteQuotaStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/quota.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)

	clock := newManualClock()
	g := NewGate(store, store, nil).WithClock(clock.Now)
	ctx := context.Background()
	plan := Plan{MonthlyQuota: 3, Burst: 1}

	statuses := []Status{}
	for _, key := range []string{"a", "b", "c"} {
		d, err := g.Admit(ctx, "acme", key, plan)
		require.NoError(t, err)
		statuses = append(statuses, d.Status)
	}
	assert.Equal(t, []Status{StatusBurst, StatusOK, StatusOK}, statuses)

	exceeded, err := g.Admit(ctx, "acme", "d", plan)
	require.NoError(t, err)
	assert.Equal(t, StatusQuotaExceeded, exceeded.Status)

	// Debounce state survives a gate restart over the same database.
	g2 := NewGate(store, store, nil).WithClock(clock.Now)
	repeat, err := g2.Admit(ctx, "acme", "a", plan)
	require.NoError(t, err)
	assert.Equal(t, StatusDebounced, repeat.Status)

	st, err := g2.Peek(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, int64(3), st.MonthlyUsed)
}
