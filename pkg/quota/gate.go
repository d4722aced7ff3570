// Package quota is the admission-control gate in front of the governance
// pipeline. Two independent controls apply per tenant: a debounce window that
// swallows repeat admissions for the same context, and a monthly quota with a
// burst pool that refills on the lazy UTC month reset.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DebounceTTL is the window within which an identical (tenant, contextKey)
// admission is rejected after a successful one.
const DebounceTTL = 90 * time.Second

// Status classifies an admission decision.
type Status string

const (
	StatusOK            Status = "OK"
	StatusBurst         Status = "BURST"
	StatusDebounced     Status = "DEBOUNCED"
	StatusQuotaExceeded Status = "QUOTA_EXCEEDED"
	StatusRateLimited   Status = "RATE_LIMITED"
)

// Plan carries a tenant's quota entitlements.
type Plan struct {
	MonthlyQuota int64 `json:"monthly_quota"`
	Burst        int64 `json:"burst"`
}

// State is the persisted per-tenant quota state. Reset is lazy: it happens
// on the first admission attempt after ResetAt, never via a timer.
type State struct {
	TenantID       string    `json:"tenant_id"`
	MonthlyQuota   int64     `json:"monthly_quota"`
	MonthlyUsed    int64     `json:"monthly_used"`
	BurstRemaining int64     `json:"burst_remaining"`
	ResetAt        time.Time `json:"reset_at"`
}

// RateDecision is the outcome of an admission attempt.
type RateDecision struct {
	Allowed        bool      `json:"allowed"`
	Status         Status    `json:"status"`
	MonthlyUsed    int64     `json:"monthly_used"`
	BurstRemaining int64     `json:"burst_remaining"`
	ResetAt        time.Time `json:"reset_at"`
	Reason         string    `json:"reason,omitempty"`
}

// Store persists quota state. Lookups return (nil, nil) when the tenant has
// no state yet.
type Store interface {
	GetState(ctx context.Context, tenantID string) (*State, error)
	PutState(ctx context.Context, s *State) error
}

// Debouncer tracks successful admissions per (tenant, contextKey). Seen
// reports whether one happened within the TTL; Mark records one.
type Debouncer interface {
	Seen(ctx context.Context, tenantID, contextKey string, now time.Time) (bool, error)
	Mark(ctx context.Context, tenantID, contextKey string, now time.Time) error
}

// Gate applies debounce then quota. The read-compute-write on quota state is
// serialized per tenant with an in-process keyed lock; multi-process
// deployments point the Debouncer at redis and shard tenants per process.
type Gate struct {
	store    Store
	debounce Debouncer
	limiter  *rate.Limiter // optional global smoothing, nil = disabled
	clock    func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGate creates a gate over the given store and debouncer.
func NewGate(store Store, debounce Debouncer, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:    store,
		debounce: debounce,
		clock:    time.Now,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the clock for deterministic testing.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// WithGlobalLimit enables a token-bucket smoothing limit across all tenants.
func (g *Gate) WithGlobalLimit(rps float64, burst int) *Gate {
	g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return g
}

// Admit decides whether one unit of pipeline work may start for the tenant.
func (g *Gate) Admit(ctx context.Context, tenantID, contextKey string, plan Plan) (RateDecision, error) {
	if tenantID == "" {
		return RateDecision{}, fmt.Errorf("quota: tenant_id must not be empty")
	}

	if g.limiter != nil && !g.limiter.Allow() {
		return RateDecision{
			Allowed: false,
			Status:  StatusRateLimited,
			Reason:  "global admission rate exceeded",
		}, nil
	}

	lock := g.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	now := g.clock().UTC()

	seen, err := g.debounce.Seen(ctx, tenantID, contextKey, now)
	if err != nil {
		return RateDecision{}, fmt.Errorf("quota: debounce lookup: %w", err)
	}
	if seen {
		return RateDecision{
			Allowed: false,
			Status:  StatusDebounced,
			Reason:  "identical admission within debounce window",
		}, nil
	}

	st, err := g.store.GetState(ctx, tenantID)
	if err != nil {
		return RateDecision{}, fmt.Errorf("quota: state lookup: %w", err)
	}
	if st == nil {
		st = &State{
			TenantID:       tenantID,
			MonthlyQuota:   plan.MonthlyQuota,
			BurstRemaining: plan.Burst,
			ResetAt:        nextMonthStart(now),
		}
	}

	// Lazy month rollover.
	if !now.Before(st.ResetAt) {
		st.MonthlyQuota = plan.MonthlyQuota
		st.MonthlyUsed = 0
		st.BurstRemaining = plan.Burst
		st.ResetAt = nextMonthStart(now)
	}

	if st.MonthlyUsed >= st.MonthlyQuota {
		return RateDecision{
			Allowed:        false,
			Status:         StatusQuotaExceeded,
			MonthlyUsed:    st.MonthlyUsed,
			BurstRemaining: st.BurstRemaining,
			ResetAt:        st.ResetAt,
			Reason:         "monthly quota exhausted",
		}, nil
	}

	st.MonthlyUsed++
	status := StatusOK
	if st.BurstRemaining > 0 {
		st.BurstRemaining--
		status = StatusBurst
	}

	if err := g.store.PutState(ctx, st); err != nil {
		return RateDecision{}, fmt.Errorf("quota: persist state: %w", err)
	}
	if err := g.debounce.Mark(ctx, tenantID, contextKey, now); err != nil {
		return RateDecision{}, fmt.Errorf("quota: debounce mark: %w", err)
	}

	g.logger.Debug("admission granted",
		slog.String("tenant", tenantID),
		slog.String("status", string(status)),
		slog.Int64("monthly_used", st.MonthlyUsed),
	)
	return RateDecision{
		Allowed:        true,
		Status:         status,
		MonthlyUsed:    st.MonthlyUsed,
		BurstRemaining: st.BurstRemaining,
		ResetAt:        st.ResetAt,
	}, nil
}

// Peek returns a tenant's current state without consuming quota.
func (g *Gate) Peek(ctx context.Context, tenantID string) (*State, error) {
	return g.store.GetState(ctx, tenantID)
}

func (g *Gate) tenantLock(tenantID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[tenantID] = lock
	}
	return lock
}

// nextMonthStart returns the first instant of the month after t, in UTC.
func nextMonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
