// Per-API-key plan/usage ledger with monthly rollover.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/AlfredDev/kontext/server/config"
	"github.com/AlfredDev/kontext/server/redisclient"
)

// Plan tiers and their per-seat monthly event limits.
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"

	freeMonthlyLimit = 20_000
	proPerSeatLimit  = 100_000
)

// Usage is the ApiKeyUsage record described in spec §3.
type Usage struct {
	Plan                string
	Seats               int
	EventCount          int
	BillingPeriodStart  time.Time
}

// EffectiveLimit returns the monthly event cap for this usage record.
// Enterprise is unbounded (represented as -1); pro scales linearly by
// seats; free is pinned to one seat.
func (u Usage) EffectiveLimit() int {
	switch u.Plan {
	case PlanEnterprise:
		return -1
	case PlanPro:
		return proPerSeatLimit * u.Seats
	default:
		return freeMonthlyLimit
	}
}

// Unlimited reports whether EffectiveLimit is unbounded.
func (u Usage) Unlimited() bool { return u.Plan == PlanEnterprise }

// Ledger tracks per-API-key usage in an in-memory map. If a reachable Redis
// client is supplied, each tracked batch is also added to a per-period Redis
// counter; that counter is only written, never read back, so plan, seats,
// event counts and limit decisions all come from this process's map.
type Ledger struct {
	mu      sync.Mutex
	usage   map[string]*Usage
	plans   map[string]config.PlanAssignment
	redis   *redisclient.Client
}

// New creates a Ledger seeded with the given plan-assignment table. redis
// may be nil, in which case the ledger runs purely in-memory.
func New(plans map[string]config.PlanAssignment, redis *redisclient.Client) *Ledger {
	l := &Ledger{
		usage: make(map[string]*Usage),
		plans: make(map[string]config.PlanAssignment, len(plans)),
		redis: redis,
	}
	for k, v := range plans {
		l.plans[k] = v
	}
	return l
}

// Reload atomically replaces the plan-assignment table. Existing per-key
// Usage records are left untouched and keep their plan and seats; the new
// table applies only to keys whose record is first created after the reload.
func (l *Ledger) Reload(plans map[string]config.PlanAssignment) {
	copy := make(map[string]config.PlanAssignment, len(plans))
	for k, v := range plans {
		copy[k] = v
	}
	l.mu.Lock()
	l.plans = copy
	l.mu.Unlock()
}

// SetPlan directly assigns key's plan and seat count, creating or updating
// its usage record in place. Used by the billing mediator when a webhook
// event activates, resizes, or downgrades a subscription — unlike Reload,
// this mutates a single key's live Usage record rather than the static
// plan-assignment table, so an existing billing period's event count is
// preserved across the plan change.
func (l *Ledger) SetPlan(key, plan string, seats int) {
	if seats < 1 {
		seats = 1
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.getOrCreateLocked(key, now)
	u.Plan = plan
	u.Seats = seats
}

// billingPeriodStart returns the first instant of t's UTC month.
func billingPeriodStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// rollIfNeeded resets eventCount and advances billingPeriodStart if the
// current UTC month has advanced past the recorded one. Caller must hold l.mu.
func rollIfNeeded(u *Usage, now time.Time) {
	current := billingPeriodStart(now)
	if current.After(u.BillingPeriodStart) {
		u.BillingPeriodStart = current
		u.EventCount = 0
	}
}

// GetUsage returns the current usage for key, lazily creating a free-tier
// record (or one seeded from the plan-assignment table) on first access,
// and rolling the billing period forward if needed.
func (l *Ledger) GetUsage(key string, now time.Time) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.getOrCreateLocked(key, now)
}

func (l *Ledger) getOrCreateLocked(key string, now time.Time) *Usage {
	u, ok := l.usage[key]
	if !ok {
		assignment, ok := l.plans[key]
		plan, seats := PlanFree, 1
		if ok {
			plan, seats = assignment.Plan, assignment.Seats
			if seats < 1 {
				seats = 1
			}
		}
		u = &Usage{Plan: plan, Seats: seats, BillingPeriodStart: billingPeriodStart(now)}
		l.usage[key] = u
	}
	rollIfNeeded(u, now)
	return u
}

// TrackResult is returned by Track.
type TrackResult struct {
	Usage         Usage
	LimitExceeded bool
}

// Track adds count to key's event counter (after any billing-period roll)
// and reports whether the new total strictly exceeds the effective limit.
// Over-limit events are still recorded.
func (l *Ledger) Track(key string, count int, now time.Time) TrackResult {
	l.mu.Lock()
	u := l.getOrCreateLocked(key, now)
	u.EventCount += count
	result := TrackResult{Usage: *u, LimitExceeded: !u.Unlimited() && u.EventCount > u.EffectiveLimit()}
	l.mu.Unlock()

	if l.redis != nil {
		// Best-effort mirror into Redis for cross-process visibility; the
		// in-memory value above remains authoritative for this process.
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		_, _ = l.redis.AddBy(ctx, redisKey(key, result.Usage.BillingPeriodStart), int64(count), 32*24*time.Hour)
		cancel()
	}

	return result
}

func redisKey(apiKey string, periodStart time.Time) string {
	return "kontext:usage:" + apiKey + ":" + periodStart.Format("2006-01")
}
