package ledger_test

import (
	"testing"
	"time"

	"github.com/AlfredDev/kontext/server/config"
	"github.com/AlfredDev/kontext/server/ledger"
)

func TestGetUsageLazilyCreatesFreeTier(t *testing.T) {
	l := ledger.New(nil, nil)
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	u := l.GetUsage("unknown-key", now)
	if u.Plan != ledger.PlanFree || u.Seats != 1 {
		t.Fatalf("expected free/1-seat default, got %+v", u)
	}
	if u.EffectiveLimit() != 20_000 {
		t.Fatalf("expected free limit 20000, got %d", u.EffectiveLimit())
	}
}

func TestTrackBoundaryAtLimit(t *testing.T) {
	l := ledger.New(nil, nil)
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	r := l.Track("k1", 20_000, now)
	if r.LimitExceeded {
		t.Fatal("event count exactly at limit must not be exceeded")
	}

	r = l.Track("k1", 1, now)
	if !r.LimitExceeded {
		t.Fatal("limit+1 must be exceeded")
	}
	if r.Usage.EventCount != 20_001 {
		t.Fatalf("expected over-limit event still recorded, got %d", r.Usage.EventCount)
	}
}

func TestProPlanScalesBySeats(t *testing.T) {
	plans := map[string]config.PlanAssignment{"k2": {Plan: "pro", Seats: 3}}
	l := ledger.New(plans, nil)
	now := time.Now()

	u := l.GetUsage("k2", now)
	if u.EffectiveLimit() != 300_000 {
		t.Fatalf("expected 300000 for 3-seat pro, got %d", u.EffectiveLimit())
	}
}

func TestEnterpriseIsUnlimited(t *testing.T) {
	plans := map[string]config.PlanAssignment{"k3": {Plan: "enterprise", Seats: 1}}
	l := ledger.New(plans, nil)
	now := time.Now()

	r := l.Track("k3", 10_000_000, now)
	if r.LimitExceeded {
		t.Fatal("enterprise plan must never report limitExceeded")
	}
}

func TestBillingPeriodRollsOverAtUTCMonthBoundary(t *testing.T) {
	l := ledger.New(nil, nil)
	jan := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 0, 0, 1, 0, time.UTC)

	l.Track("k4", 500, jan)
	r := l.Track("k4", 10, feb)

	if r.Usage.EventCount != 10 {
		t.Fatalf("expected counter to reset across month boundary, got %d", r.Usage.EventCount)
	}
	if !r.Usage.BillingPeriodStart.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected billing period to advance to Feb 1, got %v", r.Usage.BillingPeriodStart)
	}
}

func TestReloadReplacesAssignmentsAtomically(t *testing.T) {
	l := ledger.New(map[string]config.PlanAssignment{"k5": {Plan: "free", Seats: 1}}, nil)
	now := time.Now()
	_ = l.GetUsage("k5", now) // materializes k5's record before the reload

	l.Reload(map[string]config.PlanAssignment{"k6": {Plan: "pro", Seats: 2}})

	u := l.GetUsage("k6", now)
	if u.Plan != "pro" || u.Seats != 2 {
		t.Fatalf("expected reloaded assignment to apply to new keys, got %+v", u)
	}
}
