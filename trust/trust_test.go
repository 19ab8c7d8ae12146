package trust_test

import (
	"testing"

	"github.com/AlfredDev/kontext/server/store"
	"github.com/AlfredDev/kontext/server/trust"
)

func TestComputeDefaultsForUnknownAgent(t *testing.T) {
	s := trust.Compute(store.AgentTrustAggregate{}, false)
	if s.Value != 50 || s.Level != trust.LevelMedium {
		t.Fatalf("expected default score 50/medium, got %+v", s)
	}
	if len(s.Factors) != 1 || s.Factors[0].Name != "history_depth" {
		t.Fatalf("expected single history_depth factor, got %+v", s.Factors)
	}
	if s.Factors[0].Value != 10 || s.Factors[0].Weight != 0.2 {
		t.Fatalf("expected history_depth factor value=10 weight=0.2, got %+v", s.Factors[0])
	}
}

func TestComputeScoreStaysInBounds(t *testing.T) {
	cases := []store.AgentTrustAggregate{
		{ActionCount: 1, AnomalyCount: 0, ConfirmedTasks: 0, FailedTasks: 0},
		{ActionCount: 1000, AnomalyCount: 900, ConfirmedTasks: 0, FailedTasks: 100},
		{ActionCount: 500, AnomalyCount: 0, ConfirmedTasks: 50, FailedTasks: 0},
	}
	for _, c := range cases {
		s := trust.Compute(c, true)
		if s.Value < 0 || s.Value > 100 {
			t.Fatalf("score out of bounds for %+v: %d", c, s.Value)
		}
	}
}

func TestComputeExactFormula(t *testing.T) {
	// historyScore = min(50*2,100) = 100
	// anomalyPenalty = 2*10 = 20
	// taskBonus = 8/(8+2)*30 = 24
	// score = clamp(round(100-20+24),0,100) = 100 (clamped from 104)
	agg := store.AgentTrustAggregate{ActionCount: 50, AnomalyCount: 2, ConfirmedTasks: 8, FailedTasks: 2}
	s := trust.Compute(agg, true)
	if s.Value != 100 {
		t.Fatalf("expected score 100 (clamped), got %d", s.Value)
	}
	if s.Level != trust.LevelVerified {
		t.Fatalf("expected verified at score 100, got %s", s.Level)
	}
}

func TestComputeNoConfirmedTasksMeansZeroBonus(t *testing.T) {
	// historyScore = min(10*2,100) = 20, anomalyPenalty = 0, taskBonus = 0 (no confirmed tasks)
	agg := store.AgentTrustAggregate{ActionCount: 10, AnomalyCount: 0, ConfirmedTasks: 0, FailedTasks: 5}
	s := trust.Compute(agg, true)
	if s.Value != 20 {
		t.Fatalf("expected score 20, got %d", s.Value)
	}
	if s.Level != trust.LevelUntrusted {
		t.Fatalf("expected untrusted below 30, got %s", s.Level)
	}
}

func TestLevelBandBoundaries(t *testing.T) {
	// historyScore is tuned via actionCount (even multiples of 2), and an
	// odd remainder is added via a 3/10 confirmed-task ratio (taskBonus=9)
	// to hit exact target scores.
	cases := []struct {
		score          int
		level          trust.Level
		actionCount    int
		confirmedTasks int
		failedTasks    int
	}{
		{90, trust.LevelVerified, 45, 0, 0},
		{89, trust.LevelHigh, 40, 3, 7},
		{70, trust.LevelHigh, 35, 0, 0},
		{69, trust.LevelMedium, 30, 3, 7},
		{50, trust.LevelMedium, 25, 0, 0},
		{49, trust.LevelLow, 20, 3, 7},
		{30, trust.LevelLow, 15, 0, 0},
		{29, trust.LevelUntrusted, 10, 3, 7},
	}
	for _, c := range cases {
		agg := store.AgentTrustAggregate{ActionCount: c.actionCount, ConfirmedTasks: c.confirmedTasks, FailedTasks: c.failedTasks}
		s := trust.Compute(agg, true)
		if s.Value != c.score {
			t.Fatalf("setup error: expected raw score %d, got %d (agg=%+v)", c.score, s.Value, agg)
		}
		if s.Level != c.level {
			t.Fatalf("score %d: expected level %s, got %s", c.score, c.level, s.Level)
		}
	}
}
