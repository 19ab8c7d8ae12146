package task_test

import (
	"testing"
	"time"

	"github.com/AlfredDev/kontext/server/store"
	"github.com/AlfredDev/kontext/server/task"
)

func TestCreateDefaultsExpiryTo24Hours(t *testing.T) {
	m := task.New(store.New())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	created := m.Create(task.CreateInput{
		ProjectID:        "proj1",
		AgentID:          "g1",
		RequiredEvidence: []string{"txHash"},
	}, now)

	if created.Status != store.TaskPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}
	if !created.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("expected default 24h expiry, got %v", created.ExpiresAt)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
}

func TestConfirmEndToEndScenario(t *testing.T) {
	m := task.New(store.New())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	created := m.Create(task.CreateInput{
		ProjectID:        "proj1",
		AgentID:          "g1",
		RequiredEvidence: []string{"txHash"},
	}, now)

	// Empty evidence object: missing required evidence.
	_, missing, err := m.Confirm(created.ID, map[string]interface{}{}, now)
	if err != task.ErrMissingEvidence {
		t.Fatalf("expected ErrMissingEvidence, got %v", err)
	}
	if len(missing) != 1 || missing[0] != "txHash" {
		t.Fatalf("expected missing=[txHash], got %v", missing)
	}

	// Evidence present but explicitly null is still missing.
	_, missing, err = m.Confirm(created.ID, map[string]interface{}{"txHash": nil}, now)
	if err != task.ErrMissingEvidence {
		t.Fatalf("expected ErrMissingEvidence for null value, got %v", err)
	}
	if len(missing) != 1 || missing[0] != "txHash" {
		t.Fatalf("expected missing=[txHash] for null value, got %v", missing)
	}

	// Valid confirm succeeds.
	confirmed, _, err := m.Confirm(created.ID, map[string]interface{}{"txHash": "0xabc"}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmed.Status != store.TaskConfirmed {
		t.Fatalf("expected confirmed, got %s", confirmed.Status)
	}
	if confirmed.ConfirmedAt == nil || !confirmed.ConfirmedAt.Equal(now) {
		t.Fatalf("expected confirmedAt set, got %v", confirmed.ConfirmedAt)
	}

	// Repeat confirm is a conflict.
	_, _, err = m.Confirm(created.ID, map[string]interface{}{"txHash": "0xdef"}, now)
	if err != task.ErrConflict {
		t.Fatalf("expected ErrConflict on repeat confirm, got %v", err)
	}
}

func TestConfirmUnknownTask(t *testing.T) {
	m := task.New(store.New())
	_, _, err := m.Confirm("ghost", map[string]interface{}{}, time.Now())
	if err != task.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFailTransitionsAndBlocksRepeat(t *testing.T) {
	s := store.New()
	m := task.New(s)
	now := time.Now()

	created := m.Create(task.CreateInput{
		ProjectID:        "proj1",
		AgentID:          "g1",
		RequiredEvidence: []string{"txHash"},
	}, now)

	failed, err := m.Fail(created.ID, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed.Status != store.TaskFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}

	agg, ok := s.GetTrustAggregate("proj1", "g1")
	if !ok || agg.FailedTasks != 1 {
		t.Fatalf("expected failedTasks=1 on trust aggregate, got %+v", agg)
	}

	if _, err := m.Fail(created.ID, now); err != task.ErrConflict {
		t.Fatalf("expected ErrConflict on repeat fail, got %v", err)
	}
}

func TestConfirmExpiredTaskIsConflict(t *testing.T) {
	s := store.New()
	m := task.New(s)
	now := time.Now()

	s.AddTask(store.Task{
		ID:               "t-expired",
		ProjectID:        "proj1",
		AgentID:          "g1",
		RequiredEvidence: []string{"txHash"},
		Status:           store.TaskPending,
		CreatedAt:        now.Add(-48 * time.Hour),
		UpdatedAt:        now.Add(-48 * time.Hour),
		ExpiresAt:        now.Add(-1 * time.Hour),
	})

	_, _, err := m.Confirm("t-expired", map[string]interface{}{"txHash": "0xabc"}, now)
	if err != task.ErrConflict {
		t.Fatalf("expected ErrConflict for lazily-expired task, got %v", err)
	}
}
