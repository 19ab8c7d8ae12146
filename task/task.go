// Confirmation task lifecycle: create, confirm, fail, with lazy expiry.
package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/AlfredDev/kontext/server/store"
)

type taskError string

func (e taskError) Error() string { return string(e) }

const (
	// ErrNotFound is returned when the task id is unknown.
	ErrNotFound = taskError("task not found")
	// ErrConflict is returned when a terminal task is re-transitioned.
	ErrConflict = taskError("task already confirmed")
	// ErrMissingEvidence is returned when required evidence is absent or null.
	ErrMissingEvidence = taskError("missing required evidence")
)

// defaultExpiry is the default task lifetime per spec §3.
const defaultExpiry = 24 * time.Hour

// CreateInput is the payload accepted by Create.
type CreateInput struct {
	ProjectID        string
	AgentID          string
	Description      string
	CorrelationID    string
	RequiredEvidence []string
	ExpiresIn        time.Duration // zero means defaultExpiry
	Metadata         map[string]interface{}
}

// Manager wraps the store with the task state machine's transition rules.
type Manager struct {
	store *store.Store
}

// New creates a task Manager over the given store.
func New(s *store.Store) *Manager {
	return &Manager{store: s}
}

// Create inserts a new pending task.
func (m *Manager) Create(in CreateInput, now time.Time) store.Task {
	expiresIn := in.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiry
	}
	t := store.Task{
		ID:               uuid.NewString(),
		ProjectID:        in.ProjectID,
		AgentID:          in.AgentID,
		Description:      in.Description,
		CorrelationID:    in.CorrelationID,
		Status:           store.TaskPending,
		RequiredEvidence: in.RequiredEvidence,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        now.Add(expiresIn),
		Metadata:         in.Metadata,
	}
	return m.store.AddTask(t)
}

// Get reads a task with lazy expiry applied.
func (m *Manager) Get(taskID string, now time.Time) (store.Task, bool) {
	return m.store.GetTask(taskID, now)
}

// List returns a project's tasks, optionally filtered by effective status.
func (m *Manager) List(projectID string, status *store.TaskStatus, now time.Time) []store.Task {
	return m.store.GetTasks(projectID, status, now)
}

// MissingEvidenceKeys returns the requiredEvidence keys absent from evidence
// or explicitly null, in requiredEvidence order.
func MissingEvidenceKeys(required []string, evidence map[string]interface{}) []string {
	missing := make([]string, 0)
	for _, key := range required {
		v, present := evidence[key]
		if !present || v == nil {
			missing = append(missing, key)
		}
	}
	return missing
}

// Confirm validates evidence against the task's requiredEvidence contract
// and, on success, transitions the task to confirmed. It returns
// ErrNotFound, ErrConflict (task already in a terminal state), or
// ErrMissingEvidence (with the missing keys) as appropriate.
func (m *Manager) Confirm(taskID string, evidence map[string]interface{}, now time.Time) (store.Task, []string, error) {
	current, ok := m.store.GetTask(taskID, now)
	if !ok {
		return store.Task{}, nil, ErrNotFound
	}
	if current.Status != store.TaskPending {
		return store.Task{}, nil, ErrConflict
	}

	missing := MissingEvidenceKeys(current.RequiredEvidence, evidence)
	if len(missing) > 0 {
		return store.Task{}, missing, ErrMissingEvidence
	}

	confirmed := store.TaskConfirmed
	confirmedAt := now
	updated, err := m.store.UpdateTask(taskID, store.TaskUpdate{
		Status:           &confirmed,
		ProvidedEvidence: evidence,
		ConfirmedAt:      &confirmedAt,
		UpdatedAt:        &now,
	}, now)
	if err != nil {
		return store.Task{}, nil, ErrNotFound
	}

	m.store.IncrementTaskOutcome(updated.ProjectID, updated.AgentID, true, now)
	return updated, nil, nil
}

// Fail transitions a pending task to failed. Terminal tasks cannot be
// re-failed.
func (m *Manager) Fail(taskID string, now time.Time) (store.Task, error) {
	current, ok := m.store.GetTask(taskID, now)
	if !ok {
		return store.Task{}, ErrNotFound
	}
	if current.Status != store.TaskPending {
		return store.Task{}, ErrConflict
	}

	failed := store.TaskFailed
	updated, err := m.store.UpdateTask(taskID, store.TaskUpdate{Status: &failed, UpdatedAt: &now}, now)
	if err != nil {
		return store.Task{}, ErrNotFound
	}

	m.store.IncrementTaskOutcome(updated.ProjectID, updated.AgentID, false, now)
	return updated, nil
}
