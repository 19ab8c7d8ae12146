// Tenant-partitioned in-memory store for actions, tasks, trust, and anomalies.
package store

import (
	"sort"
	"sync"
	"time"
)

// storeError is a small sentinel error type, matching the teacher's
// meteringError pattern.
type storeError string

func (e storeError) Error() string { return string(e) }

const (
	ErrTaskNotFound = storeError("task not found")
)

// projectPartition holds one tenant's actions and anomalies plus its agents'
// trust aggregates. All operations on a partition take the partition's own
// lock, giving linearizability per projectId without a single global lock.
type projectPartition struct {
	mu         sync.RWMutex
	actions    []ActionRecord
	anomalies  []AnomalyRecord
	aggregates map[string]*AgentTrustAggregate // agentId -> aggregate
}

// Store is the tenant-partitioned repository described in spec §4.1.
type Store struct {
	partitionsMu sync.Mutex
	partitions   map[string]*projectPartition

	tasksMu sync.Mutex
	tasks   map[string]*Task
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		partitions: make(map[string]*projectPartition),
		tasks:      make(map[string]*Task),
	}
}

func (s *Store) partition(projectID string) *projectPartition {
	s.partitionsMu.Lock()
	defer s.partitionsMu.Unlock()
	p, ok := s.partitions[projectID]
	if !ok {
		p = &projectPartition{aggregates: make(map[string]*AgentTrustAggregate)}
		s.partitions[projectID] = p
	}
	return p
}

// AddActions appends a batch of actions and updates every distinct agent's
// trust aggregate atomically with the append — no reader can observe the
// actions without also observing the aggregate debit for the same batch.
func (s *Store) AddActions(projectID string, actions []ActionRecord, now time.Time) {
	if len(actions) == 0 {
		return
	}
	p := s.partition(projectID)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.actions = append(p.actions, actions...)

	perAgentTotal := make(map[string]int)
	perAgentTx := make(map[string]int)
	for _, a := range actions {
		perAgentTotal[a.AgentID]++
		if a.Type == "transaction" {
			perAgentTx[a.AgentID]++
		}
	}

	for agentID, count := range perAgentTotal {
		agg, ok := p.aggregates[agentID]
		if !ok {
			agg = &AgentTrustAggregate{ProjectID: projectID, AgentID: agentID}
			p.aggregates[agentID] = agg
		}
		agg.ActionCount += count
		agg.TransactionCount += perAgentTx[agentID]
		agg.LastUpdated = now
	}
}

// GetActions returns a filtered snapshot of a project's actions, preserving
// ingestion order.
func (s *Store) GetActions(projectID string, filter ActionFilter) []ActionRecord {
	p := s.partition(projectID)
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ActionRecord, 0, len(p.actions))
	for _, a := range p.actions {
		if filter.matches(a) {
			out = append(out, a)
		}
	}
	return out
}

// AddTask inserts a new task.
func (s *Store) AddTask(t Task) Task {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	cp := t
	cp.Version = 1
	s.tasks[t.ID] = &cp
	return cp
}

// GetTask returns the task, with lazy expiry applied, or false if unknown.
func (s *Store) GetTask(taskID string, now time.Time) (Task, bool) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	out := *t
	out.Status = out.EffectiveStatus(now)
	return out, true
}

// UpdateTask applies a partial update and returns the new state. Returns
// ErrTaskNotFound if the task does not exist. The lazy-expiry status is
// re-applied to the stored record before the partial update so a caller
// reading an already-expired task's latest state sees "expired" persisted.
func (s *Store) UpdateTask(taskID string, update TaskUpdate, now time.Time) (Task, error) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}

	t.Status = t.EffectiveStatus(now)
	if update.Status != nil {
		t.Status = *update.Status
	}
	if update.ProvidedEvidence != nil {
		t.ProvidedEvidence = update.ProvidedEvidence
	}
	if update.ConfirmedAt != nil {
		t.ConfirmedAt = update.ConfirmedAt
	}
	if update.UpdatedAt != nil {
		t.UpdatedAt = *update.UpdatedAt
	} else {
		t.UpdatedAt = now
	}
	t.Version++

	return *t, nil
}

// GetTasks returns all tasks for a project, optionally filtered by effective
// status (expiry applied before filtering).
func (s *Store) GetTasks(projectID string, status *TaskStatus, now time.Time) []Task {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	out := make([]Task, 0)
	for _, t := range s.tasks {
		if t.ProjectID != projectID {
			continue
		}
		eff := *t
		eff.Status = eff.EffectiveStatus(now)
		if status != nil && eff.Status != *status {
			continue
		}
		out = append(out, eff)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetTrustAggregate returns the aggregate for (projectID, agentID), or the
// zero value and false if none exists yet. Never allocates one.
func (s *Store) GetTrustAggregate(projectID, agentID string) (AgentTrustAggregate, bool) {
	p := s.partition(projectID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	agg, ok := p.aggregates[agentID]
	if !ok {
		return AgentTrustAggregate{}, false
	}
	return *agg, true
}

// IncrementTaskOutcome bumps confirmedTasks or failedTasks on the agent's
// trust aggregate, creating it lazily if absent (a confirmed/failed task
// always implies at least one prior action exists in realistic use, but the
// aggregate is created defensively so counts are never lost).
func (s *Store) IncrementTaskOutcome(projectID, agentID string, confirmed bool, now time.Time) {
	p := s.partition(projectID)
	p.mu.Lock()
	defer p.mu.Unlock()

	agg, ok := p.aggregates[agentID]
	if !ok {
		agg = &AgentTrustAggregate{ProjectID: projectID, AgentID: agentID}
		p.aggregates[agentID] = agg
	}
	if confirmed {
		agg.ConfirmedTasks++
	} else {
		agg.FailedTasks++
	}
	agg.LastUpdated = now
}

// AddAnomaly appends an anomaly and, if a trust aggregate already exists for
// (projectID, anomaly.AgentID), increments its anomalyCount atomically with
// the append. If no aggregate exists yet, the anomaly is still recorded but
// no aggregate is created (per spec §4.1).
func (s *Store) AddAnomaly(projectID string, a AnomalyRecord) {
	p := s.partition(projectID)
	p.mu.Lock()
	defer p.mu.Unlock()

	p.anomalies = append(p.anomalies, a)
	if agg, ok := p.aggregates[a.AgentID]; ok {
		agg.AnomalyCount++
		agg.LastUpdated = a.DetectedAt
	}
}

// GetAnomalies returns all anomalies recorded for a project, optionally
// narrowed to a single agent.
func (s *Store) GetAnomalies(projectID, agentID string) []AnomalyRecord {
	p := s.partition(projectID)
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]AnomalyRecord, 0, len(p.anomalies))
	for _, a := range p.anomalies {
		if agentID == "" || a.AgentID == agentID {
			out = append(out, a)
		}
	}
	return out
}

// CountRecentActions returns the number of actions for (projectID, agentID)
// whose timestamp is >= since (string-lexicographic RFC3339 comparison, per
// spec §4.6 Rule B). Used by the frequencySpike anomaly rule.
func (s *Store) CountRecentActions(projectID, agentID, since string) int {
	p := s.partition(projectID)
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := 0
	for _, a := range p.actions {
		if a.AgentID == agentID && a.Timestamp >= since {
			count++
		}
	}
	return count
}

// GetExportData returns the filtered snapshot consumed by the audit export
// endpoint: actions filtered by Timestamp, tasks by CreatedAt, anomalies by
// DetectedAt, all against the same inclusive bounds.
func (s *Store) GetExportData(projectID string, filter ExportFilter, now time.Time) ExportData {
	actions := s.GetActions(projectID, ActionFilter{
		AgentID:   filter.AgentID,
		StartDate: filter.StartDate,
		EndDate:   filter.EndDate,
	})

	tasks := make([]Task, 0)
	for _, t := range s.GetTasks(projectID, nil, now) {
		if filter.AgentID != "" && t.AgentID != filter.AgentID {
			continue
		}
		created := t.CreatedAt.Format(time.RFC3339)
		if filter.StartDate != "" && created < filter.StartDate {
			continue
		}
		if filter.EndDate != "" && created > filter.EndDate {
			continue
		}
		tasks = append(tasks, t)
	}

	anomalies := make([]AnomalyRecord, 0)
	for _, a := range s.GetAnomalies(projectID, filter.AgentID) {
		detected := a.DetectedAt.Format(time.RFC3339)
		if filter.StartDate != "" && detected < filter.StartDate {
			continue
		}
		if filter.EndDate != "" && detected > filter.EndDate {
			continue
		}
		anomalies = append(anomalies, a)
	}

	return ExportData{Actions: actions, Tasks: tasks, Anomalies: anomalies}
}
