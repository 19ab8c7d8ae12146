package store

import "time"

// ActionRecord is an immutable log entry. Never mutated or deleted by the
// core once appended.
type ActionRecord struct {
	ID            string                 `json:"id"`
	Timestamp     string                 `json:"timestamp"`
	ReceivedAt    string                 `json:"receivedAt"`
	ProjectID     string                 `json:"projectId"`
	AgentID       string                 `json:"agentId"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	Type          string                 `json:"type"`
	Description   string                 `json:"description,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// TaskStatus enumerates the task state machine's states.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskConfirmed TaskStatus = "confirmed"
	TaskFailed    TaskStatus = "failed"
	TaskExpired   TaskStatus = "expired"
)

// Task is a confirmation work item with a required-evidence contract.
type Task struct {
	ID               string                 `json:"id"`
	ProjectID        string                 `json:"projectId"`
	AgentID          string                 `json:"agentId"`
	Description      string                 `json:"description"`
	CorrelationID    string                 `json:"correlationId,omitempty"`
	Status           TaskStatus             `json:"status"`
	RequiredEvidence []string               `json:"requiredEvidence"`
	ProvidedEvidence map[string]interface{} `json:"providedEvidence,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
	ConfirmedAt      *time.Time             `json:"confirmedAt,omitempty"`
	ExpiresAt        time.Time              `json:"expiresAt"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	Version          int                    `json:"version"`
}

// EffectiveStatus lazily promotes a pending task to expired if its deadline
// has passed. It never mutates the receiver.
func (t Task) EffectiveStatus(now time.Time) TaskStatus {
	if t.Status == TaskPending && !now.Before(t.ExpiresAt) {
		return TaskExpired
	}
	return t.Status
}

// AgentTrustAggregate is the per (projectId, agentId) rolling counter set
// consumed by the trust scorer.
type AgentTrustAggregate struct {
	ProjectID       string    `json:"projectId"`
	AgentID         string    `json:"agentId"`
	ActionCount     int       `json:"actionCount"`
	TransactionCount int      `json:"transactionCount"`
	AnomalyCount    int       `json:"anomalyCount"`
	ConfirmedTasks  int       `json:"confirmedTasks"`
	FailedTasks     int       `json:"failedTasks"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

// AnomalySeverity enumerates anomaly record severities.
type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "low"
	SeverityMedium   AnomalySeverity = "medium"
	SeverityHigh     AnomalySeverity = "high"
	SeverityCritical AnomalySeverity = "critical"
)

// AnomalyRecord is produced by the anomaly evaluator and persisted via
// Store.AddAnomaly.
type AnomalyRecord struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Severity    AnomalySeverity        `json:"severity"`
	Description string                 `json:"description"`
	AgentID     string                 `json:"agentId"`
	ActionID    string                 `json:"actionId,omitempty"`
	ProjectID   string                 `json:"projectId"`
	DetectedAt  time.Time              `json:"detectedAt"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Reviewed    bool                   `json:"reviewed"`
}

// ActionFilter narrows GetActions / GetExportData results.
type ActionFilter struct {
	AgentID   string
	Type      string
	StartDate string // inclusive, ISO-8601 lexicographic comparison
	EndDate   string // inclusive
}

func (f ActionFilter) matches(a ActionRecord) bool {
	if f.AgentID != "" && a.AgentID != f.AgentID {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.StartDate != "" && a.Timestamp < f.StartDate {
		return false
	}
	if f.EndDate != "" && a.Timestamp > f.EndDate {
		return false
	}
	return true
}

// ExportFilter narrows GetExportData; Tasks are filtered by CreatedAt,
// Anomalies by DetectedAt, using the same inclusive string/instant bounds.
type ExportFilter struct {
	AgentID   string
	StartDate string
	EndDate   string
}

// ExportData is the snapshot returned by Store.GetExportData.
type ExportData struct {
	Actions   []ActionRecord
	Tasks     []Task
	Anomalies []AnomalyRecord
}

// TaskUpdate is a partial update applied by Store.UpdateTask. Nil fields are
// left unchanged.
type TaskUpdate struct {
	Status           *TaskStatus
	ProvidedEvidence map[string]interface{}
	ConfirmedAt      *time.Time
	UpdatedAt        *time.Time
}
