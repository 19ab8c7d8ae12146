// Task creation, confirmation, and read endpoints.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/AlfredDev/kontext/server/metrics"
	"github.com/AlfredDev/kontext/server/middleware"
	"github.com/AlfredDev/kontext/server/task"
)

// TasksHandler handles POST /v1/tasks, GET /v1/tasks/:id, and
// PUT /v1/tasks/:id/confirm.
type TasksHandler struct {
	logger  zerolog.Logger
	tasks   *task.Manager
	metrics *metrics.Registry
}

// NewTasksHandler creates the task confirmation endpoint handler. metrics
// may be nil.
func NewTasksHandler(logger zerolog.Logger, tasks *task.Manager, m *metrics.Registry) *TasksHandler {
	return &TasksHandler{logger: logger, tasks: tasks, metrics: m}
}

type createTaskRequest struct {
	Description      string                 `json:"description"`
	AgentID          string                 `json:"agentId"`
	RequiredEvidence []string               `json:"requiredEvidence"`
	CorrelationID    string                 `json:"correlationId"`
	ExpiresInMs      int64                  `json:"expiresInMs"`
	Metadata         map[string]interface{} `json:"metadata"`
}

// Create handles POST /v1/tasks.
func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agentId is required")
		return
	}
	if len(req.RequiredEvidence) == 0 {
		writeError(w, http.StatusBadRequest, "requiredEvidence is required and must be non-empty")
		return
	}

	now := time.Now().UTC()
	projectID := middleware.GetProjectID(r.Context())

	var expiresIn time.Duration
	if req.ExpiresInMs > 0 {
		expiresIn = time.Duration(req.ExpiresInMs) * time.Millisecond
	}

	t := h.tasks.Create(task.CreateInput{
		ProjectID:        projectID,
		AgentID:          req.AgentID,
		Description:      req.Description,
		CorrelationID:    req.CorrelationID,
		RequiredEvidence: req.RequiredEvidence,
		ExpiresIn:        expiresIn,
		Metadata:         req.Metadata,
	}, now)

	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "task": t})
}

// Get handles GET /v1/tasks/:id.
func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	now := time.Now().UTC()

	t, ok := h.tasks.Get(id, now)
	if !ok {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "task": t})
}

type confirmTaskRequest struct {
	Evidence *map[string]interface{} `json:"evidence"`
}

// Confirm handles PUT /v1/tasks/:id/confirm.
func (h *TasksHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req confirmTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Evidence == nil {
		writeError(w, http.StatusBadRequest, `Request body must contain "evidence" object`)
		return
	}

	now := time.Now().UTC()
	t, missing, err := h.tasks.Confirm(id, *req.Evidence, now)
	switch err {
	case nil:
		if h.metrics != nil {
			h.metrics.TrackTaskOutcome(middleware.GetProjectID(r.Context()), "confirmed")
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "task": t})
	case task.ErrNotFound:
		writeError(w, http.StatusNotFound, "Task not found")
	case task.ErrConflict:
		writeError(w, http.StatusConflict, "Task already confirmed")
	case task.ErrMissingEvidence:
		writeError(w, http.StatusBadRequest, "Missing required evidence: "+strings.Join(missing, ", "))
	default:
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}
