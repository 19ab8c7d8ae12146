// Batch action ingestion endpoint.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/kontext/server/ledger"
	"github.com/AlfredDev/kontext/server/metrics"
	"github.com/AlfredDev/kontext/server/middleware"
	"github.com/AlfredDev/kontext/server/store"
)

// ActionsHandler handles POST /v1/actions.
type ActionsHandler struct {
	logger  zerolog.Logger
	store   *store.Store
	ledger  *ledger.Ledger
	appURL  string
	metrics *metrics.Registry
}

// NewActionsHandler creates the action-ingestion handler. metrics may be nil.
func NewActionsHandler(logger zerolog.Logger, s *store.Store, l *ledger.Ledger, appURL string, m *metrics.Registry) *ActionsHandler {
	return &ActionsHandler{logger: logger, store: s, ledger: l, appURL: appURL, metrics: m}
}

type actionInput struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	AgentID       string                 `json:"agentId"`
	Timestamp     string                 `json:"timestamp"`
	CorrelationID string                 `json:"correlationId"`
	Description   string                 `json:"description"`
	Metadata      map[string]interface{} `json:"metadata"`
}

type actionsRequest struct {
	Actions []actionInput `json:"actions"`
}

// Ingest handles POST /v1/actions.
func (h *ActionsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req actionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	for _, a := range req.Actions {
		if a.ID == "" || a.Type == "" || a.AgentID == "" {
			writeError(w, http.StatusBadRequest, "Each action requires id, type, and agentId")
			return
		}
	}

	now := time.Now().UTC()
	projectID := middleware.GetProjectID(r.Context())
	apiKey := middleware.GetAPIKey(r.Context())

	records := make([]store.ActionRecord, 0, len(req.Actions))
	for _, a := range req.Actions {
		ts := a.Timestamp
		if ts == "" {
			ts = now.Format(time.RFC3339)
		}
		records = append(records, store.ActionRecord{
			ID:            a.ID,
			Timestamp:     ts,
			ReceivedAt:    now.Format(time.RFC3339),
			ProjectID:     projectID,
			AgentID:       a.AgentID,
			CorrelationID: a.CorrelationID,
			Type:          a.Type,
			Description:   a.Description,
			Metadata:      a.Metadata,
		})
	}

	h.store.AddActions(projectID, records, now)
	result := h.ledger.Track(apiKey, len(records), now)

	limitHeader := "unlimited"
	if !result.Usage.Unlimited() {
		limitHeader = strconv.Itoa(result.Usage.EffectiveLimit())
	}
	w.Header().Set("X-Kontext-Usage", strconv.Itoa(result.Usage.EventCount))
	w.Header().Set("X-Kontext-Limit", limitHeader)

	if h.metrics != nil {
		h.metrics.TrackActionsIngested(projectID, len(records), result.LimitExceeded)
	}

	if result.LimitExceeded {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"success":       true,
			"received":      len(records),
			"timestamp":     now.Format(time.RFC3339),
			"limitExceeded": true,
			"message":       fmt.Sprintf("Monthly event limit of %d exceeded for the %s plan. Upgrade at %s/pricing to continue.", result.Usage.EffectiveLimit(), result.Usage.Plan, h.appURL),
			"usage": map[string]interface{}{
				"plan":       result.Usage.Plan,
				"eventCount": result.Usage.EventCount,
				"limit":      result.Usage.EffectiveLimit(),
			},
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"received":  len(records),
		"timestamp": now.Format(time.RFC3339),
	})
}
