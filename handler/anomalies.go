// On-demand anomaly evaluation endpoint.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AlfredDev/kontext/server/anomaly"
	"github.com/AlfredDev/kontext/server/metrics"
	"github.com/AlfredDev/kontext/server/middleware"
	"github.com/AlfredDev/kontext/server/store"
)

// AnomaliesHandler handles POST /v1/anomalies/evaluate.
type AnomaliesHandler struct {
	logger    zerolog.Logger
	evaluator *anomaly.Evaluator
	metrics   *metrics.Registry
}

// NewAnomaliesHandler creates the anomaly evaluation endpoint handler.
// metrics may be nil.
func NewAnomaliesHandler(logger zerolog.Logger, e *anomaly.Evaluator, m *metrics.Registry) *AnomaliesHandler {
	return &AnomaliesHandler{logger: logger, evaluator: e, metrics: m}
}

// Evaluate handles POST /v1/anomalies/evaluate.
func (h *AnomaliesHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	agentID, _ := body["agentId"].(string)
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agentId is required")
		return
	}

	// Normalize amount to float64 — the request schema permits either a
	// JSON number or a numeric string.
	if raw, ok := body["amount"]; ok {
		switch v := raw.(type) {
		case string:
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				body["amount"] = parsed
			}
		}
	}

	projectID := middleware.GetProjectID(r.Context())
	now := time.Now().UTC()

	action := store.ActionRecord{
		ID:         uuid.NewString(),
		Timestamp:  now.Format(time.RFC3339),
		ReceivedAt: now.Format(time.RFC3339),
		ProjectID:  projectID,
		AgentID:    agentID,
		Type:       "transaction",
		Metadata:   body,
	}

	anomalies := h.evaluator.Evaluate(projectID, action, now)

	if h.metrics != nil {
		for _, a := range anomalies {
			h.metrics.TrackAnomalyDetected(projectID, a.Type, string(a.Severity))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"evaluated":    true,
		"anomalyCount": len(anomalies),
		"anomalies":    anomalies,
		"timestamp":    now.Format(time.RFC3339),
	})
}
