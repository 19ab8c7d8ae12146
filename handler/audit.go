package handler

import (
	"encoding/csv"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/kontext/server/middleware"
	"github.com/AlfredDev/kontext/server/store"
)

// AuditHandler handles GET /v1/audit/export.
type AuditHandler struct {
	logger zerolog.Logger
	store  *store.Store
}

// NewAuditHandler creates the audit export endpoint handler.
func NewAuditHandler(logger zerolog.Logger, s *store.Store) *AuditHandler {
	return &AuditHandler{logger: logger, store: s}
}

// Export handles GET /v1/audit/export.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ExportFilter{
		AgentID:   q.Get("agentId"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
	}

	projectID := middleware.GetProjectID(r.Context())
	now := time.Now().UTC()
	data := h.store.GetExportData(projectID, filter, now)

	if strings.EqualFold(q.Get("format"), "csv") {
		writeAuditCSV(w, data)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actions":   data.Actions,
		"tasks":     data.Tasks,
		"anomalies": data.Anomalies,
	})
}

// writeAuditCSV writes the action log as id,timestamp,type,agentId,description rows.
func writeAuditCSV(w http.ResponseWriter, data store.ExportData) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="kontext-audit.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	defer cw.Flush()

	cw.Write([]string{"id", "timestamp", "type", "agentId", "description"})
	for _, a := range data.Actions {
		cw.Write([]string{a.ID, a.Timestamp, a.Type, a.AgentID, a.Description})
	}
}
