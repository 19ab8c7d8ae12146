package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/AlfredDev/kontext/server/middleware"
	"github.com/AlfredDev/kontext/server/store"
	"github.com/AlfredDev/kontext/server/trust"
)

// TrustHandler handles GET /v1/trust/:agentId.
type TrustHandler struct {
	logger zerolog.Logger
	store  *store.Store
}

// NewTrustHandler creates the trust score endpoint handler.
func NewTrustHandler(logger zerolog.Logger, s *store.Store) *TrustHandler {
	return &TrustHandler{logger: logger, store: s}
}

// Get handles GET /v1/trust/:agentId.
func (h *TrustHandler) Get(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	projectID := middleware.GetProjectID(r.Context())

	agg, found := h.store.GetTrustAggregate(projectID, agentID)
	score := trust.Compute(agg, found)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agentId":     agentID,
		"score":       score.Value,
		"level":       score.Level,
		"factors":     score.Factors,
		"computedAt":  time.Now().UTC().Format(time.RFC3339),
	})
}
