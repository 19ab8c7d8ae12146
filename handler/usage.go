package handler

import (
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/kontext/server/ledger"
	"github.com/AlfredDev/kontext/server/middleware"
)

// UsageHandler handles GET /v1/usage.
type UsageHandler struct {
	logger zerolog.Logger
	ledger *ledger.Ledger
}

// NewUsageHandler creates the usage snapshot endpoint handler.
func NewUsageHandler(logger zerolog.Logger, l *ledger.Ledger) *UsageHandler {
	return &UsageHandler{logger: logger, ledger: l}
}

// Get handles GET /v1/usage.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	apiKey := middleware.GetAPIKey(r.Context())
	now := time.Now().UTC()

	usage := h.ledger.GetUsage(apiKey, now)

	body := map[string]interface{}{
		"plan":                usage.Plan,
		"seats":               usage.Seats,
		"eventCount":          usage.EventCount,
		"limitExceeded":       !usage.Unlimited() && usage.EventCount > usage.EffectiveLimit(),
		"billingPeriodStart":  usage.BillingPeriodStart.Format(time.RFC3339),
		"timestamp":           now.Format(time.RFC3339),
	}

	if usage.Unlimited() {
		body["limit"] = "unlimited"
		body["remainingEvents"] = nil
		body["usagePercentage"] = 0.0
	} else {
		limit := usage.EffectiveLimit()
		remaining := limit - usage.EventCount
		if remaining < 0 {
			remaining = 0
		}
		pct := 0.0
		if limit > 0 {
			pct = math.Round((float64(usage.EventCount)/float64(limit))*100*100) / 100
		}
		body["limit"] = limit
		body["remainingEvents"] = remaining
		body["usagePercentage"] = pct
	}

	writeJSON(w, http.StatusOK, body)
}
