// Unauthenticated billing endpoints: checkout, portal, webhook, success redirect.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/kontext/server/billing"
	"github.com/AlfredDev/kontext/server/metrics"
)

// BillingHandler handles the unauthenticated /v1/checkout, /v1/portal,
// /v1/webhook/stripe, and /v1/checkout/success routes.
type BillingHandler struct {
	logger   zerolog.Logger
	mediator *billing.Mediator
	appURL   string
	metrics  *metrics.Registry
}

// NewBillingHandler creates the billing endpoint handler. metrics may be nil.
func NewBillingHandler(logger zerolog.Logger, m *billing.Mediator, appURL string, mt *metrics.Registry) *BillingHandler {
	return &BillingHandler{logger: logger, mediator: m, appURL: appURL, metrics: mt}
}

type createCheckoutRequest struct {
	APIKey     string `json:"apiKey"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

// CreateCheckout handles POST /v1/checkout.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req createCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "apiKey is required")
		return
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = h.appURL + "/v1/checkout/success?session_id={CHECKOUT_SESSION_ID}"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = h.appURL + "/pricing"
	}

	session, err := h.mediator.CreateCheckout(r.Context(), req.APIKey, successURL, cancelURL)
	if err != nil {
		h.logger.Error().Err(err).Msg("stripe checkout session creation failed")
		writeError(w, http.StatusBadGateway, "Unable to start checkout")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "url": session.URL, "sessionId": session.ID})
}

type createPortalRequest struct {
	StripeCustomerID string `json:"stripeCustomerId"`
}

// CreatePortal handles POST /v1/portal.
func (h *BillingHandler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	var req createPortalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.StripeCustomerID == "" {
		writeError(w, http.StatusBadRequest, "stripeCustomerId is required")
		return
	}

	session, err := h.mediator.CreatePortal(r.Context(), req.StripeCustomerID)
	if err != nil {
		h.logger.Error().Err(err).Msg("stripe portal session creation failed")
		writeError(w, http.StatusBadGateway, "Unable to open billing portal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "url": session.URL})
}

// Webhook handles POST /v1/webhook/stripe.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	result, err := h.mediator.HandleWebhook(r.Header.Get("Stripe-Signature"), rawBody, time.Now().UTC())
	if err != nil {
		h.logger.Warn().Err(err).Msg("rejected stripe webhook")
		writeError(w, http.StatusBadRequest, "Invalid webhook signature")
		return
	}

	if h.metrics != nil {
		h.metrics.TrackWebhookEvent(result.Type, result.Handled)
	}

	writeJSON(w, http.StatusOK, result)
}

// CheckoutSuccess handles GET /v1/checkout/success.
func (h *BillingHandler) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	details, err := h.mediator.ResolveCheckout(r.Context(), sessionID)
	if err != nil {
		h.logger.Error().Err(err).Msg("stripe checkout session resolution failed")
		writeError(w, http.StatusBadGateway, "Unable to resolve checkout session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"customerId":        details.CustomerID,
		"subscriptionId":    details.SubscriptionID,
		"apiKey":            details.ClientReferenceID,
		"paymentStatus":     details.PaymentStatus,
	})
}
