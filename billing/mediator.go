// Stripe webhook verification and event-to-ledger translation.
package billing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AlfredDev/kontext/server/config"
	"github.com/AlfredDev/kontext/server/ledger"
)

type mediatorError string

func (e mediatorError) Error() string { return string(e) }

const ErrInvalidSignature = mediatorError("invalid webhook signature")

// Event is a decoded, verified webhook payload.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Result describes how a verified event was (or was not) handled.
type Result struct {
	Type    string                 `json:"type"`
	Handled bool                   `json:"handled"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// checkoutCompletedData is the subset of checkout.session.completed's data
// object the mediator consumes.
type checkoutCompletedData struct {
	ClientReferenceID string `json:"client_reference_id"`
	Subscription      string `json:"subscription"`
	Metadata          struct {
		Seats int `json:"seats"`
	} `json:"metadata"`
}

type subscriptionUpdatedData struct {
	ID                 string `json:"id"`
	ClientReferenceID  string `json:"client_reference_id"`
	Status             string `json:"status"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
}

type subscriptionDeletedData struct {
	ClientReferenceID string `json:"client_reference_id"`
}

// Mediator verifies and dispatches billing webhook events.
type Mediator struct {
	cfg        config.Config
	client     *Client
	ledger     *ledger.Ledger
	reconciler *Reconciler
}

// New creates a Mediator wired to the given ledger and Stripe client.
func New(cfg config.Config, client *Client, l *ledger.Ledger) *Mediator {
	return &Mediator{cfg: cfg, client: client, ledger: l}
}

// SetReconciler wires a background reconciler so that subscriptions
// activated or updated through webhooks get tracked for drift polling.
// Optional: a nil reconciler leaves webhook handling unaffected.
func (m *Mediator) SetReconciler(r *Reconciler) {
	m.reconciler = r
}

// HandleWebhook verifies the signature on rawBody against the signature
// header, then dispatches the decoded event. Unknown event types return a
// Result with Handled=false and a nil error (per spec, they are
// acknowledged with 2xx, not rejected).
func (m *Mediator) HandleWebhook(signatureHeader string, rawBody []byte, now time.Time) (Result, error) {
	if err := VerifySignature(signatureHeader, rawBody, m.cfg.StripeWebhookSecret, now, 300*time.Second); err != nil {
		return Result{}, ErrInvalidSignature
	}

	var evt Event
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return Result{}, ErrInvalidSignature
	}

	switch evt.Type {
	case "checkout.session.completed":
		return m.handleCheckoutCompleted(evt)
	case "customer.subscription.updated":
		return m.handleSubscriptionUpdated(evt)
	case "customer.subscription.deleted":
		return m.handleSubscriptionDeleted(evt)
	case "invoice.payment_succeeded":
		return Result{Type: evt.Type, Handled: true, Data: map[string]interface{}{"action": "payment_succeeded"}}, nil
	case "invoice.payment_failed":
		return Result{Type: evt.Type, Handled: true, Data: map[string]interface{}{"action": "payment_failed"}}, nil
	default:
		return Result{Type: evt.Type, Handled: false}, nil
	}
}

func (m *Mediator) handleCheckoutCompleted(evt Event) (Result, error) {
	var data checkoutCompletedData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return Result{Type: evt.Type, Handled: false}, nil
	}

	seats := data.Metadata.Seats
	if seats < 1 {
		seats = 1
	}
	m.ledger.SetPlan(data.ClientReferenceID, ledger.PlanPro, seats)

	if m.reconciler != nil && data.Subscription != "" {
		m.reconciler.Track(data.Subscription, "active")
	}

	return Result{
		Type:    evt.Type,
		Handled: true,
		Data:    map[string]interface{}{"action": "activate_pro", "apiKey": data.ClientReferenceID, "seats": seats},
	}, nil
}

func (m *Mediator) handleSubscriptionUpdated(evt Event) (Result, error) {
	var data subscriptionUpdatedData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return Result{Type: evt.Type, Handled: false}, nil
	}

	if m.reconciler != nil && data.ID != "" {
		m.reconciler.Track(data.ID, data.Status)
	}

	return Result{
		Type:    evt.Type,
		Handled: true,
		Data: map[string]interface{}{
			"action":           "update_subscription",
			"apiKey":           data.ClientReferenceID,
			"status":           data.Status,
			"currentPeriodEnd": data.CurrentPeriodEnd,
		},
	}, nil
}

func (m *Mediator) handleSubscriptionDeleted(evt Event) (Result, error) {
	var data subscriptionDeletedData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return Result{Type: evt.Type, Handled: false}, nil
	}

	m.ledger.SetPlan(data.ClientReferenceID, ledger.PlanFree, 1)

	return Result{
		Type:    evt.Type,
		Handled: true,
		Data:    map[string]interface{}{"action": "downgrade_to_free", "apiKey": data.ClientReferenceID},
	}, nil
}

// CreateCheckout opens a checkout session for the given API key, redirecting
// to successURL/cancelURL on completion/abandonment.
func (m *Mediator) CreateCheckout(ctx context.Context, apiKey, successURL, cancelURL string) (*CheckoutSession, error) {
	return m.client.CreateCheckoutSession(ctx, m.cfg.StripeProPriceID, apiKey, successURL, cancelURL)
}

// CreatePortal opens a billing-management portal session for an existing
// Stripe customer.
func (m *Mediator) CreatePortal(ctx context.Context, stripeCustomerID string) (*PortalSession, error) {
	return m.client.CreatePortalSession(ctx, stripeCustomerID, m.cfg.AppURL)
}

// ResolveCheckout retrieves a completed checkout session's customer and
// subscription ids for the success-redirect endpoint.
func (m *Mediator) ResolveCheckout(ctx context.Context, sessionID string) (*CheckoutSessionDetails, error) {
	return m.client.RetrieveCheckoutSession(ctx, sessionID)
}
