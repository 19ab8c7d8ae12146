package billing_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/AlfredDev/kontext/server/billing"
	"github.com/AlfredDev/kontext/server/config"
	"github.com/AlfredDev/kontext/server/ledger"
)

func signedBody(t *testing.T, secret string, now time.Time, body []byte) string {
	t.Helper()
	sig := sign(now.Unix(), body, secret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), sig)
}

func TestHandleWebhookActivatesPro(t *testing.T) {
	l := ledger.New(nil, nil)
	cfg := config.Config{StripeWebhookSecret: "whsec_test"}
	m := billing.New(cfg, billing.NewClient(""), l)
	now := time.Now()

	body := []byte(`{"type":"checkout.session.completed","data":{"client_reference_id":"key1","metadata":{"seats":3}}}`)
	header := signedBody(t, "whsec_test", now, body)

	result, err := m.HandleWebhook(header, body, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Handled || result.Data["action"] != "activate_pro" {
		t.Fatalf("expected handled activate_pro, got %+v", result)
	}

	usage := l.GetUsage("key1", now)
	if usage.Plan != ledger.PlanPro || usage.Seats != 3 {
		t.Fatalf("expected pro/3 seats applied, got %+v", usage)
	}
}

func TestHandleWebhookDowngradesToFree(t *testing.T) {
	l := ledger.New(map[string]config.PlanAssignment{"key2": {Plan: "pro", Seats: 2}}, nil)
	cfg := config.Config{StripeWebhookSecret: "whsec_test"}
	m := billing.New(cfg, billing.NewClient(""), l)
	now := time.Now()

	body := []byte(`{"type":"customer.subscription.deleted","data":{"client_reference_id":"key2"}}`)
	header := signedBody(t, "whsec_test", now, body)

	result, err := m.HandleWebhook(header, body, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Data["action"] != "downgrade_to_free" {
		t.Fatalf("expected downgrade_to_free, got %+v", result)
	}

	usage := l.GetUsage("key2", now)
	if usage.Plan != ledger.PlanFree {
		t.Fatalf("expected free plan after downgrade, got %+v", usage)
	}
}

func TestHandleWebhookUnknownEventIsAcknowledgedUnhandled(t *testing.T) {
	l := ledger.New(nil, nil)
	cfg := config.Config{StripeWebhookSecret: "whsec_test"}
	m := billing.New(cfg, billing.NewClient(""), l)
	now := time.Now()

	body := []byte(`{"type":"customer.updated","data":{}}`)
	header := signedBody(t, "whsec_test", now, body)

	result, err := m.HandleWebhook(header, body, now)
	if err != nil {
		t.Fatalf("unknown event must not error, got %v", err)
	}
	if result.Handled {
		t.Fatal("expected handled=false for unknown event type")
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	l := ledger.New(nil, nil)
	cfg := config.Config{StripeWebhookSecret: "whsec_test"}
	m := billing.New(cfg, billing.NewClient(""), l)
	now := time.Now()

	body := []byte(`{"type":"checkout.session.completed","data":{}}`)
	header := signedBody(t, "whsec_other", now, body)

	_, err := m.HandleWebhook(header, body, now)
	if err != billing.ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}
