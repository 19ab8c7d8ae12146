package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com/v1"

// Client is a minimal Stripe REST client.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a Client. secretKey is the Stripe secret API key.
func NewClient(secretKey string) *Client {
	return &Client{
		baseURL:   defaultBaseURL,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// CheckoutSession is the subset of Stripe's checkout.Session the mediator
// cares about.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession starts a subscription checkout for the pro plan.
func (c *Client) CreateCheckoutSession(ctx context.Context, priceID, customerKey, successURL, cancelURL string) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("client_reference_id", customerKey)

	var out CheckoutSession
	if err := c.post(ctx, "/checkout/sessions", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PortalSession is the subset of Stripe's billing_portal.Session the
// mediator cares about.
type PortalSession struct {
	URL string `json:"url"`
}

// CreatePortalSession opens a billing-management portal session for an
// existing Stripe customer.
func (c *Client) CreatePortalSession(ctx context.Context, stripeCustomerID, returnURL string) (*PortalSession, error) {
	form := url.Values{}
	form.Set("customer", stripeCustomerID)
	form.Set("return_url", returnURL)

	var out PortalSession
	if err := c.post(ctx, "/billing_portal/sessions", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckoutSessionDetails is the subset of a completed checkout.Session the
// success-redirect endpoint resolves to identify the customer/subscription.
type CheckoutSessionDetails struct {
	ID                string `json:"id"`
	CustomerID        string `json:"customer"`
	SubscriptionID    string `json:"subscription"`
	ClientReferenceID string `json:"client_reference_id"`
	PaymentStatus     string `json:"payment_status"`
}

// RetrieveCheckoutSession fetches a completed checkout session's
// customer/subscription ids, used by the success-redirect endpoint.
func (c *Client) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionDetails, error) {
	var out CheckoutSessionDetails
	if err := c.get(ctx, "/checkout/sessions/"+sessionID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Subscription is the subset of Stripe's Subscription object the
// reconciler cares about.
type Subscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RetrieveSubscription fetches a subscription by id, used by the
// reconciler to reconcile drift against webhook-driven state.
func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var out Subscription
	if err := c.get(ctx, "/subscriptions/"+subscriptionID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authenticate(req)

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authenticate(req)

	return c.do(req, out)
}

func (c *Client) authenticate(req *http.Request) {
	req.SetBasicAuth(c.secretKey, "")
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("stripe error (status %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
