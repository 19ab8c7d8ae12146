// Background poller reconciling local subscription state against Stripe.
package billing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reconciler periodically re-checks tracked Stripe subscriptions for drift
// against their last-known status.
type Reconciler struct {
	client   *Client
	logger   zerolog.Logger
	interval time.Duration

	mu            sync.Mutex
	tracked       map[string]string // subscriptionID -> last known status
	cancel        context.CancelFunc
	done          chan struct{}
}

// NewReconciler creates a Reconciler polling at the given interval (minimum
// 30 seconds).
func NewReconciler(client *Client, logger zerolog.Logger, interval time.Duration) *Reconciler {
	if interval < 30*time.Second {
		interval = 30 * time.Second
	}
	return &Reconciler{
		client:   client,
		logger:   logger.With().Str("component", "billing_reconciler").Logger(),
		interval: interval,
		tracked:  make(map[string]string),
		done:     make(chan struct{}),
	}
}

// Track registers a subscription id for periodic drift checking, seeded
// with its currently-known status.
func (r *Reconciler) Track(subscriptionID, knownStatus string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked[subscriptionID] = knownStatus
}

// Start begins the background reconciliation loop.
func (r *Reconciler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.logger.Info().Dur("interval", r.interval).Msg("starting billing reconciler")
	go r.loop(ctx)
}

// Stop gracefully shuts down the reconciler and waits for it to finish.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
	r.logger.Info().Msg("billing reconciler stopped")
}

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.done)

	r.reconcile(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, r.interval/2)
	defer cancel()

	r.mu.Lock()
	ids := make([]string, 0, len(r.tracked))
	for id := range r.tracked {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		sub, err := r.client.RetrieveSubscription(pollCtx, id)
		if err != nil {
			r.logger.Warn().Err(err).Str("subscription", id).Msg("reconcile fetch failed")
			continue
		}

		r.mu.Lock()
		known := r.tracked[id]
		if known != sub.Status {
			r.logger.Warn().
				Str("subscription", id).
				Str("known_status", known).
				Str("provider_status", sub.Status).
				Msg("billing state drift detected")
			r.tracked[id] = sub.Status
		}
		r.mu.Unlock()
	}
}
