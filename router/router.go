// Middleware chain and route table.
package router

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/AlfredDev/kontext/server/anomaly"
	"github.com/AlfredDev/kontext/server/billing"
	"github.com/AlfredDev/kontext/server/config"
	"github.com/AlfredDev/kontext/server/handler"
	"github.com/AlfredDev/kontext/server/ledger"
	"github.com/AlfredDev/kontext/server/metrics"
	kmw "github.com/AlfredDev/kontext/server/middleware"
	"github.com/AlfredDev/kontext/server/redisclient"
	"github.com/AlfredDev/kontext/server/store"
	"github.com/AlfredDev/kontext/server/task"
)

// Dependencies bundles the long-lived components NewRouter wires into
// handlers. Callers (main.go, tests) construct these once at startup.
// Metrics may be left nil — every handler tolerates a nil registry.
type Dependencies struct {
	Store     *store.Store
	Ledger    *ledger.Ledger
	Tasks     *task.Manager
	Anomalies *anomaly.Evaluator
	Billing   *billing.Mediator
	Redis     *redisclient.Client
	Metrics   *metrics.Registry
}

// NewRouter returns a configured chi Router with the full middleware chain
// and all API routes mounted.
func NewRouter(cfg *config.Config, appLogger zerolog.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// --- Middleware Chain (order matters) ---
	// 1. CORS — must be first so preflight responses succeed
	r.Use(kmw.CORSMiddleware(cfg.CORSOrigins))

	// 2. Security headers
	r.Use(kmw.SecurityHeadersMiddleware)

	// 3. Request ID injection (chi built-in)
	r.Use(chimw.RequestID)

	// 4. Panic recovery
	r.Use(chimw.Recoverer)

	// 5. Request logger
	r.Use(mwRequestLogger(appLogger))

	// 6. Body size limit
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	// --- Unauthenticated routes ---
	r.Get("/", handler.Root)
	r.Get("/health", handler.Health)

	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler())
	}

	billingHandler := handler.NewBillingHandler(appLogger, deps.Billing, cfg.AppURL, deps.Metrics)
	r.Post("/v1/checkout", billingHandler.CreateCheckout)
	r.Post("/v1/portal", billingHandler.CreatePortal)
	r.Post("/v1/webhook/stripe", billingHandler.Webhook)
	r.Get("/v1/checkout/success", billingHandler.CheckoutSuccess)

	// --- Authenticated + rate-limited /v1 surface ---
	authMW := kmw.NewAuthMiddleware(appLogger, cfg.ValidAPIKeys)
	rateLimiter := kmw.NewRateLimiter(appLogger, deps.Redis)
	headerNorm := kmw.NewHeaderNormalization(appLogger)
	timeoutMW := kmw.NewTimeoutMiddleware(appLogger, cfg)

	actionsHandler := handler.NewActionsHandler(appLogger, deps.Store, deps.Ledger, cfg.AppURL, deps.Metrics)
	tasksHandler := handler.NewTasksHandler(appLogger, deps.Tasks, deps.Metrics)
	trustHandler := handler.NewTrustHandler(appLogger, deps.Store)
	usageHandler := handler.NewUsageHandler(appLogger, deps.Ledger)
	anomaliesHandler := handler.NewAnomaliesHandler(appLogger, deps.Anomalies, deps.Metrics)
	auditHandler := handler.NewAuditHandler(appLogger, deps.Store)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMW.Handler)
		r.Use(rateLimiter.Handler)
		r.Use(headerNorm.Handler)
		r.Use(timeoutMW.Handler)

		r.Post("/actions", actionsHandler.Ingest)

		r.Post("/tasks", tasksHandler.Create)
		r.Get("/tasks/{id}", tasksHandler.Get)
		r.Put("/tasks/{id}/confirm", tasksHandler.Confirm)

		r.Get("/trust/{agentId}", trustHandler.Get)
		r.Get("/usage", usageHandler.Get)
		r.Post("/anomalies/evaluate", anomaliesHandler.Evaluate)
		r.Get("/audit/export", auditHandler.Export)
	})

	return r
}

// mwMaxBodySize returns middleware that limits the request body size.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			max := maxBytes
			if v := os.Getenv("GATEWAY_MAX_BODY_BYTES"); v != "" {
				if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
					max = parsed
				}
			}

			if r.ContentLength > 0 && r.ContentLength > max {
				http.Error(w, `{"error":"request body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)
			reqID := chimw.GetReqID(r.Context())
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", reqID).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")
		})
	}
}
