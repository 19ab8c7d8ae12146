// Server configuration: API keys, plan assignments, rate limits, CORS, and Stripe secrets.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PlanAssignment is the plan/seat tuple assigned to one API key.
type PlanAssignment struct {
	Plan  string
	Seats int
}

// Config holds all server configuration values.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Redis (optional — in-memory fallback when unset or unreachable)
	RedisURL string

	// Authentication
	ValidAPIKeys map[string]bool

	// Plan assignment, keyed by API key. Keys absent from this map default
	// to (free, 1) the first time they're seen by the ledger.
	PlanAssignments map[string]PlanAssignment

	// CORS
	CORSOrigins []string

	// Timeouts
	DefaultTimeout time.Duration

	// Body limits
	MaxBodyBytes int64

	// Billing (Stripe-compatible payments provider)
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeProPriceID    string
	AppURL              string

	// Billing reconciliation poller; 0 disables it.
	ReconcileInterval time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables, an optional .env
// file, and an optional plan-assignment YAML file.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("GATEWAY_GRACEFUL_TIMEOUT_SEC", 15)
	defaultTimeoutSec := getEnvInt("GATEWAY_DEFAULT_TIMEOUT_SEC", 30)
	reconcileSec := getEnvInt("KONTEXT_RECONCILE_INTERVAL_SEC", 300)

	cfg := &Config{
		Addr:                getEnv("GATEWAY_ADDR", ":8080"),
		Env:                 getEnv("ENV", "development"),
		GracefulTimeout:     time.Duration(gracefulSec) * time.Second,
		RedisURL:            getEnv("REDIS_URL", ""),
		DefaultTimeout:      time.Duration(defaultTimeoutSec) * time.Second,
		MaxBodyBytes:        int64(getEnvInt("GATEWAY_MAX_BODY_BYTES", 1*1024*1024)),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeProPriceID:    getEnv("STRIPE_PRO_PRICE_ID", ""),
		AppURL:              getEnv("KONTEXT_APP_URL", "http://localhost:3000"),
		ReconcileInterval:   time.Duration(reconcileSec) * time.Second,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}

	cfg.ValidAPIKeys = loadValidAPIKeys()
	cfg.PlanAssignments = loadPlanAssignments()
	cfg.CORSOrigins = loadCORSOrigins(cfg.IsDevelopment())

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func loadValidAPIKeys() map[string]bool {
	keys := make(map[string]bool)
	if primary := getEnv("KONTEXT_API_KEY", ""); primary != "" {
		keys[primary] = true
	}
	if list := getEnv("KONTEXT_API_KEYS", ""); list != "" {
		for _, k := range strings.Split(list, ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				keys[k] = true
			}
		}
	}
	return keys
}

// loadPlanAssignments reads KONTEXT_API_KEY_PLANS ("key:plan:seats,...") and,
// if KONTEXT_PLANS_FILE is set, merges in a YAML file of the same
// information. The env var wins on key collision — no silent override the
// other way.
func loadPlanAssignments() map[string]PlanAssignment {
	assignments := make(map[string]PlanAssignment)

	if path := getEnv("KONTEXT_PLANS_FILE", ""); path != "" {
		if fromFile, err := loadPlansFromYAML(path); err == nil {
			for k, v := range fromFile {
				assignments[k] = v
			}
		}
	}

	if tuples := getEnv("KONTEXT_API_KEY_PLANS", ""); tuples != "" {
		for _, entry := range strings.Split(tuples, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			parts := strings.Split(entry, ":")
			if len(parts) < 2 {
				continue
			}
			key := parts[0]
			plan := normalizePlan(parts[1])
			seats := 1
			if len(parts) >= 3 {
				if s, err := strconv.Atoi(parts[2]); err == nil && s > 0 {
					seats = s
				}
			}
			assignments[key] = PlanAssignment{Plan: plan, Seats: seats}
		}
	}

	return assignments
}

type yamlPlanFile struct {
	Keys map[string]struct {
		Plan  string `yaml:"plan"`
		Seats int    `yaml:"seats"`
	} `yaml:"keys"`
}

func loadPlansFromYAML(path string) (map[string]PlanAssignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file yamlPlanFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	out := make(map[string]PlanAssignment, len(file.Keys))
	for key, v := range file.Keys {
		seats := v.Seats
		if seats <= 0 {
			seats = 1
		}
		out[key] = PlanAssignment{Plan: normalizePlan(v.Plan), Seats: seats}
	}
	return out, nil
}

func normalizePlan(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "pro":
		return "pro"
	case "enterprise":
		return "enterprise"
	default:
		return "free"
	}
}

// productionOrigins is the fixed production CORS allow-list.
var productionOrigins = []string{
	"https://kontext.dev",
	"https://app.kontext.dev",
}

var developmentOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func loadCORSOrigins(isDev bool) []string {
	set := make(map[string]bool)
	for _, o := range productionOrigins {
		set[o] = true
	}
	if extra := getEnv("KONTEXT_CORS_ORIGINS", ""); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				set[o] = true
			}
		}
	}
	if isDev {
		for _, o := range developmentOrigins {
			set[o] = true
		}
	}
	origins := make([]string, 0, len(set))
	for o := range set {
		origins = append(origins, o)
	}
	return origins
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
