// Prometheus-style metrics registry and text-exposition handler.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Counter is a monotonically increasing value.
type Counter struct {
	value int64
}

func (c *Counter) Inc()         { atomic.AddInt64(&c.value, 1) }
func (c *Counter) Add(n int64)  { atomic.AddInt64(&c.value, n) }
func (c *Counter) Value() int64 { return atomic.LoadInt64(&c.value) }

// Gauge is a value that can go up and down.
type Gauge struct {
	value int64 // stored as micros for float-like precision
}

func (g *Gauge) Set(v float64)  { atomic.StoreInt64(&g.value, int64(v*1e6)) }
func (g *Gauge) Value() float64 { return float64(atomic.LoadInt64(&g.value)) / 1e6 }

// Histogram tracks value distributions with fixed buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

func newHistogram(buckets []float64) *Histogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)
	return &Histogram{buckets: sorted, counts: make([]int64, len(sorted)+1)}
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.buckets)]++
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return strings.Join(parts, ",")
}

// Registry is the central Prometheus-compatible metrics registry.
type Registry struct {
	mu         sync.RWMutex
	logger     zerolog.Logger
	counters   map[string]map[string]*Counter
	gauges     map[string]map[string]*Gauge
	histograms map[string]map[string]*Histogram

	sizeBuckets []float64
}

// New creates a metrics registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		logger:      logger.With().Str("component", "metrics").Logger(),
		counters:    make(map[string]map[string]*Counter),
		gauges:      make(map[string]map[string]*Gauge),
		histograms:  make(map[string]map[string]*Histogram),
		sizeBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}
}

func (m *Registry) counterInc(name string, labels map[string]string) {
	m.getCounter(name, labels).Inc()
}

func (m *Registry) getCounter(name string, labels map[string]string) *Counter {
	key := labelKey(labels)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.counters[name]; !ok {
		m.counters[name] = make(map[string]*Counter)
	}
	if _, ok := m.counters[name][key]; !ok {
		m.counters[name][key] = &Counter{}
	}
	return m.counters[name][key]
}

func (m *Registry) getGauge(name string, labels map[string]string) *Gauge {
	key := labelKey(labels)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gauges[name]; !ok {
		m.gauges[name] = make(map[string]*Gauge)
	}
	if _, ok := m.gauges[name][key]; !ok {
		m.gauges[name][key] = &Gauge{}
	}
	return m.gauges[name][key]
}

func (m *Registry) getHistogram(name string, labels map[string]string) *Histogram {
	key := labelKey(labels)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.histograms[name]; !ok {
		m.histograms[name] = make(map[string]*Histogram)
	}
	if _, ok := m.histograms[name][key]; !ok {
		m.histograms[name][key] = newHistogram(m.sizeBuckets)
	}
	return m.histograms[name][key]
}

// TrackActionsIngested records a completed ingestion batch for a project.
func (m *Registry) TrackActionsIngested(projectID string, count int, limitExceeded bool) {
	labels := map[string]string{"project": projectID}
	m.counterInc("kontext_actions_ingested_total", labels)
	m.getCounter("kontext_actions_ingested_count", labels).Add(int64(count))
	m.getHistogram("kontext_ingest_batch_size", labels).Observe(float64(count))
	if limitExceeded {
		m.counterInc("kontext_usage_limit_exceeded_total", labels)
	}
}

// TrackTaskOutcome records a task reaching a terminal state.
func (m *Registry) TrackTaskOutcome(projectID, outcome string) {
	m.counterInc("kontext_tasks_total", map[string]string{"project": projectID, "outcome": outcome})
}

// TrackAnomalyDetected records an anomaly rule firing.
func (m *Registry) TrackAnomalyDetected(projectID, rule, severity string) {
	m.counterInc("kontext_anomalies_total", map[string]string{
		"project": projectID, "rule": rule, "severity": severity,
	})
}

// TrackWebhookEvent records a processed billing webhook event.
func (m *Registry) TrackWebhookEvent(eventType string, handled bool) {
	m.counterInc("kontext_webhook_events_total", map[string]string{
		"type": eventType, "handled": fmt.Sprintf("%t", handled),
	})
}

// TrackPlan records the active plan gauge for a project (1 = current plan).
func (m *Registry) TrackPlan(projectID, plan string) {
	m.getGauge("kontext_plan", map[string]string{"project": projectID, "plan": plan}).Set(1)
}

// Handler serves /metrics in Prometheus text exposition format.
func (m *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("# kontext metrics - %s\n\n", time.Now().UTC().Format(time.RFC3339)))

		m.mu.RLock()
		defer m.mu.RUnlock()

		for name, byLabel := range m.counters {
			sb.WriteString(fmt.Sprintf("# TYPE %s counter\n", name))
			for lk, c := range byLabel {
				if lk == "" {
					sb.WriteString(fmt.Sprintf("%s %d\n", name, c.Value()))
				} else {
					sb.WriteString(fmt.Sprintf("%s{%s} %d\n", name, lk, c.Value()))
				}
			}
			sb.WriteString("\n")
		}

		for name, byLabel := range m.gauges {
			sb.WriteString(fmt.Sprintf("# TYPE %s gauge\n", name))
			for lk, g := range byLabel {
				if lk == "" {
					sb.WriteString(fmt.Sprintf("%s %f\n", name, g.Value()))
				} else {
					sb.WriteString(fmt.Sprintf("%s{%s} %f\n", name, lk, g.Value()))
				}
			}
			sb.WriteString("\n")
		}

		for name, byLabel := range m.histograms {
			sb.WriteString(fmt.Sprintf("# TYPE %s histogram\n", name))
			for lk, h := range byLabel {
				h.mu.Lock()
				prefix := name
				if lk != "" {
					prefix = fmt.Sprintf("%s{%s}", name, lk)
				}
				cumulative := int64(0)
				for i, b := range h.buckets {
					cumulative += h.counts[i]
					if lk != "" {
						sb.WriteString(fmt.Sprintf("%s_bucket{le=\"%g\",%s} %d\n", name, b, lk, cumulative))
					} else {
						sb.WriteString(fmt.Sprintf("%s_bucket{le=\"%g\"} %d\n", name, b, cumulative))
					}
				}
				cumulative += h.counts[len(h.buckets)]
				if lk != "" {
					sb.WriteString(fmt.Sprintf("%s_bucket{le=\"+Inf\",%s} %d\n", name, lk, cumulative))
				} else {
					sb.WriteString(fmt.Sprintf("%s_bucket{le=\"+Inf\"} %d\n", name, cumulative))
				}
				sb.WriteString(fmt.Sprintf("%s_sum %f\n", prefix, h.sum))
				sb.WriteString(fmt.Sprintf("%s_count %d\n", prefix, h.count))
				h.mu.Unlock()
			}
			sb.WriteString("\n")
		}

		_, _ = w.Write([]byte(sb.String()))
	}
}
