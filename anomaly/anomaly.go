// Fixed-rule anomaly evaluator over action records.
package anomaly

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AlfredDev/kontext/server/store"
)

// amountTier is one severity band of the unusualAmount rule.
type amountTier struct {
	threshold float64
	severity  store.AnomalySeverity
}

// frequencyTier is one severity band of the frequencySpike rule.
type frequencyTier struct {
	count    int
	severity store.AnomalySeverity
}

// amountTiers and frequencyTiers are checked from the highest threshold down,
// so the first match is the most severe applicable tier.
var amountTiers = []amountTier{
	{50000, store.SeverityCritical},
	{25000, store.SeverityHigh},
	{10000, store.SeverityMedium},
}

var frequencyTiers = []frequencyTier{
	{100, store.SeverityCritical},
	{60, store.SeverityHigh},
	{30, store.SeverityMedium},
}

const frequencyWindow = time.Hour
const frequencyTriggerThreshold = 30

// Rule is a single named, independently toggleable anomaly check.
type Rule struct {
	Name    string
	Enabled bool
}

// Evaluator runs the anomaly rule table against a candidate action and
// persists any triggered anomalies to the store.
type Evaluator struct {
	store *store.Store
	rules map[string]bool
}

// New creates an Evaluator with both rules enabled by default.
func New(s *store.Store) *Evaluator {
	return &Evaluator{
		store: s,
		rules: map[string]bool{"unusualAmount": true, "frequencySpike": true},
	}
}

// SetRuleEnabled toggles a named rule at runtime.
func (e *Evaluator) SetRuleEnabled(name string, enabled bool) {
	e.rules[name] = enabled
}

// Evaluate checks a single action against the rule table, persisting and
// returning any anomalies it triggers. An action can trigger both rules.
func (e *Evaluator) Evaluate(projectID string, action store.ActionRecord, now time.Time) []store.AnomalyRecord {
	var triggered []store.AnomalyRecord

	if e.rules["unusualAmount"] {
		if a, ok := e.checkUnusualAmount(projectID, action, now); ok {
			triggered = append(triggered, a)
		}
	}
	if e.rules["frequencySpike"] {
		if a, ok := e.checkFrequencySpike(projectID, action, now); ok {
			triggered = append(triggered, a)
		}
	}

	for _, a := range triggered {
		e.store.AddAnomaly(projectID, a)
	}
	return triggered
}

// checkUnusualAmount triggers when the action's metadata carries a numeric
// "amount" field strictly greater than the lowest tier threshold. The
// threshold boundary itself does not trigger (strictly greater than).
func (e *Evaluator) checkUnusualAmount(projectID string, action store.ActionRecord, now time.Time) (store.AnomalyRecord, bool) {
	amount, ok := amountFromMetadata(action.Metadata)
	if !ok {
		return store.AnomalyRecord{}, false
	}

	severity, matched := classifyAmount(amount)
	if !matched {
		return store.AnomalyRecord{}, false
	}

	return store.AnomalyRecord{
		ID:          uuid.NewString(),
		Type:        "unusualAmount",
		Severity:    severity,
		Description: fmt.Sprintf("transaction amount %.2f exceeds the expected range", amount),
		AgentID:     action.AgentID,
		ActionID:    action.ID,
		ProjectID:   projectID,
		DetectedAt:  now,
		Data:        action.Metadata,
	}, true
}

// checkFrequencySpike triggers when the agent's stored action count in the
// trailing hour exceeds the lowest tier threshold. The action being
// evaluated is counted only if it has already been added to the store.
func (e *Evaluator) checkFrequencySpike(projectID string, action store.ActionRecord, now time.Time) (store.AnomalyRecord, bool) {
	since := now.Add(-frequencyWindow).Format(time.RFC3339)
	count := e.store.CountRecentActions(projectID, action.AgentID, since)

	severity, matched := classifyFrequency(count)
	if !matched {
		return store.AnomalyRecord{}, false
	}

	return store.AnomalyRecord{
		ID:          uuid.NewString(),
		Type:        "frequencySpike",
		Severity:    severity,
		Description: fmt.Sprintf("agent exceeded %d actions in the last hour", frequencyTriggerThreshold),
		AgentID:     action.AgentID,
		ActionID:    action.ID,
		ProjectID:   projectID,
		DetectedAt:  now,
		Data:        map[string]interface{}{"count": count, "threshold": frequencyTriggerThreshold},
	}, true
}

func classifyAmount(amount float64) (store.AnomalySeverity, bool) {
	for _, tier := range amountTiers {
		if amount > tier.threshold {
			return tier.severity, true
		}
	}
	return "", false
}

func classifyFrequency(count int) (store.AnomalySeverity, bool) {
	for _, tier := range frequencyTiers {
		if count > tier.count {
			return tier.severity, true
		}
	}
	return "", false
}

// amountFromMetadata extracts a numeric "amount" key from action metadata.
// Accepts float64 (the JSON-decoded shape) and int for callers constructing
// actions directly.
func amountFromMetadata(metadata map[string]interface{}) (float64, bool) {
	if metadata == nil {
		return 0, false
	}
	raw, ok := metadata["amount"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
