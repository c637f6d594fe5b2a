package alerts

import (
	"time"

	"whatsapp-processor/internal/logger"
	"whatsapp-processor/internal/metrics"
	"whatsapp-processor/internal/models"
)

// CooldownState maps a rule key to the time its last alert fired.
type CooldownState map[string]time.Time

// Clone returns an independent copy of s.
func (s CooldownState) Clone() CooldownState {
	out := make(CooldownState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// InCooldown reports whether key fired less than cooldown before now.
func (s CooldownState) InCooldown(key string, cooldown time.Duration, now time.Time) bool {
	last, ok := s[key]
	if !ok {
		return false
	}
	return now.Sub(last) < cooldown
}

// Firing is a rule whose threshold was crossed outside its cooldown.
type Firing struct {
	Index int
	Key   string
	Rule  Rule
	Value float64
}

// Evaluate checks every rule against payload in configured order. It
// returns the rules that fire and the cooldown state with their keys set
// to now; state itself is left untouched.
func Evaluate(payload models.Value, rules []Rule, state CooldownState, now time.Time) ([]Firing, CooldownState) {
	log := logger.WithComponent("evaluator")
	next := state.Clone()
	var fired []Firing

	for i, rule := range rules {
		if rule.TagName == "" {
			continue
		}

		value, ok := payload.Lookup(rule.TagName).Float()
		if !ok {
			log.Debug().Str("tag_name", rule.TagName).Msg("tag not present or not numeric")
			continue
		}

		violated, err := rule.Operator.Compare(value, rule.ThresholdValue)
		if err != nil {
			log.Warn().Err(err).Str("tag_name", rule.TagName).Msg("skipping rule")
			continue
		}
		if !violated {
			continue
		}

		key := rule.Key(i)
		cooldown := time.Duration(rule.CooldownMinutes) * time.Minute
		if next.InCooldown(key, cooldown, now) {
			log.Info().
				Str("tag_name", rule.TagName).
				Str("rule_key", key).
				Time("last_alert", next[key]).
				Msg("threshold alert is in cooldown, skipping")
			metrics.RulesSuppressedTotal.Inc()
			continue
		}

		next[key] = now
		fired = append(fired, Firing{Index: i, Key: key, Rule: rule, Value: value})
		metrics.RulesFiredTotal.WithLabelValues(rule.Operator.String()).Inc()
	}

	return fired, next
}
