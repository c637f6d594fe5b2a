package alerts_test

import (
	"encoding/json"
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"whatsapp-processor/internal/alerts"
)

func TestOperator_Compare(t *testing.T) {
	tests := []struct {
		op        alerts.Operator
		value     float64
		threshold float64
		want      bool
	}{
		{alerts.OpGreater, 36, 35, true},
		{alerts.OpGreater, 35, 35, false},
		{alerts.OpLess, 34, 35, true},
		{alerts.OpLess, 35, 35, false},
		{alerts.OpGreaterEqual, 35, 35, true},
		{alerts.OpGreaterEqual, 34.9, 35, false},
		{alerts.OpLessEqual, 35, 35, true},
		{alerts.OpLessEqual, 35.1, 35, false},
		{alerts.OpEqual, 35, 35, true},
		{alerts.OpEqual, 35.5, 35, false},
		{alerts.OpNotEqual, 35.5, 35, true},
		{alerts.OpNotEqual, 35, 35, false},
		{"", 36, 35, true},
		{alerts.OpGreater, 36, 35, true},
		{alerts.OpLess, 36, 35, false},
		{alerts.OpEqual, 36, 36, true},
	}

	for _, tt := range tests {
		got, err := tt.op.Compare(tt.value, tt.threshold)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.op, err)
		}
		if got != tt.want {
			t.Errorf("%v %s %v = %v, want %v", tt.value, tt.op, tt.threshold, got, tt.want)
		}
	}
}

func TestOperator_Unknown(t *testing.T) {
	op := alerts.Operator("=>")
	if op.Valid() {
		t.Error("expected => to be invalid")
	}
	if _, err := op.Compare(1, 0); !errors.Is(err, alerts.ErrUnknownOperator) {
		t.Errorf("expected ErrUnknownOperator, got %v", err)
	}

	rule := alerts.DefaultRule()
	rule.Operator = op
	if err := rule.Validate(); !errors.Is(err, alerts.ErrUnknownOperator) {
		t.Errorf("expected rule validation to fail, got %v", err)
	}
}

func TestRule_UnmarshalJSONDefaults(t *testing.T) {
	var rules []alerts.Rule
	body := `[
		{"tag_name": "temperature", "threshold_value": 35},
		{"tag_name": "battery", "operator": "<", "threshold_value": 20, "cooldown_minutes": 0, "message_template": "{tag_name} low"}
	]`
	if err := json.Unmarshal([]byte(body), &rules); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if rules[0].Operator != alerts.OpGreater {
		t.Errorf("default operator = %q", rules[0].Operator)
	}
	if rules[0].MessageTemplate != alerts.DefaultMessageTemplate {
		t.Errorf("default template = %q", rules[0].MessageTemplate)
	}
	if rules[0].CooldownMinutes != alerts.DefaultCooldownMinutes {
		t.Errorf("default cooldown = %d", rules[0].CooldownMinutes)
	}

	if rules[1].CooldownMinutes != 0 {
		t.Errorf("explicit zero cooldown lost: %d", rules[1].CooldownMinutes)
	}
	if rules[1].Operator != alerts.OpLess {
		t.Errorf("operator = %q", rules[1].Operator)
	}
}

func TestRule_UnmarshalYAMLDefaults(t *testing.T) {
	var rules []alerts.Rule
	body := `
- tag_name: sensors.pressure
  threshold_value: 1.5
  operator: ">="
`
	if err := yaml.Unmarshal([]byte(body), &rules); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if rules[0].CooldownMinutes != alerts.DefaultCooldownMinutes || rules[0].MessageTemplate != alerts.DefaultMessageTemplate {
		t.Errorf("defaults not applied: %+v", rules[0])
	}
	if rules[0].Operator != alerts.OpGreaterEqual || rules[0].ThresholdValue != 1.5 {
		t.Errorf("fields not decoded: %+v", rules[0])
	}
}

func TestRule_Key(t *testing.T) {
	a := alerts.Rule{TagName: "temperature", Operator: alerts.OpGreater, ThresholdValue: 35}
	b := alerts.Rule{TagName: "temperature", Operator: alerts.OpGreater, ThresholdValue: 40}

	if a.Key(0) == b.Key(1) {
		t.Error("rules on the same tag must not share a key")
	}
	if got := a.Key(0); got != "0:temperature:>:35" {
		t.Errorf("key = %q", got)
	}
	if a.Key(0) == a.Key(1) {
		t.Error("identical rules at different positions must not share a key")
	}
}

func TestRule_ValidateCooldown(t *testing.T) {
	rule := alerts.DefaultRule()
	rule.TagName = "x"
	rule.CooldownMinutes = -1
	if err := rule.Validate(); err == nil {
		t.Error("expected negative cooldown to be rejected")
	}
}
