package alerts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Operator is a comparison applied as `value <op> threshold`.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

const (
	DefaultOperator        = OpGreater
	DefaultMessageTemplate = "Alert: {tag_name} is {value} (threshold: {operator} {threshold})"
	DefaultCooldownMinutes = 15
)

var ErrUnknownOperator = errors.New("unknown operator")

// Valid reports whether op is one of the six supported comparisons.
// The empty operator counts as the default.
func (op Operator) Valid() bool {
	switch op {
	case "", OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual:
		return true
	default:
		return false
	}
}

// Compare applies op to value and threshold.
func (op Operator) Compare(value, threshold float64) (bool, error) {
	switch op {
	case OpGreater, "":
		return value > threshold, nil
	case OpLess:
		return value < threshold, nil
	case OpGreaterEqual:
		return value >= threshold, nil
	case OpLessEqual:
		return value <= threshold, nil
	case OpEqual:
		return value == threshold, nil
	case OpNotEqual:
		return value != threshold, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, string(op))
	}
}

func (op Operator) String() string {
	if op == "" {
		return string(DefaultOperator)
	}
	return string(op)
}

// Rule is one configured threshold.
type Rule struct {
	TagName         string   `json:"tag_name" yaml:"tag_name"`
	Operator        Operator `json:"operator" yaml:"operator"`
	ThresholdValue  float64  `json:"threshold_value" yaml:"threshold_value"`
	MessageTemplate string   `json:"message_template" yaml:"message_template"`
	CooldownMinutes int      `json:"cooldown_minutes" yaml:"cooldown_minutes"`
}

// DefaultRule returns the values used for fields a rule leaves out.
func DefaultRule() Rule {
	return Rule{
		Operator:        DefaultOperator,
		MessageTemplate: DefaultMessageTemplate,
		CooldownMinutes: DefaultCooldownMinutes,
	}
}

// Key identifies the rule at position index for cooldown tracking. Two
// rules on the same tag never share a key.
func (r Rule) Key(index int) string {
	return fmt.Sprintf("%d:%s:%s:%s", index, r.TagName, r.Operator.String(), formatNumber(r.ThresholdValue))
}

// Validate checks the fields evaluation depends on.
func (r Rule) Validate() error {
	if !r.Operator.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOperator, string(r.Operator))
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("cooldown_minutes must be >= 0, got %d", r.CooldownMinutes)
	}
	return nil
}

type rawRule Rule

// UnmarshalJSON fills omitted fields with the defaults so an explicit
// cooldown of 0 stays distinguishable from a missing one.
func (r *Rule) UnmarshalJSON(data []byte) error {
	v := rawRule(DefaultRule())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Rule(v)
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for config files.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	v := rawRule(DefaultRule())
	if err := node.Decode(&v); err != nil {
		return err
	}
	*r = Rule(v)
	return nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
