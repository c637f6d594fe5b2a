package models

import "time"

// AlertEvent records one fired threshold and what happened when it was
// dispatched. It is published to the audit topic.
type AlertEvent struct {
	InvocationID string    `json:"invocation_id"`
	AgentID      string    `json:"agent_id"`
	RuleKey      string    `json:"rule_key"`
	TagName      string    `json:"tag_name"`
	Operator     string    `json:"operator"`
	Threshold    float64   `json:"threshold"`
	Value        float64   `json:"value"`
	Message      string    `json:"message"`
	Recipients   int       `json:"recipients"`
	Sent         int       `json:"sent"`
	Failed       int       `json:"failed"`
	FiredAt      time.Time `json:"fired_at"`
}
