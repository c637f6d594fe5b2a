package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Trigger says what caused an invocation.
type Trigger string

const (
	TriggerMessage  Trigger = "message"
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

var (
	ErrEmptyEvent     = errors.New("event body is empty")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrMissingAgentID = errors.New("agent_id cannot be empty")
)

// ChannelMessage is one unit of telemetry delivered on a platform channel.
type ChannelMessage struct {
	ID          string `json:"id,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
	Data        Value  `json:"data"`
}

// Invocation is a single run of the processor. Message is nil for
// scheduled and manual runs.
type Invocation struct {
	ID            string          `json:"id"`
	AgentID       string          `json:"agent_id"`
	Trigger       Trigger         `json:"trigger"`
	Message       *ChannelMessage `json:"message,omitempty"`
	PackageConfig json.RawMessage `json:"package_config,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
}

// NewInvocation stamps a fresh invocation for agentID.
func NewInvocation(agentID string, msg *ChannelMessage) *Invocation {
	trigger := TriggerMessage
	if msg == nil {
		trigger = TriggerSchedule
	}
	return &Invocation{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		Trigger:    trigger,
		Message:    msg,
		ReceivedAt: time.Now().UTC(),
	}
}

// eventInput is the wire form shared by the HTTP, Kafka and NATS ingress.
type eventInput struct {
	AgentID       string          `json:"agent_id"`
	Message       *ChannelMessage `json:"message,omitempty"`
	PackageConfig json.RawMessage `json:"package_config,omitempty"`
}

// DecodeInvocation parses an event body. Events without a message become
// manual invocations.
func DecodeInvocation(body []byte) (*Invocation, error) {
	return DecodeInvocationFor(body, "")
}

// DecodeInvocationFor is DecodeInvocation with a fallback agent for events
// that do not carry agent_id themselves.
func DecodeInvocationFor(body []byte, fallbackAgentID string) (*Invocation, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrEmptyEvent
	}

	var in eventInput
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	in.AgentID = strings.TrimSpace(in.AgentID)
	if in.AgentID == "" {
		in.AgentID = strings.TrimSpace(fallbackAgentID)
	}
	if in.AgentID == "" {
		return nil, ErrMissingAgentID
	}

	inv := NewInvocation(in.AgentID, in.Message)
	if in.Message == nil {
		inv.Trigger = TriggerManual
	}
	if len(in.PackageConfig) > 0 && !bytes.Equal(in.PackageConfig, []byte("null")) {
		inv.PackageConfig = in.PackageConfig
	}
	return inv, nil
}
