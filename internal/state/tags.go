package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"whatsapp-processor/internal/alerts"
	"whatsapp-processor/internal/metrics"
	"whatsapp-processor/internal/models"
)

// Tag names persisted per agent.
const (
	TagAlertCooldowns    = "alert_cooldowns"
	TagMessagesSentCount = "messages_sent_count"
	TagLastMessageSent   = "last_message_sent"
	TagLastScheduledRun  = "last_scheduled_run"
)

const defaultKeyPrefix = "tags"

// ErrCorruptTag is returned when a stored tag cannot be decoded.
var ErrCorruptTag = errors.New("state: tag cannot be decoded")

// TagStore reads and writes an agent's tags as JSON documents in a Store.
type TagStore struct {
	store  Store
	prefix string
}

func NewTagStore(store Store, prefix string) *TagStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &TagStore{store: store, prefix: prefix}
}

func (t *TagStore) key(agentID, tag string) string {
	return t.prefix + ":" + agentID + ":" + tag
}

// get decodes a tag into out. found is false when the tag was never set.
func (t *TagStore) get(ctx context.Context, agentID, tag string, out interface{}) (bool, error) {
	data, err := t.store.Get(ctx, t.key(agentID, tag))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		metrics.TagStoreErrors.WithLabelValues("get").Inc()
		return false, fmt.Errorf("get tag %s: %w", tag, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorruptTag, tag, err)
	}
	return true, nil
}

func (t *TagStore) set(ctx context.Context, agentID, tag string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode tag %s: %w", tag, err)
	}
	if err := t.store.Set(ctx, t.key(agentID, tag), data); err != nil {
		metrics.TagStoreErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("set tag %s: %w", tag, err)
	}
	return nil
}

// Cooldowns loads the cooldown state. Entries whose timestamp cannot be
// parsed are dropped, which leaves that rule out of cooldown.
func (t *TagStore) Cooldowns(ctx context.Context, agentID string) (alerts.CooldownState, error) {
	var raw map[string]string
	if _, err := t.get(ctx, agentID, TagAlertCooldowns, &raw); err != nil {
		return alerts.CooldownState{}, err
	}

	out := make(alerts.CooldownState, len(raw))
	for key, ts := range raw {
		parsed, err := models.ParseTimestamp(ts)
		if err != nil {
			continue
		}
		out[key] = parsed
	}
	return out, nil
}

func (t *TagStore) SetCooldowns(ctx context.Context, agentID string, s alerts.CooldownState) error {
	raw := make(map[string]string, len(s))
	for key, ts := range s {
		raw[key] = models.FormatTimestamp(ts)
	}
	return t.set(ctx, agentID, TagAlertCooldowns, raw)
}

func (t *TagStore) MessagesSentCount(ctx context.Context, agentID string) (int64, error) {
	var n int64
	_, err := t.get(ctx, agentID, TagMessagesSentCount, &n)
	return n, err
}

func (t *TagStore) SetMessagesSentCount(ctx context.Context, agentID string, n int64) error {
	return t.set(ctx, agentID, TagMessagesSentCount, n)
}

func (t *TagStore) timestamp(ctx context.Context, agentID, tag string) (time.Time, error) {
	var s string
	found, err := t.get(ctx, agentID, tag, &s)
	if err != nil || !found {
		return time.Time{}, err
	}
	return models.ParseTimestamp(s)
}

func (t *TagStore) LastMessageSent(ctx context.Context, agentID string) (time.Time, error) {
	return t.timestamp(ctx, agentID, TagLastMessageSent)
}

func (t *TagStore) SetLastMessageSent(ctx context.Context, agentID string, ts time.Time) error {
	return t.set(ctx, agentID, TagLastMessageSent, models.FormatTimestamp(ts))
}

func (t *TagStore) LastScheduledRun(ctx context.Context, agentID string) (time.Time, error) {
	return t.timestamp(ctx, agentID, TagLastScheduledRun)
}

func (t *TagStore) SetLastScheduledRun(ctx context.Context, agentID string, ts time.Time) error {
	return t.set(ctx, agentID, TagLastScheduledRun, models.FormatTimestamp(ts))
}

// Snapshot is every tag stored for one agent.
type Snapshot struct {
	AgentID           string               `json:"agent_id"`
	AlertCooldowns    alerts.CooldownState `json:"alert_cooldowns"`
	MessagesSentCount int64                `json:"messages_sent_count"`
	LastMessageSent   *time.Time           `json:"last_message_sent,omitempty"`
	LastScheduledRun  *time.Time           `json:"last_scheduled_run,omitempty"`
}

// Snapshot reads all of an agent's tags. Timestamps that were never set
// are left nil.
func (t *TagStore) Snapshot(ctx context.Context, agentID string) (*Snapshot, error) {
	cooldowns, err := t.Cooldowns(ctx, agentID)
	if err != nil {
		return nil, err
	}
	count, err := t.MessagesSentCount(ctx, agentID)
	if err != nil {
		return nil, err
	}
	lastSent, err := t.LastMessageSent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	lastRun, err := t.LastScheduledRun(ctx, agentID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{AgentID: agentID, AlertCooldowns: cooldowns, MessagesSentCount: count}
	if !lastSent.IsZero() {
		snap.LastMessageSent = &lastSent
	}
	if !lastRun.IsZero() {
		snap.LastScheduledRun = &lastRun
	}
	return snap, nil
}

// Ping checks the backing store.
func (t *TagStore) Ping(ctx context.Context) error {
	return t.store.Ping(ctx)
}
