package state_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"whatsapp-processor/internal/alerts"
	"whatsapp-processor/internal/state"
)

// failingStore fails every operation.
type failingStore struct{}

var errBackend = errors.New("backend down")

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errBackend }
func (failingStore) Set(context.Context, string, []byte) error   { return errBackend }
func (failingStore) Ping(context.Context) error                  { return errBackend }
func (failingStore) Close() error                                { return nil }

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	value := []byte("v1")
	if err := store.Set(ctx, "k", value); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("stored value aliased caller buffer: %q", got)
	}
}

func TestTagStore_Defaults(t *testing.T) {
	ctx := context.Background()
	tags := state.NewTagStore(state.NewMemoryStore(), "")

	cooldowns, err := tags.Cooldowns(ctx, "agent-1")
	if err != nil || len(cooldowns) != 0 {
		t.Errorf("expected empty cooldowns, got %v (%v)", cooldowns, err)
	}
	count, err := tags.MessagesSentCount(ctx, "agent-1")
	if err != nil || count != 0 {
		t.Errorf("expected zero count, got %d (%v)", count, err)
	}
	last, err := tags.LastMessageSent(ctx, "agent-1")
	if err != nil || !last.IsZero() {
		t.Errorf("expected zero time, got %v (%v)", last, err)
	}
}

func TestTagStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := state.NewMemoryStore()
	tags := state.NewTagStore(mem, "tags")
	now := time.Date(2024, 1, 15, 10, 30, 0, 500, time.UTC)

	if err := tags.SetCooldowns(ctx, "agent-1", alerts.CooldownState{"0:temperature:>:35": now}); err != nil {
		t.Fatalf("set cooldowns: %v", err)
	}
	if err := tags.SetMessagesSentCount(ctx, "agent-1", 7); err != nil {
		t.Fatalf("set count: %v", err)
	}
	if err := tags.SetLastMessageSent(ctx, "agent-1", now); err != nil {
		t.Fatalf("set last_message_sent: %v", err)
	}
	if err := tags.SetLastScheduledRun(ctx, "agent-1", now); err != nil {
		t.Fatalf("set last_scheduled_run: %v", err)
	}

	cooldowns, _ := tags.Cooldowns(ctx, "agent-1")
	if !cooldowns["0:temperature:>:35"].Equal(now) {
		t.Errorf("cooldowns = %v", cooldowns)
	}
	if count, _ := tags.MessagesSentCount(ctx, "agent-1"); count != 7 {
		t.Errorf("count = %d", count)
	}
	if last, _ := tags.LastMessageSent(ctx, "agent-1"); !last.Equal(now) {
		t.Errorf("last_message_sent = %v", last)
	}
	if run, _ := tags.LastScheduledRun(ctx, "agent-1"); !run.Equal(now) {
		t.Errorf("last_scheduled_run = %v", run)
	}

	raw, err := mem.Get(ctx, "tags:agent-1:last_message_sent")
	if err != nil {
		t.Fatalf("expected namespaced key: %v", err)
	}
	if string(raw) != `"2024-01-15T10:30:00.0000005Z"` {
		t.Errorf("timestamp stored as %s", raw)
	}

	// Agents do not share tags.
	if count, _ := tags.MessagesSentCount(ctx, "agent-2"); count != 0 {
		t.Errorf("agent-2 count = %d", count)
	}
}

func TestTagStore_BadCooldownTimestamp(t *testing.T) {
	ctx := context.Background()
	mem := state.NewMemoryStore()
	tags := state.NewTagStore(mem, "tags")

	mem.Set(ctx, "tags:agent-1:alert_cooldowns", []byte(`{"a":"not a time","b":"2024-01-15T10:30:00Z"}`))

	cooldowns, err := tags.Cooldowns(ctx, "agent-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cooldowns["a"]; ok {
		t.Error("unparseable timestamp should be dropped")
	}
	if _, ok := cooldowns["b"]; !ok {
		t.Error("valid timestamp should be kept")
	}
}

func TestTagStore_BackendErrors(t *testing.T) {
	ctx := context.Background()
	tags := state.NewTagStore(failingStore{}, "tags")

	if _, err := tags.Cooldowns(ctx, "agent-1"); !errors.Is(err, errBackend) {
		t.Errorf("expected backend error, got %v", err)
	}
	if err := tags.SetMessagesSentCount(ctx, "agent-1", 1); !errors.Is(err, errBackend) {
		t.Errorf("expected backend error, got %v", err)
	}
	if err := tags.Ping(ctx); !errors.Is(err, errBackend) {
		t.Errorf("expected backend error, got %v", err)
	}
}

func TestTagStore_CorruptTag(t *testing.T) {
	ctx := context.Background()
	mem := state.NewMemoryStore()
	tags := state.NewTagStore(mem, "tags")

	mem.Set(ctx, "tags:agent-1:alert_cooldowns", []byte(`not json`))

	_, err := tags.Cooldowns(ctx, "agent-1")
	if !errors.Is(err, state.ErrCorruptTag) {
		t.Fatalf("expected ErrCorruptTag, got %v", err)
	}
	if _, err := tags.Cooldowns(ctx, "agent-2"); err != nil {
		t.Errorf("missing tag should not be an error: %v", err)
	}
}

func TestTagStore_Snapshot(t *testing.T) {
	ctx := context.Background()
	tags := state.NewTagStore(state.NewMemoryStore(), "tags")

	empty, err := tags.Snapshot(ctx, "agent-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty.LastMessageSent != nil || empty.LastScheduledRun != nil || empty.MessagesSentCount != 0 || len(empty.AlertCooldowns) != 0 {
		t.Errorf("fresh agent should have an empty snapshot, got %+v", empty)
	}

	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	tags.SetCooldowns(ctx, "agent-1", alerts.CooldownState{"0:temperature:>:35": ts})
	tags.SetMessagesSentCount(ctx, "agent-1", 4)
	tags.SetLastMessageSent(ctx, "agent-1", ts)
	tags.SetLastScheduledRun(ctx, "agent-1", ts.Add(time.Minute))

	snap, err := tags.Snapshot(ctx, "agent-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.AgentID != "agent-1" || snap.MessagesSentCount != 4 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if !snap.AlertCooldowns["0:temperature:>:35"].Equal(ts) {
		t.Errorf("cooldown = %v, want %v", snap.AlertCooldowns, ts)
	}
	if snap.LastMessageSent == nil || !snap.LastMessageSent.Equal(ts) {
		t.Errorf("last_message_sent = %v, want %v", snap.LastMessageSent, ts)
	}
	if snap.LastScheduledRun == nil || !snap.LastScheduledRun.Equal(ts.Add(time.Minute)) {
		t.Errorf("last_scheduled_run = %v", snap.LastScheduledRun)
	}

	if _, err := state.NewTagStore(failingStore{}, "tags").Snapshot(ctx, "agent-1"); !errors.Is(err, errBackend) {
		t.Errorf("expected backend error, got %v", err)
	}
}
