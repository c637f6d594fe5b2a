package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"whatsapp-processor/internal/config"
	"whatsapp-processor/internal/models"
	"whatsapp-processor/internal/state"
)

func TestProcessorRun(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	p := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if p.enqueue("test", models.NewInvocation("device-1", nil)) {
		t.Error("enqueue after shutdown should be rejected")
	}
}

func TestProcessorRun_Schedule(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Schedule.Interval = 10 * time.Millisecond
	cfg.Schedule.AgentID = "device-1"
	// Disabled runs still record last_scheduled_run without any credentials.
	cfg.Processor.Enabled = false
	p := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if p.runner.Stats().Processed == 0 {
		t.Error("expected scheduled invocations to run")
	}

	last, err := p.handler.tags.LastScheduledRun(context.Background(), "device-1")
	if err != nil || last.IsZero() {
		t.Errorf("last_scheduled_run not recorded: %v (%v)", last, err)
	}
}

func TestTagsHandler(t *testing.T) {
	tags := state.NewTagStore(state.NewMemoryStore(), "tags")
	p := &Processor{handler: NewHandler(HandlerConfig{Tags: tags})}

	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	tags.SetMessagesSentCount(context.Background(), "device-1", 2)
	tags.SetLastScheduledRun(context.Background(), "device-1", ts)

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"snapshot", http.MethodGet, "/tags?agent_id=device-1", http.StatusOK},
		{"missing agent", http.MethodGet, "/tags", http.StatusBadRequest},
		{"wrong method", http.MethodPost, "/tags?agent_id=device-1", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			p.tagsHandler(rr, httptest.NewRequest(tt.method, tt.target, nil))
			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rr.Code)
			}
		})
	}

	rr := httptest.NewRecorder()
	p.tagsHandler(rr, httptest.NewRequest(http.MethodGet, "/tags?agent_id=device-1", nil))
	var snap state.Snapshot
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.MessagesSentCount != 2 || snap.LastScheduledRun == nil || !snap.LastScheduledRun.Equal(ts) || snap.LastMessageSent != nil {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestTagsHandler_StoreDown(t *testing.T) {
	p := &Processor{handler: NewHandler(HandlerConfig{Tags: state.NewTagStore(downStore{}, "tags")})}

	rr := httptest.NewRecorder()
	p.tagsHandler(rr, httptest.NewRequest(http.MethodGet, "/tags?agent_id=device-1", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rr.Code)
	}
}

type downStore struct{}

func (downStore) Get(context.Context, string) ([]byte, error) { return nil, context.DeadlineExceeded }
func (downStore) Set(context.Context, string, []byte) error   { return context.DeadlineExceeded }
func (downStore) Ping(context.Context) error                  { return context.DeadlineExceeded }
func (downStore) Close() error                                { return nil }
