package bus_test

import (
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"whatsapp-processor/internal/bus"
	"whatsapp-processor/internal/models"
)

// skipIfNoNATS skips the test unless a NATS server is available
func skipIfNoNATS(t *testing.T) string {
	t.Helper()
	if os.Getenv("NATS_TEST") != "1" {
		t.Skip("Skipping NATS integration test. Set NATS_TEST=1 to run.")
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		return url
	}
	return nats.DefaultURL
}

func TestSubscriber_DeliversInvocations(t *testing.T) {
	url := skipIfNoNATS(t)

	sub, err := bus.NewSubscriber(url)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer sub.Close()

	got := make(chan *models.Invocation, 4)
	if _, err := sub.Subscribe("channels.test", func(inv *models.Invocation) { got <- inv }); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	pub, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("failed to connect publisher: %v", err)
	}
	defer pub.Close()

	// Malformed payloads are dropped; the next message still arrives.
	pub.Publish("channels.test", []byte(`not json`))

	msg := nats.NewMsg("channels.test")
	msg.Header.Set("agent_id", "device-1")
	msg.Data = []byte(`{"message":{"data":{"temperature":36}}}`)
	if err := pub.PublishMsg(msg); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	pub.Flush()

	select {
	case inv := <-got:
		if inv.AgentID != "device-1" {
			t.Errorf("agent_id = %q, want header value", inv.AgentID)
		}
		if v, ok := inv.Message.Data.Lookup("temperature").Float(); !ok || v != 36 {
			t.Errorf("temperature = %v (ok=%v)", v, ok)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no invocation delivered")
	}
}
