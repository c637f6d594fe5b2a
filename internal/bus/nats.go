package bus

import (
	"github.com/nats-io/nats.go"

	"whatsapp-processor/internal/logger"
	"whatsapp-processor/internal/metrics"
	"whatsapp-processor/internal/models"
)

// Subscriber delivers channel messages published on NATS.
type Subscriber struct {
	Conn *nats.Conn
}

func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url, nats.Name("whatsapp-processor"))
	if err != nil {
		return nil, err
	}
	return &Subscriber{Conn: conn}, nil
}

func (s *Subscriber) Close() {
	if s.Conn != nil {
		s.Conn.Drain()
		s.Conn.Close()
	}
}

// Subscribe decodes each message on subject as an event and passes it to
// handler. Malformed messages are logged and dropped.
func (s *Subscriber) Subscribe(subject string, handler func(*models.Invocation)) (*nats.Subscription, error) {
	log := logger.WithComponent("nats")
	return s.Conn.Subscribe(subject, func(msg *nats.Msg) {
		inv, err := models.DecodeInvocationFor(msg.Data, msg.Header.Get("agent_id"))
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed channel message")
			metrics.NATSReceivedTotal.WithLabelValues("invalid").Inc()
			return
		}
		metrics.NATSReceivedTotal.WithLabelValues("accepted").Inc()
		handler(inv)
	})
}
