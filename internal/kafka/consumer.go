package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"whatsapp-processor/internal/logger"
	"whatsapp-processor/internal/metrics"
	"whatsapp-processor/internal/models"
)

// agentIDHeader names the agent for events published without agent_id.
const agentIDHeader = "agent_id"

// Consumer reads platform events from a topic and queues them as invocations.
type Consumer struct {
	reader         *kafka.Reader
	invocationChan chan<- *models.Invocation

	consumed atomic.Uint64
	invalid  atomic.Uint64
}

// NewConsumer creates a consumer-group reader on topic.
func NewConsumer(brokers []string, topic, groupID string, out chan<- *models.Invocation) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		invocationChan: out,
	}, nil
}

// Start reads until ctx is cancelled. Each message is committed once its
// invocation is queued; malformed messages are committed and dropped.
func (c *Consumer) Start(ctx context.Context) error {
	log := logger.WithComponent("kafka_consumer")
	log.Info().Str("topic", c.reader.Config().Topic).Msg("kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		inv, err := decodeMessage(msg)
		if err != nil {
			log.Warn().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("dropping malformed channel message")
			c.invalid.Add(1)
			metrics.KafkaConsumedTotal.WithLabelValues("invalid").Inc()
		} else {
			select {
			case c.invocationChan <- inv:
				c.consumed.Add(1)
				metrics.KafkaConsumedTotal.WithLabelValues("accepted").Inc()
				metrics.InvocationsEnqueued.WithLabelValues("kafka", "accepted").Inc()
			case <-ctx.Done():
				return nil
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit offset")
		}
	}
}

// decodeMessage parses an event; the agent_id header, then the message
// key, stand in for a missing agent_id field.
func decodeMessage(msg kafka.Message) (*models.Invocation, error) {
	agentID := string(msg.Key)
	for _, h := range msg.Headers {
		if h.Key == agentIDHeader {
			agentID = string(h.Value)
		}
	}
	return models.DecodeInvocationFor(msg.Value, agentID)
}

// Stop closes the reader.
func (c *Consumer) Stop() error {
	return c.reader.Close()
}

// Stats returns consumer statistics
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Consumed: c.consumed.Load(),
		Invalid:  c.invalid.Load(),
	}
}

// ConsumerStats holds consumer metrics
type ConsumerStats struct {
	Consumed uint64 `json:"consumed"`
	Invalid  uint64 `json:"invalid"`
}
