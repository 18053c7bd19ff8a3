package store

import (
	"context"
	"encoding/json"
	"time"

	"helpdesk-triage/internal/common/errors"
	"helpdesk-triage/internal/common/logger"

	"github.com/segmentio/kafka-go"
)

// DecisionEvent is the message published for every classified ticket.
// Downstream consumers (analytics, SLA monitors) key on the ticket ID.
type DecisionEvent struct {
	TicketID         string    `json:"ticket_id"`
	Category         string    `json:"category"`
	Subcategory      string    `json:"subcategory"`
	Summary          string    `json:"summary"`
	ConfidenceSource string    `json:"confidence_source"`
	Sentiment        string    `json:"sentiment"`
	Timestamp        time.Time `json:"timestamp"`
}

// Publisher sends decision events to Kafka.
type Publisher struct {
	writer *kafka.Writer
	logger logger.Logger
}

func NewPublisher(brokers []string, topic string, log logger.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: log.WithFields(map[string]interface{}{
			"component": "events",
		}),
	}
}

// Publish sends one decision event keyed by ticket ID.
func (p *Publisher) Publish(ctx context.Context, event DecisionEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.NewEventPublishFailedError(err)
	}

	msg := kafka.Message{
		Key:   []byte(event.TicketID),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.NewEventPublishFailedError(err)
	}

	p.logger.Debug("decision event published", map[string]interface{}{
		"ticketId": event.TicketID,
		"category": event.Category,
	})
	return nil
}

// Close closes the Kafka writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
