package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-eventreg/internal/config"
	"ms-eventreg/internal/logger"
	"ms-eventreg/internal/models"
)

// Notifier is the outbound edge to the notification service. Messages are
// fire-and-forget: the notification service owns retries and templating,
// this side only hands off the id.
type Notifier struct {
	writer *kafka.Writer
	topics config.TopicConfig
	log    *logger.Logger
	mock   bool
}

func NewNotifier(cfg config.KafkaConfig, log *logger.Logger) *Notifier {
	n := &Notifier{
		topics: cfg.Topics,
		log:    log,
		mock:   cfg.MockMode || !cfg.Enabled,
	}
	if !n.mock {
		n.writer = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Balancer: &kafka.LeastBytes{},
		}
	}
	return n
}

func (n *Notifier) SendRegistrationConfirmation(registrationID string) error {
	return n.publish(n.topics.RegistrationConfirmations, registrationID, map[string]string{
		"registration_id": registrationID,
	})
}

func (n *Notifier) SendTicketEmail(ticketID string) error {
	return n.publish(n.topics.TicketEmails, ticketID, map[string]string{
		"ticket_id": ticketID,
	})
}

// PublishTicketCheckedIn streams a check-in event for downstream consumers
// (attendance dashboards, audit).
func (n *Notifier) PublishTicketCheckedIn(ticket models.IssuedTicket) error {
	return n.publish(n.topics.TicketCheckins, ticket.ReferenceCode, map[string]interface{}{
		"ticket_id":      ticket.ID,
		"reference_code": ticket.ReferenceCode,
		"checked_in_at":  ticket.CheckedInAt,
		"checked_in_by":  ticket.CheckedInBy,
	})
}

func (n *Notifier) publish(topic, key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if n.mock {
		if n.log != nil {
			n.log.LogNotify("MOCK", key, "would publish to "+topic)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil && n.log != nil {
		n.log.Error("NOTIFY", "kafka publish to "+topic+" failed: "+err.Error())
	}
	return err
}

func (n *Notifier) Close() error {
	if n.writer != nil {
		return n.writer.Close()
	}
	return nil
}
