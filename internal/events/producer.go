// Package events publishes registration lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/models"
)

// Event types.
const (
	TypeRegistrationCreated   = "registration.created"
	TypeRegistrationConfirmed = "registration.confirmed"
	TypePaymentFailed         = "registration.payment_failed"
	TypeRegistrationCancelled = "registration.cancelled"
	TypeRegistrationRefunded  = "registration.refunded"
	TypeRegistrationExpired   = "registration.expired"
)

// RegistrationEvent is the message value. The key is the webinar id so all
// events for one webinar stay ordered on a partition.
type RegistrationEvent struct {
	Type           string               `json:"type"`
	RegistrationID uuid.UUID            `json:"registration_id"`
	WebinarID      uuid.UUID            `json:"webinar_id"`
	PaymentStatus  models.PaymentStatus `json:"payment_status"`
	UserID         *uuid.UUID           `json:"user_id,omitempty"`
	GuestEmail     string               `json:"guest_email,omitempty"`
	OrderID        string               `json:"order_id,omitempty"`
	RefundID       string               `json:"refund_id,omitempty"`
	OccurredAt     time.Time            `json:"occurred_at"`
}

// NewRegistrationEvent snapshots reg into an event of the given type.
func NewRegistrationEvent(eventType string, reg *models.Registration) RegistrationEvent {
	ev := RegistrationEvent{
		Type:           eventType,
		RegistrationID: reg.ID,
		WebinarID:      reg.WebinarID,
		PaymentStatus:  reg.PaymentStatus,
		OrderID:        reg.OrderID,
		OccurredAt:     time.Now().UTC(),
	}
	if id, ok := reg.Attendee.UserID(); ok {
		ev.UserID = &id
	}
	ev.GuestEmail = reg.ContactEmail()
	return ev
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes registration events to a single topic.
type Producer struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewProducer creates a synchronous Kafka producer for topic.
func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer, topic: topic, logger: logger}
}

// Publish writes ev keyed by webinar id.
func (p *Producer) Publish(ctx context.Context, ev RegistrationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(ev.WebinarID.String()),
		Value: data,
		Time:  ev.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to kafka: %w", ev.Type, err)
	}
	p.logger.Debug("published event",
		zap.String("type", ev.Type),
		zap.String("registration_id", ev.RegistrationID.String()))
	return nil
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
