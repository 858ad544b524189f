package events

import (
	"context"
	"time"

	"innkeep/pkg/kafka"
	"innkeep/pkg/logger"
)

// Event types published on the booking lifecycle stream.
const (
	TypeBookingConfirmed  = "booking.confirmed"
	TypeBookingDeclined   = "booking.declined"
	TypeBookingCancelled  = "booking.cancelled"
	TypeBookingExpired    = "booking.expired"
	TypeBookingCheckedIn  = "booking.checked_in"
	TypeBookingCheckedOut = "booking.checked_out"
	TypeOverstayDetected  = "overstay.detected"
)

type BookingEvent struct {
	BookingID  string    `json:"booking_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}

// Publisher emits lifecycle events after a state transition has committed.
// Publishing is best-effort and must never influence the outcome of the
// transaction that produced the event.
type Publisher interface {
	Publish(ctx context.Context, eventType string, event BookingEvent)
}

type kafkaPublisher struct {
	producer *kafka.Producer
	source   string
	log      *logger.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, source string, log *logger.Logger) Publisher {
	return &kafkaPublisher{
		producer: producer,
		source:   source,
		log:      log,
	}
}

func (p *kafkaPublisher) Publish(ctx context.Context, eventType string, event BookingEvent) {
	msg := kafka.NewMessage().
		WithKey(event.BookingID).
		WithEventType(eventType).
		WithSource(p.source).
		WithValue(event).
		Build()

	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Warn("Failed to publish lifecycle event",
			"event_type", eventType,
			"booking_id", event.BookingID,
			"error", err,
		)
	}
}

type noopPublisher struct{}

// NewNoopPublisher is used when no Kafka brokers are configured.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, string, BookingEvent) {}
