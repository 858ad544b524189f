package service

import (
	"context"
	"errors"
	"time"

	bookingerrors "innkeep/internal/booking/errors"
	"innkeep/internal/events"
	"innkeep/internal/webhook/repository"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

const EventCheckoutCompleted = "checkout.session.completed"

// PaymentEvent is the decoded provider notification. The signature has
// already been verified by middleware before this type is ever populated.
type PaymentEvent struct {
	EventID          string `json:"event_id" validate:"required,min=1,max=128"`
	EventType        string `json:"event_type" validate:"required"`
	BookingID        string `json:"booking_id" validate:"required,uuid4"`
	PaymentReference string `json:"payment_reference" validate:"required,min=1,max=128"`
}

type WebhookService interface {
	ProcessPaymentConfirmation(ctx context.Context, event PaymentEvent, now time.Time) error
}

type webhookService struct {
	repo      repository.WebhookRepository
	publisher events.Publisher
	log       *logger.Logger
}

func NewWebhookService(repo repository.WebhookRepository, publisher events.Publisher, log *logger.Logger) WebhookService {
	return &webhookService{
		repo:      repo,
		publisher: publisher,
		log:       log,
	}
}

// ProcessPaymentConfirmation is idempotent at two levels: the event-id ledger
// catches exact redeliveries, and the paid_at guard catches a different event
// confirming an already-paid booking. Either way the caller gets success and
// the provider's retry policy stops.
func (s *webhookService) ProcessPaymentConfirmation(ctx context.Context, event PaymentEvent, now time.Time) error {
	seen, err := s.repo.EventSeen(ctx, event.EventID)
	if err != nil {
		return apperrors.Internal("Failed to check webhook ledger", err)
	}
	if seen {
		s.log.Info("Webhook event replayed, skipping", "event_id", event.EventID)
		return nil
	}

	confirmed := false
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.WebhookTx) error {
		ledgerRow := model.WebhookEvent{
			EventID:    event.EventID,
			EventType:  event.EventType,
			BookingID:  event.BookingID,
			ReceivedAt: now,
		}

		booking, err := tx.GetBookingForUpdate(ctx, event.BookingID)
		if err != nil {
			if errors.Is(err, bookingerrors.ErrNotFound) {
				// Record the event anyway so the provider stops retrying a
				// booking we will never know about.
				s.log.Warn("Webhook for unknown booking", "event_id", event.EventID, "booking_id", event.BookingID)
				return tx.RecordEvent(ctx, ledgerRow)
			}
			return apperrors.Internal("Failed to lock booking", err)
		}

		switch {
		case booking.PaidAt != nil:
			// Redelivery after payment already landed.

		case booking.Status == model.StatusPendingPayment:
			if err := tx.MarkPaid(ctx, event.BookingID, event.PaymentReference, now); err != nil {
				return apperrors.Internal("Failed to confirm payment", err)
			}
			confirmed = true

		default:
			s.log.Warn("Payment confirmation for booking not awaiting payment",
				"event_id", event.EventID,
				"booking_id", event.BookingID,
				"status", booking.Status,
			)
		}

		return tx.RecordEvent(ctx, ledgerRow)
	})
	if err != nil {
		return err
	}

	if confirmed {
		s.publisher.Publish(ctx, events.TypeBookingConfirmed, events.BookingEvent{
			BookingID:  event.BookingID,
			Status:     model.StatusConfirmed,
			OccurredAt: now,
		})
		s.log.Info("Payment confirmed via webhook",
			"event_id", event.EventID,
			"booking_id", event.BookingID,
		)
	}

	return nil
}
