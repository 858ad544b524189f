package payment

import (
	"context"
	"errors"
	"time"

	bookingerrors "innkeep/internal/booking/errors"
	"innkeep/internal/booking/repository"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

type SessionService interface {
	CreateSession(ctx context.Context, bookingID string, now time.Time) (*Session, error)
}

type sessionService struct {
	repo     repository.BookingRepository
	gateway  Gateway
	provider string
	currency string
	log      *logger.Logger
}

func NewSessionService(repo repository.BookingRepository, gateway Gateway, provider string, log *logger.Logger) SessionService {
	return &sessionService{
		repo:     repo,
		gateway:  gateway,
		provider: provider,
		currency: "USD",
		log:      log,
	}
}

// CreateSession opens a provider checkout session and persists the provider
// name and session id on the booking inside the same transaction. A crash
// between the gateway call and the commit rolls everything back, so a session
// can never be left orphaned from its booking.
func (s *sessionService) CreateSession(ctx context.Context, bookingID string, now time.Time) (*Session, error) {
	var session *Session

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.BookingTx) error {
		booking, err := tx.GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, bookingerrors.ErrNotFound) {
				return apperrors.NotFoundWithID("Booking", bookingID)
			}
			return apperrors.Internal("Failed to lock booking", err)
		}

		if booking.Status != model.StatusPendingPayment {
			return apperrors.Conflict("Booking is not awaiting payment")
		}

		// Replay: a session already exists for this booking.
		if booking.PaymentReference != nil {
			session = &Session{ID: *booking.PaymentReference}
			return nil
		}

		session, err = s.gateway.CreateCheckoutSession(ctx, SessionRequest{
			BookingID: bookingID,
			Amount:    booking.TotalAmount,
			Currency:  s.currency,
		})
		if err != nil {
			return err
		}

		return tx.SetPaymentSession(ctx, bookingID, s.provider, session.ID)
	})
	if err != nil {
		s.log.Error("Failed to create payment session", "booking_id", bookingID, "error", err)
		return nil, err
	}

	s.log.Info("Payment session created",
		"booking_id", bookingID,
		"provider", s.provider,
		"session_id", session.ID,
	)
	return session, nil
}
