package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"innkeep/internal/booking/repository"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/model"
)

// DraftParams describes a new reservation draft. Amounts are integer cents.
type DraftParams struct {
	CheckIn        time.Time
	CheckOut       time.Time
	TotalAmount    int64
	PaymentWindow  time.Duration
	ApprovalWindow time.Duration
}

// CreateDraft builds and persists a PENDING_PAYMENT draft in one explicit
// insert. No lifecycle hooks fire here; every later transition goes through
// the state machine.
func CreateDraft(ctx context.Context, repo repository.BookingRepository, p DraftParams, now time.Time) (*model.Booking, error) {
	if !p.CheckOut.After(p.CheckIn) {
		return nil, apperrors.InvalidInput("Checkout date must be after check-in date")
	}
	if p.TotalAmount <= 0 {
		return nil, apperrors.InvalidInput("Total amount must be positive")
	}

	expiresAt := now.Add(p.PaymentWindow)
	approvalDeadline := now.Add(p.ApprovalWindow)

	booking := &model.Booking{
		ID:                 uuid.New().String(),
		Status:             model.StatusPendingPayment,
		CheckIn:            p.CheckIn,
		CheckOut:           p.CheckOut,
		TotalAmount:        p.TotalAmount,
		ExpiresAt:          &expiresAt,
		ApprovalDeadlineAt: &approvalDeadline,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := repo.Create(ctx, booking); err != nil {
		return nil, apperrors.Internal("Failed to create booking draft", err)
	}
	return booking, nil
}
