package service

import (
	"context"
	"errors"
	"time"

	bookingerrors "innkeep/internal/booking/errors"
	"innkeep/internal/booking/repository"
	"innkeep/internal/events"
	"innkeep/internal/payment"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

// StateMachine is the only writer of booking status. Every mutating operation
// runs in one transaction holding the row lock, so staff actions, the expiry
// sweep and webhook delivery serialize on the database rather than on any
// in-process primitive.
type StateMachine interface {
	GetByID(ctx context.Context, bookingID string, now time.Time) (*BookingView, error)
	Approve(ctx context.Context, bookingID, staffID string, now time.Time) (*model.Booking, error)
	Decline(ctx context.Context, bookingID, staffID, reasonCode string, note *string, now time.Time) (*model.Booking, error)
	MarkSeen(ctx context.Context, bookingID, staffID string, now time.Time) (*MarkSeenResult, error)
	Cancel(ctx context.Context, bookingID, cancelledBy string, now time.Time) (*model.Booking, error)
	CheckIn(ctx context.Context, bookingID, staffID, room string, now time.Time) (*model.Booking, error)
	CheckOut(ctx context.Context, bookingID, staffID string, now time.Time) (*model.Booking, error)
}

type BookingView struct {
	*model.Booking
	RiskLevel string `json:"risk_level"`
}

type MarkSeenResult struct {
	IsNewForStaff bool       `json:"is_new_for_staff"`
	StaffSeenAt   *time.Time `json:"staff_seen_at"`
	StaffSeenBy   *string    `json:"staff_seen_by"`
}

type stateMachine struct {
	repo       repository.BookingRepository
	gateway    payment.Gateway
	calculator *payment.Calculator
	publisher  events.Publisher
	log        *logger.Logger
}

func NewStateMachine(
	repo repository.BookingRepository,
	gateway payment.Gateway,
	calculator *payment.Calculator,
	publisher events.Publisher,
	log *logger.Logger,
) StateMachine {
	return &stateMachine{
		repo:       repo,
		gateway:    gateway,
		calculator: calculator,
		publisher:  publisher,
		log:        log,
	}
}

func (s *stateMachine) GetByID(ctx context.Context, bookingID string, now time.Time) (*BookingView, error) {
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", bookingID)
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	return &BookingView{
		Booking:   booking,
		RiskLevel: model.ClassifyRisk(booking, now),
	}, nil
}

// Approve moves PENDING_APPROVAL to CONFIRMED. A persisted expired_at is the
// authoritative hard block, independent of whether status has caught up; the
// advisory risk level never gates this operation.
func (s *stateMachine) Approve(ctx context.Context, bookingID, staffID string, now time.Time) (*model.Booking, error) {
	var booking *model.Booking
	replayed := false

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.BookingTx) error {
		var err error
		booking, err = s.lock(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		if booking.HardExpired() {
			return apperrors.Conflict("Booking expired due to approval timeout")
		}

		// Replay of an already-approved booking is a success, not a conflict.
		if booking.Status == model.StatusConfirmed {
			replayed = true
			return nil
		}

		if booking.Status != model.StatusPendingApproval {
			return apperrors.Conflict("Booking is not awaiting approval")
		}

		if err := tx.SetApproved(ctx, bookingID, staffID, now); err != nil {
			return apperrors.Internal("Failed to approve booking", err)
		}

		booking.Status = model.StatusConfirmed
		booking.DecisionBy = &staffID
		booking.DecisionAt = &now
		return nil
	})
	if err != nil {
		s.log.Warn("Approve rejected", "booking_id", bookingID, "staff_id", staffID, "error", err)
		return nil, err
	}

	// A replayed approval changed nothing, so it emits nothing.
	if !replayed {
		s.publisher.Publish(ctx, events.TypeBookingConfirmed, events.BookingEvent{
			BookingID:  bookingID,
			Status:     booking.Status,
			OccurredAt: now,
		})
		s.log.Info("Booking approved", "booking_id", bookingID, "staff_id", staffID)
	}
	return booking, nil
}

func (s *stateMachine) Decline(ctx context.Context, bookingID, staffID, reasonCode string, note *string, now time.Time) (*model.Booking, error) {
	var booking *model.Booking

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.BookingTx) error {
		var err error
		booking, err = s.lock(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		if booking.HardExpired() {
			return apperrors.Conflict("Booking expired due to approval timeout")
		}
		if booking.Status != model.StatusPendingApproval {
			return apperrors.Conflict("Booking is not awaiting approval")
		}

		if err := tx.SetDeclined(ctx, bookingID, staffID, reasonCode, note, now); err != nil {
			return apperrors.Internal("Failed to decline booking", err)
		}

		booking.Status = model.StatusDeclined
		booking.DecisionBy = &staffID
		booking.DecisionAt = &now
		booking.DeclineReasonCode = &reasonCode
		booking.DeclineNote = note
		return nil
	})
	if err != nil {
		s.log.Warn("Decline rejected", "booking_id", bookingID, "staff_id", staffID, "error", err)
		return nil, err
	}

	s.publisher.Publish(ctx, events.TypeBookingDeclined, events.BookingEvent{
		BookingID:  bookingID,
		Status:     booking.Status,
		OccurredAt: now,
		Detail:     reasonCode,
	})
	s.log.Info("Booking declined", "booking_id", bookingID, "staff_id", staffID, "reason", reasonCode)
	return booking, nil
}

// MarkSeen fills staff_seen_at/staff_seen_by exactly once; later calls are
// no-ops preserving the first caller. IsNewForStaff reports whether this call
// was the one that set it, computed before the mutation.
func (s *stateMachine) MarkSeen(ctx context.Context, bookingID, staffID string, now time.Time) (*MarkSeenResult, error) {
	var result *MarkSeenResult

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.BookingTx) error {
		booking, err := s.lock(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		if booking.StaffSeenAt != nil {
			result = &MarkSeenResult{
				IsNewForStaff: false,
				StaffSeenAt:   booking.StaffSeenAt,
				StaffSeenBy:   booking.StaffSeenBy,
			}
			return nil
		}

		if err := tx.SetSeen(ctx, bookingID, staffID, now); err != nil {
			return apperrors.Internal("Failed to mark booking seen", err)
		}

		result = &MarkSeenResult{
			IsNewForStaff: true,
			StaffSeenAt:   &now,
			StaffSeenBy:   &staffID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Cancel finalizes a confirmed booking and issues the refund or void at most
// once. Any gateway error aborts the whole transaction, so status is never
// CANCELLED with a half-applied refund.
func (s *stateMachine) Cancel(ctx context.Context, bookingID, cancelledBy string, now time.Time) (*model.Booking, error) {
	var booking *model.Booking
	replayed := false

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.BookingTx) error {
		var err error
		booking, err = s.lock(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		// Retry after a completed cancellation: return the recorded outcome
		// without touching the gateway again.
		if booking.Status == model.StatusCancelled {
			replayed = true
			return nil
		}

		if booking.Status != model.StatusConfirmed {
			return apperrors.Conflict("Booking cannot be cancelled in its current state")
		}

		fee, refund := s.calculator.Calculate(booking.TotalAmount, booking.CheckIn, now)

		upd := repository.CancelUpdate{
			ID:              bookingID,
			CancelledAt:     now,
			CancellationFee: fee,
			RefundAmount:    refund,
		}

		switch {
		case booking.RefundProcessedAt != nil:
			// Refund already issued on an earlier attempt; keep the record.

		case booking.PaidAt != nil && refund > 0:
			if booking.PaymentReference == nil {
				return apperrors.Internal("Paid booking has no payment reference", nil)
			}
			refundObj, err := s.gateway.Refund(ctx, payment.RefundRequest{
				PaymentReference: *booking.PaymentReference,
				Amount:           refund,
				IdempotencyKey:   "refund-" + bookingID,
			})
			if err != nil {
				return err
			}
			upd.RefundReference = &refundObj.ID
			upd.RefundProcessedAt = &now

		case booking.PaidAt == nil && booking.PaymentReference != nil:
			// Authorization only: void it, no refund object is produced.
			if err := s.gateway.Void(ctx, *booking.PaymentReference, "void-"+bookingID); err != nil {
				return err
			}
		}

		if err := tx.SetCancelled(ctx, upd); err != nil {
			return apperrors.Internal("Failed to cancel booking", err)
		}

		booking.Status = model.StatusCancelled
		booking.CancelledAt = &now
		booking.CancellationFee = fee
		booking.RefundAmount = refund
		if upd.RefundReference != nil {
			booking.RefundReference = upd.RefundReference
			booking.RefundProcessedAt = upd.RefundProcessedAt
		}
		return nil
	})
	if err != nil {
		s.log.Error("Cancel failed", "booking_id", bookingID, "cancelled_by", cancelledBy, "error", err)
		return nil, err
	}

	if !replayed {
		s.publisher.Publish(ctx, events.TypeBookingCancelled, events.BookingEvent{
			BookingID:  bookingID,
			Status:     booking.Status,
			OccurredAt: now,
		})
		s.log.Info("Booking cancelled",
			"booking_id", bookingID,
			"cancelled_by", cancelledBy,
			"fee", booking.CancellationFee,
			"refund", booking.RefundAmount,
		)
	}
	return booking, nil
}

func (s *stateMachine) CheckIn(ctx context.Context, bookingID, staffID, room string, now time.Time) (*model.Booking, error) {
	var booking *model.Booking

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.BookingTx) error {
		var err error
		booking, err = s.lock(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		if booking.Status != model.StatusConfirmed {
			return apperrors.Conflict("Booking is not confirmed for check-in")
		}

		if err := tx.SetCheckedIn(ctx, bookingID, room, now); err != nil {
			return apperrors.Internal("Failed to check in booking", err)
		}

		booking.Status = model.StatusCheckedIn
		booking.AssignedRoom = &room
		booking.CheckedInAt = &now
		booking.AssignmentVersion++
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.TypeBookingCheckedIn, events.BookingEvent{
		BookingID:  bookingID,
		Status:     booking.Status,
		OccurredAt: now,
		Detail:     room,
	})
	s.log.Info("Guest checked in", "booking_id", bookingID, "staff_id", staffID, "room", room)
	return booking, nil
}

// CheckOut completes the stay and resolves any open overstay incident inside
// the same transaction.
func (s *stateMachine) CheckOut(ctx context.Context, bookingID, staffID string, now time.Time) (*model.Booking, error) {
	var booking *model.Booking

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.BookingTx) error {
		var err error
		booking, err = s.lock(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		if booking.Status != model.StatusCheckedIn {
			return apperrors.Conflict("Booking is not checked in")
		}

		if err := tx.SetCompleted(ctx, bookingID, now); err != nil {
			return apperrors.Internal("Failed to check out booking", err)
		}
		if err := tx.ResolveOpenIncidents(ctx, bookingID, now); err != nil {
			return apperrors.Internal("Failed to resolve overstay incidents", err)
		}

		booking.Status = model.StatusCompleted
		booking.CheckedOutAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.TypeBookingCheckedOut, events.BookingEvent{
		BookingID:  bookingID,
		Status:     booking.Status,
		OccurredAt: now,
	})
	s.log.Info("Guest checked out", "booking_id", bookingID, "staff_id", staffID)
	return booking, nil
}

func (s *stateMachine) lock(ctx context.Context, tx repository.BookingTx, bookingID string) (*model.Booking, error) {
	booking, err := tx.GetForUpdate(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", bookingID)
		}
		return nil, apperrors.Internal("Failed to lock booking", err)
	}
	return booking, nil
}
