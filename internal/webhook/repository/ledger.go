package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	bookingerrors "innkeep/internal/booking/errors"
	"innkeep/pkg/model"
	"innkeep/pkg/postgres"
)

// WebhookTx groups the ledger insert and the booking confirmation into one
// transaction: either the event is recorded and the booking updated, or
// neither happened and the provider's retry will redo both.
type WebhookTx interface {
	GetBookingForUpdate(ctx context.Context, bookingID string) (*model.Booking, error)
	MarkPaid(ctx context.Context, bookingID, paymentReference string, now time.Time) error
	RecordEvent(ctx context.Context, event model.WebhookEvent) error
}

type WebhookRepository interface {
	EventSeen(ctx context.Context, eventID string) (bool, error)
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx WebhookTx) error) error
}

type postgresWebhookRepository struct {
	db *sqlx.DB
}

func NewPostgresWebhookRepository(db *sqlx.DB) WebhookRepository {
	return &postgresWebhookRepository{db: db}
}

func (r *postgresWebhookRepository) EventSeen(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`

	var seen bool
	if err := r.db.GetContext(ctx, &seen, query, eventID); err != nil {
		return false, fmt.Errorf("failed to check webhook ledger: %w", err)
	}
	return seen, nil
}

func (r *postgresWebhookRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx WebhookTx) error) error {
	return postgres.WithinTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, &webhookTx{tx: tx})
	})
}

type webhookTx struct {
	tx *sqlx.Tx
}

func (t *webhookTx) GetBookingForUpdate(ctx context.Context, bookingID string) (*model.Booking, error) {
	query := `
		SELECT id, status, check_in, check_out, total_amount,
			payment_provider, payment_reference, paid_at,
			expires_at, approval_deadline_at, expired_at, auto_expire_reason_code,
			decision_by, decision_at, decline_reason_code, decline_note,
			cancelled_at, cancellation_fee, refund_amount, refund_reference, refund_processed_at,
			assigned_room, checked_in_at, checked_out_at,
			staff_seen_at, staff_seen_by, assignment_version,
			created_at, updated_at
		FROM bookings WHERE id = $1 FOR UPDATE`

	var booking model.Booking
	if err := t.tx.GetContext(ctx, &booking, query, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bookingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}

	return &booking, nil
}

func (t *webhookTx) MarkPaid(ctx context.Context, bookingID, paymentReference string, now time.Time) error {
	query := `
		UPDATE bookings
		SET status = $2, paid_at = $3, payment_reference = $4, updated_at = $3
		WHERE id = $1`

	result, err := t.tx.ExecContext(ctx, query, bookingID, model.StatusConfirmed, now, paymentReference)
	if err != nil {
		return fmt.Errorf("failed to mark booking paid: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return bookingerrors.ErrNotFound
	}
	return nil
}

func (t *webhookTx) RecordEvent(ctx context.Context, event model.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (event_id, event_type, booking_id, received_at)
		VALUES (:event_id, :event_type, :booking_id, :received_at)
		ON CONFLICT (event_id) DO NOTHING`

	if _, err := t.tx.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}
