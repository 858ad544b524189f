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

// CancelUpdate carries everything the cancellation transaction writes in one
// statement, so a gateway failure can roll back the lot.
type CancelUpdate struct {
	ID                string
	CancelledAt       time.Time
	CancellationFee   int64
	RefundAmount      int64
	RefundReference   *string
	RefundProcessedAt *time.Time
}

// BookingTx exposes the row-level operations available inside one booking
// transaction. Every method assumes the caller already holds the row lock
// taken by GetForUpdate.
type BookingTx interface {
	GetForUpdate(ctx context.Context, id string) (*model.Booking, error)
	SetApproved(ctx context.Context, id, staffID string, now time.Time) error
	SetDeclined(ctx context.Context, id, staffID, reasonCode string, note *string, now time.Time) error
	SetSeen(ctx context.Context, id, staffID string, now time.Time) error
	SetCheckedIn(ctx context.Context, id, room string, now time.Time) error
	SetCompleted(ctx context.Context, id string, now time.Time) error
	SetCancelled(ctx context.Context, upd CancelUpdate) error
	SetPaymentSession(ctx context.Context, id, provider, reference string) error
	ResolveOpenIncidents(ctx context.Context, bookingID string, now time.Time) error
}

type BookingRepository interface {
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	Create(ctx context.Context, b *model.Booking) error
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) error
}

type postgresBookingRepository struct {
	db *sqlx.DB
}

func NewPostgresBookingRepository(db *sqlx.DB) BookingRepository {
	return &postgresBookingRepository{db: db}
}

const bookingColumns = `
	id, status, check_in, check_out, total_amount,
	payment_provider, payment_reference, paid_at,
	expires_at, approval_deadline_at, expired_at, auto_expire_reason_code,
	decision_by, decision_at, decline_reason_code, decline_note,
	cancelled_at, cancellation_fee, refund_amount, refund_reference, refund_processed_at,
	assigned_room, checked_in_at, checked_out_at,
	staff_seen_at, staff_seen_by, assignment_version,
	created_at, updated_at`

func (r *postgresBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE id = $1`

	var booking model.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bookingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

// Create persists a new booking aggregate. The reservation-create flow builds
// the aggregate explicitly; nothing is created through hidden side effects.
func (r *postgresBookingRepository) Create(ctx context.Context, b *model.Booking) error {
	query := `
		INSERT INTO bookings (
			id, status, check_in, check_out, total_amount,
			expires_at, approval_deadline_at, assignment_version,
			cancellation_fee, refund_amount, created_at, updated_at
		) VALUES (
			:id, :status, :check_in, :check_out, :total_amount,
			:expires_at, :approval_deadline_at, :assignment_version,
			:cancellation_fee, :refund_amount, :created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, b); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *postgresBookingRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) error {
	return postgres.WithinTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, &bookingTx{tx: tx})
	})
}

type bookingTx struct {
	tx *sqlx.Tx
}

func (t *bookingTx) GetForUpdate(ctx context.Context, id string) (*model.Booking, error) {
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`

	var booking model.Booking
	if err := t.tx.GetContext(ctx, &booking, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bookingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}

	return &booking, nil
}

func (t *bookingTx) SetApproved(ctx context.Context, id, staffID string, now time.Time) error {
	query := `
		UPDATE bookings
		SET status = $2, decision_by = $3, decision_at = $4, updated_at = $4
		WHERE id = $1`

	return t.exec(ctx, query, id, model.StatusConfirmed, staffID, now)
}

func (t *bookingTx) SetDeclined(ctx context.Context, id, staffID, reasonCode string, note *string, now time.Time) error {
	query := `
		UPDATE bookings
		SET status = $2, decision_by = $3, decision_at = $4,
			decline_reason_code = $5, decline_note = $6, updated_at = $4
		WHERE id = $1`

	return t.exec(ctx, query, id, model.StatusDeclined, staffID, now, reasonCode, note)
}

// SetSeen only fills staff_seen_at/staff_seen_by when still NULL; the columns
// are write-once and the first writer wins forever.
func (t *bookingTx) SetSeen(ctx context.Context, id, staffID string, now time.Time) error {
	query := `
		UPDATE bookings
		SET staff_seen_at = $2, staff_seen_by = $3, updated_at = $2
		WHERE id = $1 AND staff_seen_at IS NULL`

	_, err := t.tx.ExecContext(ctx, query, id, now, staffID)
	if err != nil {
		return fmt.Errorf("failed to mark booking seen: %w", err)
	}
	return nil
}

func (t *bookingTx) SetCheckedIn(ctx context.Context, id, room string, now time.Time) error {
	query := `
		UPDATE bookings
		SET status = $2, assigned_room = $3, checked_in_at = $4,
			assignment_version = assignment_version + 1, updated_at = $4
		WHERE id = $1`

	return t.exec(ctx, query, id, model.StatusCheckedIn, room, now)
}

func (t *bookingTx) SetCompleted(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE bookings
		SET status = $2, checked_out_at = $3, updated_at = $3
		WHERE id = $1`

	return t.exec(ctx, query, id, model.StatusCompleted, now)
}

func (t *bookingTx) SetCancelled(ctx context.Context, upd CancelUpdate) error {
	query := `
		UPDATE bookings
		SET status = $2, cancelled_at = $3, cancellation_fee = $4,
			refund_amount = $5, refund_reference = COALESCE($6, refund_reference),
			refund_processed_at = COALESCE($7, refund_processed_at), updated_at = $3
		WHERE id = $1`

	return t.exec(ctx, query,
		upd.ID, model.StatusCancelled, upd.CancelledAt, upd.CancellationFee,
		upd.RefundAmount, upd.RefundReference, upd.RefundProcessedAt,
	)
}

func (t *bookingTx) SetPaymentSession(ctx context.Context, id, provider, reference string) error {
	query := `
		UPDATE bookings
		SET payment_provider = $2, payment_reference = $3, updated_at = NOW()
		WHERE id = $1`

	return t.exec(ctx, query, id, provider, reference)
}

func (t *bookingTx) ResolveOpenIncidents(ctx context.Context, bookingID string, now time.Time) error {
	query := `
		UPDATE overstay_incidents
		SET status = $2, resolved_at = $3
		WHERE booking_id = $1 AND status IN ($4, $5)`

	_, err := t.tx.ExecContext(ctx, query,
		bookingID, model.IncidentResolved, now, model.IncidentOpen, model.IncidentAcked,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve overstay incidents: %w", err)
	}
	return nil
}

func (t *bookingTx) exec(ctx context.Context, query string, args ...any) error {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
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
