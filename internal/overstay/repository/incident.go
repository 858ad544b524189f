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

var ErrNoIncident = errors.New("no current overstay incident")

// RoomConflict identifies a live booking holding a room during a window.
type RoomConflict struct {
	BookingID string    `json:"booking_id" db:"id"`
	Status    string    `json:"status" db:"status"`
	CheckIn   time.Time `json:"check_in" db:"check_in"`
	CheckOut  time.Time `json:"check_out" db:"check_out"`
}

// IncidentTx covers the detector's per-booking transaction: lock the booking,
// check for a live incident, create one.
type IncidentTx interface {
	GetBookingForUpdate(ctx context.Context, bookingID string) (*model.Booking, error)
	CurrentIncident(ctx context.Context, bookingID string) (*model.OverstayIncident, error)
	CreateIncident(ctx context.Context, incident *model.OverstayIncident) error
	Acknowledge(ctx context.Context, incidentID, staffID string, now time.Time) error
	ExtendBooking(ctx context.Context, bookingID string, newCheckOut, now time.Time) error
	ResolveIncidents(ctx context.Context, bookingID string, now time.Time) error
	RoomConflicts(ctx context.Context, room, bookingID string, from, to time.Time) ([]RoomConflict, error)
	FreeRooms(ctx context.Context, from, to time.Time, limit int) ([]string, error)
}

type IncidentRepository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx IncidentTx) error) error
	Current(ctx context.Context, bookingID string) (*model.OverstayIncident, error)
	FindBooking(ctx context.Context, bookingID string) (*model.Booking, error)
	ListOccupied(ctx context.Context) ([]*model.Booking, error)
}

type postgresIncidentRepository struct {
	db *sqlx.DB
}

func NewPostgresIncidentRepository(db *sqlx.DB) IncidentRepository {
	return &postgresIncidentRepository{db: db}
}

func (r *postgresIncidentRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx IncidentTx) error) error {
	return postgres.WithinTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, &incidentTx{tx: tx})
	})
}

const incidentColumns = `
	id, booking_id, status, detected_at, expected_checkout_date, severity,
	acked_by, acked_at, resolved_at`

// currentIncidentQuery picks the newest live incident. Filtering on status
// matters: a booking can carry stale RESOLVED incidents from past extensions,
// and those must never mask a newer OPEN one.
const currentIncidentQuery = `
	SELECT` + incidentColumns + `
	FROM overstay_incidents
	WHERE booking_id = $1 AND status IN ($2, $3)
	ORDER BY detected_at DESC
	LIMIT 1`

func (r *postgresIncidentRepository) Current(ctx context.Context, bookingID string) (*model.OverstayIncident, error) {
	var incident model.OverstayIncident
	err := r.db.GetContext(ctx, &incident, currentIncidentQuery, bookingID, model.IncidentOpen, model.IncidentAcked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoIncident
		}
		return nil, fmt.Errorf("failed to load current incident: %w", err)
	}
	return &incident, nil
}

func (r *postgresIncidentRepository) FindBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	query := `
		SELECT id, status, check_in, check_out, assigned_room, checked_in_at, checked_out_at
		FROM bookings
		WHERE id = $1`

	var booking model.Booking
	if err := r.db.GetContext(ctx, &booking, query, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bookingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return &booking, nil
}

// ListOccupied returns every booking currently in-house, the detection scan's
// candidate set.
func (r *postgresIncidentRepository) ListOccupied(ctx context.Context) ([]*model.Booking, error) {
	query := `
		SELECT id, status, check_out, assigned_room, checked_in_at
		FROM bookings
		WHERE status = $1
		ORDER BY check_out`

	var bookings []*model.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, model.StatusCheckedIn); err != nil {
		return nil, fmt.Errorf("failed to list occupied bookings: %w", err)
	}
	return bookings, nil
}

type incidentTx struct {
	tx *sqlx.Tx
}

func (t *incidentTx) GetBookingForUpdate(ctx context.Context, bookingID string) (*model.Booking, error) {
	query := `
		SELECT id, status, check_in, check_out, assigned_room, checked_in_at, checked_out_at
		FROM bookings
		WHERE id = $1
		FOR UPDATE`

	var booking model.Booking
	if err := t.tx.GetContext(ctx, &booking, query, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bookingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &booking, nil
}

func (t *incidentTx) CurrentIncident(ctx context.Context, bookingID string) (*model.OverstayIncident, error) {
	var incident model.OverstayIncident
	err := t.tx.GetContext(ctx, &incident, currentIncidentQuery, bookingID, model.IncidentOpen, model.IncidentAcked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoIncident
		}
		return nil, fmt.Errorf("failed to load current incident: %w", err)
	}
	return &incident, nil
}

func (t *incidentTx) CreateIncident(ctx context.Context, incident *model.OverstayIncident) error {
	query := `
		INSERT INTO overstay_incidents (
			id, booking_id, status, detected_at, expected_checkout_date, severity
		) VALUES (
			:id, :booking_id, :status, :detected_at, :expected_checkout_date, :severity
		)`

	if _, err := t.tx.NamedExecContext(ctx, query, incident); err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// Acknowledge flips OPEN to ACKED. The status guard makes a concurrent ack a
// no-op instead of a clobber.
func (t *incidentTx) Acknowledge(ctx context.Context, incidentID, staffID string, now time.Time) error {
	query := `
		UPDATE overstay_incidents
		SET status = $2, acked_by = $3, acked_at = $4
		WHERE id = $1 AND status = $5`

	if _, err := t.tx.ExecContext(ctx, query, incidentID, model.IncidentAcked, staffID, now, model.IncidentOpen); err != nil {
		return fmt.Errorf("failed to acknowledge incident: %w", err)
	}
	return nil
}

func (t *incidentTx) ExtendBooking(ctx context.Context, bookingID string, newCheckOut, now time.Time) error {
	query := `
		UPDATE bookings
		SET check_out = $2, updated_at = $3
		WHERE id = $1`

	if _, err := t.tx.ExecContext(ctx, query, bookingID, newCheckOut, now); err != nil {
		return fmt.Errorf("failed to extend booking: %w", err)
	}
	return nil
}

func (t *incidentTx) ResolveIncidents(ctx context.Context, bookingID string, now time.Time) error {
	query := `
		UPDATE overstay_incidents
		SET status = $2, resolved_at = $3
		WHERE booking_id = $1 AND status IN ($4, $5)`

	if _, err := t.tx.ExecContext(ctx, query,
		bookingID, model.IncidentResolved, now, model.IncidentOpen, model.IncidentAcked,
	); err != nil {
		return fmt.Errorf("failed to resolve incidents: %w", err)
	}
	return nil
}

// RoomConflicts lists other live bookings holding the same room with an
// overlapping stay window.
func (t *incidentTx) RoomConflicts(ctx context.Context, room, bookingID string, from, to time.Time) ([]RoomConflict, error) {
	query := `
		SELECT id, status, check_in, check_out
		FROM bookings
		WHERE assigned_room = $1
			AND id <> $2
			AND status IN ($3, $4)
			AND check_in < $6
			AND check_out > $5
		ORDER BY check_in`

	var conflicts []RoomConflict
	err := t.tx.SelectContext(ctx, &conflicts, query,
		room, bookingID, model.StatusConfirmed, model.StatusCheckedIn, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list room conflicts: %w", err)
	}
	return conflicts, nil
}

// FreeRooms suggests rooms with no live booking overlapping the window.
func (t *incidentTx) FreeRooms(ctx context.Context, from, to time.Time, limit int) ([]string, error) {
	query := `
		SELECT r.number
		FROM rooms r
		WHERE NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.assigned_room = r.number
				AND b.status IN ($1, $2)
				AND b.check_in < $4
				AND b.check_out > $3
		)
		ORDER BY r.number
		LIMIT $5`

	var rooms []string
	err := t.tx.SelectContext(ctx, &rooms, query,
		model.StatusConfirmed, model.StatusCheckedIn, from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list free rooms: %w", err)
	}
	return rooms, nil
}
