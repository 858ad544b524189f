package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	bookingerrors "innkeep/internal/booking/errors"
	"innkeep/internal/events"
	"innkeep/internal/overstay/repository"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

const suggestedRoomLimit = 5

// IncidentState for the status endpoint: ACTIVE when a live incident backs
// the booking, MISSING when none does, including bookings past deadline the
// detector has not reached yet.
const (
	IncidentStateActive  = "ACTIVE"
	IncidentStateMissing = "MISSING"
)

type OverstaySummary struct {
	Status       string    `json:"status"`
	DetectedAt   time.Time `json:"detected_at"`
	Severity     string    `json:"severity"`
	HoursOverdue float64   `json:"hours_overdue"`
}

type Status struct {
	IsOverstay    bool             `json:"is_overstay"`
	IncidentState string           `json:"incident_state"`
	Overstay      *OverstaySummary `json:"overstay,omitempty"`
}

type ExtendResult struct {
	Extended       bool                      `json:"extended"`
	NewCheckOut    *time.Time                `json:"new_check_out,omitempty"`
	Conflicts      []repository.RoomConflict `json:"conflicts,omitempty"`
	SuggestedRooms []string                  `json:"suggested_rooms,omitempty"`
}

type DetectionReport struct {
	Scanned  int `json:"scanned"`
	Detected int `json:"detected"`
}

type OverstayService interface {
	Status(ctx context.Context, bookingID string, now time.Time) (*Status, error)
	Acknowledge(ctx context.Context, bookingID, staffID string, now time.Time) (*model.OverstayIncident, error)
	Extend(ctx context.Context, bookingID string, newCheckOut, now time.Time) (*ExtendResult, error)
	RunDetection(ctx context.Context, now time.Time) (DetectionReport, error)
}

type overstayService struct {
	repo         repository.IncidentRepository
	publisher    events.Publisher
	location     *time.Location
	checkoutHour int
	log          *logger.Logger
}

func NewOverstayService(repo repository.IncidentRepository, publisher events.Publisher, location *time.Location, checkoutHour int, log *logger.Logger) OverstayService {
	return &overstayService{
		repo:         repo,
		publisher:    publisher,
		location:     location,
		checkoutHour: checkoutHour,
		log:          log,
	}
}

// CheckoutDeadline is the wall-clock moment a stay must end: the checkout hour
// on the booking's checkout date, in the hotel's timezone. The date is read in
// the hotel timezone too, so a UTC-stored date near midnight does not slip a
// day.
func CheckoutDeadline(checkOut time.Time, location *time.Location, checkoutHour int) time.Time {
	local := checkOut.In(location)
	return time.Date(local.Year(), local.Month(), local.Day(), checkoutHour, 0, 0, 0, location)
}

// IsOverstay reports whether an in-house booking has reached its checkout
// deadline. The deadline itself counts as overdue. Pure function of the
// booking and the clock.
func IsOverstay(b *model.Booking, now time.Time, location *time.Location, checkoutHour int) bool {
	if b.Status != model.StatusCheckedIn || b.AssignedRoom == nil {
		return false
	}
	return !now.Before(CheckoutDeadline(b.CheckOut, location, checkoutHour))
}

// Status reads lock-free: the booking row plus the newest live incident.
func (s *overstayService) Status(ctx context.Context, bookingID string, now time.Time) (*Status, error) {
	booking, incident, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	overdue := IsOverstay(booking, now, s.location, s.checkoutHour)
	status := &Status{IsOverstay: overdue, IncidentState: IncidentStateMissing}

	if incident != nil {
		deadline := CheckoutDeadline(booking.CheckOut, s.location, s.checkoutHour)
		status.IncidentState = IncidentStateActive
		status.Overstay = &OverstaySummary{
			Status:       incident.Status,
			DetectedAt:   incident.DetectedAt,
			Severity:     incident.Severity,
			HoursOverdue: now.Sub(deadline).Hours(),
		}
	}

	return status, nil
}

// Acknowledge flips the current incident to ACKED. The booking must still be
// in-house: acking an incident for a guest who already left is a staleness
// bug on the caller's side.
func (s *overstayService) Acknowledge(ctx context.Context, bookingID, staffID string, now time.Time) (*model.OverstayIncident, error) {
	var acked *model.OverstayIncident

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.IncidentTx) error {
		booking, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, bookingerrors.ErrNotFound) {
				return apperrors.NotFoundWithID("Booking", bookingID)
			}
			return apperrors.Internal("Failed to lock booking", err)
		}
		if booking.Status != model.StatusCheckedIn {
			return apperrors.Conflict("Cannot acknowledge overstay: booking is not checked in, current status: " + booking.Status)
		}

		incident, err := tx.CurrentIncident(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNoIncident) {
				return apperrors.NotFound("No open overstay incident for booking")
			}
			return apperrors.Internal("Failed to load incident", err)
		}

		if incident.Status == model.IncidentOpen {
			if err := tx.Acknowledge(ctx, incident.ID, staffID, now); err != nil {
				return apperrors.Internal("Failed to acknowledge incident", err)
			}
			incident.Status = model.IncidentAcked
			incident.AckedBy = &staffID
			incident.AckedAt = &now
		}
		acked = incident
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acked, nil
}

// Extend pushes the booking's checkout date forward and resolves any live
// incident. If the assigned room is already promised to another booking in
// the new window, the extension is refused and free rooms are suggested so
// staff can relocate the guest instead.
func (s *overstayService) Extend(ctx context.Context, bookingID string, newCheckOut, now time.Time) (*ExtendResult, error) {
	var result *ExtendResult

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.IncidentTx) error {
		booking, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, bookingerrors.ErrNotFound) {
				return apperrors.NotFoundWithID("Booking", bookingID)
			}
			return apperrors.Internal("Failed to lock booking", err)
		}
		if booking.Status != model.StatusCheckedIn {
			return apperrors.Conflict("Cannot extend stay: booking is not checked in, current status: " + booking.Status)
		}
		if !newCheckOut.After(booking.CheckOut) {
			return apperrors.InvalidInput("New checkout date must be after the current one")
		}

		if booking.AssignedRoom != nil {
			conflicts, err := tx.RoomConflicts(ctx, *booking.AssignedRoom, bookingID, booking.CheckOut, newCheckOut)
			if err != nil {
				return apperrors.Internal("Failed to check room availability", err)
			}
			if len(conflicts) > 0 {
				rooms, err := tx.FreeRooms(ctx, booking.CheckOut, newCheckOut, suggestedRoomLimit)
				if err != nil {
					return apperrors.Internal("Failed to suggest rooms", err)
				}
				result = &ExtendResult{Extended: false, Conflicts: conflicts, SuggestedRooms: rooms}
				return nil
			}
		}

		if err := tx.ExtendBooking(ctx, bookingID, newCheckOut, now); err != nil {
			return apperrors.Internal("Failed to extend booking", err)
		}
		if err := tx.ResolveIncidents(ctx, bookingID, now); err != nil {
			return apperrors.Internal("Failed to resolve incidents", err)
		}
		result = &ExtendResult{Extended: true, NewCheckOut: &newCheckOut}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Extended {
		s.log.Info("Stay extended", "booking_id", bookingID, "new_check_out", newCheckOut)
	}
	return result, nil
}

// RunDetection scans every in-house booking and opens an incident for each
// overdue one that has no live incident yet. One transaction per booking, so
// a single contested row never blocks the whole scan's progress on others.
func (s *overstayService) RunDetection(ctx context.Context, now time.Time) (DetectionReport, error) {
	occupied, err := s.repo.ListOccupied(ctx)
	if err != nil {
		return DetectionReport{}, apperrors.Internal("Failed to list occupied bookings", err)
	}

	report := DetectionReport{Scanned: len(occupied)}
	for _, candidate := range occupied {
		if !IsOverstay(candidate, now, s.location, s.checkoutHour) {
			continue
		}
		created, err := s.detectOne(ctx, candidate.ID, now)
		if err != nil {
			s.log.Warn("Overstay detection failed for booking", "booking_id", candidate.ID, "error", err)
			continue
		}
		if created {
			report.Detected++
		}
	}

	s.log.Info("Overstay detection completed", "scanned", report.Scanned, "detected", report.Detected)
	return report, nil
}

func (s *overstayService) detectOne(ctx context.Context, bookingID string, now time.Time) (bool, error) {
	created := false

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.IncidentTx) error {
		booking, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		// Re-check under the lock: the guest may have checked out between the
		// scan and now.
		if !IsOverstay(booking, now, s.location, s.checkoutHour) {
			return nil
		}

		if _, err := tx.CurrentIncident(ctx, bookingID); err == nil {
			return nil
		} else if !errors.Is(err, repository.ErrNoIncident) {
			return err
		}

		deadline := CheckoutDeadline(booking.CheckOut, s.location, s.checkoutHour)
		incident := &model.OverstayIncident{
			ID:                   uuid.New().String(),
			BookingID:            bookingID,
			Status:               model.IncidentOpen,
			DetectedAt:           now,
			ExpectedCheckoutDate: booking.CheckOut,
			Severity:             model.GradeSeverity(now.Sub(deadline)),
		}
		if err := tx.CreateIncident(ctx, incident); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if created {
		s.publisher.Publish(ctx, events.TypeOverstayDetected, events.BookingEvent{
			BookingID:  bookingID,
			Status:     model.StatusCheckedIn,
			OccurredAt: now,
		})
	}
	return created, nil
}

func (s *overstayService) load(ctx context.Context, bookingID string) (*model.Booking, *model.OverstayIncident, error) {
	incident, err := s.repo.Current(ctx, bookingID)
	if err != nil && !errors.Is(err, repository.ErrNoIncident) {
		return nil, nil, apperrors.Internal("Failed to load incident", err)
	}
	if errors.Is(err, repository.ErrNoIncident) {
		incident = nil
	}

	booking, err := s.repo.FindBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return nil, nil, apperrors.NotFoundWithID("Booking", bookingID)
		}
		return nil, nil, apperrors.Internal("Failed to load booking", err)
	}
	return booking, incident, nil
}
