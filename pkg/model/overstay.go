package model

import "time"

// Overstay incident statuses. Multiple incidents may exist per booking over
// time; only the most recent OPEN or ACKED one is "current".
const (
	IncidentOpen     = "OPEN"
	IncidentAcked    = "ACKED"
	IncidentResolved = "RESOLVED"
)

// Incident severities, graded from hours past the checkout deadline.
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

type OverstayIncident struct {
	ID                   string     `json:"id" db:"id"`
	BookingID            string     `json:"booking_id" db:"booking_id"`
	Status               string     `json:"status" db:"status"`
	DetectedAt           time.Time  `json:"detected_at" db:"detected_at"`
	ExpectedCheckoutDate time.Time  `json:"expected_checkout_date" db:"expected_checkout_date"`
	Severity             string     `json:"severity" db:"severity"`
	AckedBy              *string    `json:"acked_by,omitempty" db:"acked_by"`
	AckedAt              *time.Time `json:"acked_at,omitempty" db:"acked_at"`
	ResolvedAt           *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// GradeSeverity maps hours past the checkout deadline onto a severity.
func GradeSeverity(overdue time.Duration) string {
	switch {
	case overdue >= 6*time.Hour:
		return SeverityHigh
	case overdue >= 2*time.Hour:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
