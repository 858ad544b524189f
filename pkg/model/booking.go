package model

import (
	"time"
)

// Booking statuses. The status column only ever moves along the lifecycle
// graph; EXPIRED, DECLINED, CANCELLED_DRAFT and COMPLETED are terminal, and
// CANCELLED is terminal except for the one-time refund side effect.
const (
	StatusPendingPayment  = "PENDING_PAYMENT"
	StatusPendingApproval = "PENDING_APPROVAL"
	StatusConfirmed       = "CONFIRMED"
	StatusCheckedIn       = "CHECKED_IN"
	StatusCompleted       = "COMPLETED"
	StatusDeclined        = "DECLINED"
	StatusExpired         = "EXPIRED"
	StatusCancelled       = "CANCELLED"
	StatusCancelledDraft  = "CANCELLED_DRAFT"
)

// Risk levels for unapproved bookings versus their approval deadline.
// Advisory only: display material, never a gate on Approve.
const (
	RiskNormal   = "NORMAL"
	RiskWarning  = "WARNING"
	RiskCritical = "CRITICAL"
)

// Auto-expiry reason codes written by the sweep.
const (
	ExpireReasonApprovalTimeout = "APPROVAL_TIMEOUT"
	ExpireReasonPaymentTimeout  = "PAYMENT_TIMEOUT"
)

type Booking struct {
	ID                 string     `json:"id" db:"id"`
	Status             string     `json:"status" db:"status"`
	CheckIn            time.Time  `json:"check_in" db:"check_in"`
	CheckOut           time.Time  `json:"check_out" db:"check_out"`
	TotalAmount        int64      `json:"total_amount" db:"total_amount"`
	PaymentProvider    *string    `json:"payment_provider,omitempty" db:"payment_provider"`
	PaymentReference   *string    `json:"payment_reference,omitempty" db:"payment_reference"`
	PaidAt             *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	ApprovalDeadlineAt *time.Time `json:"approval_deadline_at,omitempty" db:"approval_deadline_at"`
	ExpiredAt          *time.Time `json:"expired_at,omitempty" db:"expired_at"`
	AutoExpireReason   *string    `json:"auto_expire_reason_code,omitempty" db:"auto_expire_reason_code"`
	DecisionBy         *string    `json:"decision_by,omitempty" db:"decision_by"`
	DecisionAt         *time.Time `json:"decision_at,omitempty" db:"decision_at"`
	DeclineReasonCode  *string    `json:"decline_reason_code,omitempty" db:"decline_reason_code"`
	DeclineNote        *string    `json:"decline_note,omitempty" db:"decline_note"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationFee    int64      `json:"cancellation_fee" db:"cancellation_fee"`
	RefundAmount       int64      `json:"refund_amount" db:"refund_amount"`
	RefundReference    *string    `json:"refund_reference,omitempty" db:"refund_reference"`
	RefundProcessedAt  *time.Time `json:"refund_processed_at,omitempty" db:"refund_processed_at"`
	AssignedRoom       *string    `json:"assigned_room,omitempty" db:"assigned_room"`
	CheckedInAt        *time.Time `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CheckedOutAt       *time.Time `json:"checked_out_at,omitempty" db:"checked_out_at"`
	StaffSeenAt        *time.Time `json:"staff_seen_at,omitempty" db:"staff_seen_at"`
	StaffSeenBy        *string    `json:"staff_seen_by,omitempty" db:"staff_seen_by"`
	AssignmentVersion  int        `json:"assignment_version" db:"assignment_version"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether no further status transition is possible.
func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case StatusExpired, StatusDeclined, StatusCancelledDraft, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// HardExpired is the authoritative expiry check: once expired_at is set the
// booking is locked out of approval regardless of whether status has caught
// up yet.
func (b *Booking) HardExpired() bool {
	return b.Status == StatusExpired || b.ExpiredAt != nil
}

// ClassifyRisk grades how overdue an unapproved booking is versus its
// approval deadline. Purely advisory.
func ClassifyRisk(b *Booking, now time.Time) string {
	if b.ApprovalDeadlineAt == nil || !now.After(*b.ApprovalDeadlineAt) {
		return RiskNormal
	}
	overdue := now.Sub(*b.ApprovalDeadlineAt)
	switch {
	case overdue >= 60*time.Minute:
		return RiskCritical
	case overdue >= 30*time.Minute:
		return RiskWarning
	default:
		return RiskNormal
	}
}
