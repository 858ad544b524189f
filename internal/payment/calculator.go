package payment

import (
	"time"
)

// CancellationPolicy grades the fee charged when a confirmed booking is
// cancelled, based on how close to check-in the cancellation lands.
// Amounts are integer cents; integer arithmetic avoids the rounding drift
// that matters in money handling.
type CancellationPolicy struct {
	FreeUntilHours    int // no fee when further out than this
	LateFeePercent    int // fee inside the window
	LastMinuteHours   int // tighter window with a steeper fee
	LastMinutePercent int
}

func DefaultCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{
		FreeUntilHours:    48,
		LateFeePercent:    20,
		LastMinuteHours:   12,
		LastMinutePercent: 50,
	}
}

type Calculator struct {
	policy CancellationPolicy
}

func NewCalculator(policy CancellationPolicy) *Calculator {
	return &Calculator{policy: policy}
}

// Calculate derives (fee, refund) for cancelling a booking worth total cents
// at the given moment. fee + refund always equals total.
func (c *Calculator) Calculate(total int64, checkIn, now time.Time) (fee int64, refund int64) {
	hoursToCheckIn := checkIn.Sub(now).Hours()

	var percent int64
	switch {
	case hoursToCheckIn >= float64(c.policy.FreeUntilHours):
		percent = 0
	case hoursToCheckIn >= float64(c.policy.LastMinuteHours):
		percent = int64(c.policy.LateFeePercent)
	default:
		percent = int64(c.policy.LastMinutePercent)
	}

	fee = total * percent / 100
	return fee, total - fee
}
