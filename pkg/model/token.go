package model

import (
	"time"

	"github.com/lib/pq"
)

// Guest access token statuses.
const (
	TokenActive  = "ACTIVE"
	TokenRevoked = "REVOKED"
	TokenExpired = "EXPIRED"
)

// Token purposes.
const (
	PurposeStatus  = "STATUS"
	PurposeChat    = "CHAT"
	PurposeCheckin = "CHECKIN"
)

// Capability scopes a guest token may carry.
const (
	ScopeStatusRead  = "status:read"
	ScopeChat        = "chat"
	ScopeCheckin     = "checkin"
	ScopeInvoiceRead = "invoice:read"
)

// GuestAccessToken is the stored half of a capability token. The raw secret
// is handed out exactly once at issuance and only its salted hash persists.
type GuestAccessToken struct {
	ID         string         `json:"id" db:"id"`
	BookingID  string         `json:"booking_id" db:"booking_id"`
	TokenHash  string         `json:"-" db:"token_hash"`
	Salt       string         `json:"-" db:"salt"`
	Scopes     pq.StringArray `json:"scopes" db:"scopes"`
	Purpose    string         `json:"purpose" db:"purpose"`
	Status     string         `json:"status" db:"status"`
	ExpiresAt  time.Time      `json:"expires_at" db:"expires_at"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty" db:"last_used_at"`
}

// HasScopes reports whether every required scope is granted.
func (t *GuestAccessToken) HasScopes(required []string) bool {
	granted := make(map[string]struct{}, len(t.Scopes))
	for _, s := range t.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range required {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

func ValidScope(s string) bool {
	switch s {
	case ScopeStatusRead, ScopeChat, ScopeCheckin, ScopeInvoiceRead:
		return true
	}
	return false
}

func ValidPurpose(p string) bool {
	switch p {
	case PurposeStatus, PurposeChat, PurposeCheckin:
		return true
	}
	return false
}
