package model

import "time"

// WebhookEvent is a row in the dedup ledger. The provider event id is the
// primary key: the first delivery wins and every replay short-circuits.
type WebhookEvent struct {
	EventID    string    `json:"event_id" db:"event_id"`
	EventType  string    `json:"event_type" db:"event_type"`
	BookingID  string    `json:"booking_id" db:"booking_id"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}
