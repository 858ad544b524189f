package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"innkeep/pkg/logger"
)

type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create_bookings",
		stmt: `
			CREATE TABLE IF NOT EXISTS bookings (
				id                      UUID PRIMARY KEY,
				status                  TEXT NOT NULL,
				check_in                TIMESTAMPTZ NOT NULL,
				check_out               TIMESTAMPTZ NOT NULL,
				total_amount            BIGINT NOT NULL,
				payment_provider        TEXT,
				payment_reference       TEXT,
				paid_at                 TIMESTAMPTZ,
				expires_at              TIMESTAMPTZ,
				approval_deadline_at    TIMESTAMPTZ,
				expired_at              TIMESTAMPTZ,
				auto_expire_reason_code TEXT,
				decision_by             TEXT,
				decision_at             TIMESTAMPTZ,
				decline_reason_code     TEXT,
				decline_note            TEXT,
				cancelled_at            TIMESTAMPTZ,
				cancellation_fee        BIGINT NOT NULL DEFAULT 0,
				refund_amount           BIGINT NOT NULL DEFAULT 0,
				refund_reference        TEXT,
				refund_processed_at     TIMESTAMPTZ,
				assigned_room           TEXT,
				checked_in_at           TIMESTAMPTZ,
				checked_out_at          TIMESTAMPTZ,
				staff_seen_at           TIMESTAMPTZ,
				staff_seen_by           TEXT,
				assignment_version      INTEGER NOT NULL DEFAULT 0,
				created_at              TIMESTAMPTZ NOT NULL,
				updated_at              TIMESTAMPTZ NOT NULL
			)`,
	},
	{
		version: 2,
		name:    "index_bookings_sweep",
		stmt: `
			CREATE INDEX IF NOT EXISTS idx_bookings_status_approval_deadline
				ON bookings (status, approval_deadline_at)
				WHERE expired_at IS NULL`,
	},
	{
		version: 3,
		name:    "index_bookings_draft_expiry",
		stmt: `
			CREATE INDEX IF NOT EXISTS idx_bookings_status_expires
				ON bookings (status, expires_at)`,
	},
	{
		version: 4,
		name:    "create_guest_access_tokens",
		stmt: `
			CREATE TABLE IF NOT EXISTS guest_access_tokens (
				id           UUID PRIMARY KEY,
				booking_id   UUID NOT NULL REFERENCES bookings (id),
				token_hash   TEXT NOT NULL,
				salt         TEXT NOT NULL,
				scopes       TEXT[] NOT NULL,
				purpose      TEXT NOT NULL,
				status       TEXT NOT NULL,
				expires_at   TIMESTAMPTZ NOT NULL,
				created_at   TIMESTAMPTZ NOT NULL,
				last_used_at TIMESTAMPTZ
			)`,
	},
	{
		version: 5,
		name:    "index_tokens_booking_status",
		stmt: `
			CREATE INDEX IF NOT EXISTS idx_tokens_booking_status
				ON guest_access_tokens (booking_id, status)`,
	},
	{
		version: 6,
		name:    "create_overstay_incidents",
		stmt: `
			CREATE TABLE IF NOT EXISTS overstay_incidents (
				id                     UUID PRIMARY KEY,
				booking_id             UUID NOT NULL REFERENCES bookings (id),
				status                 TEXT NOT NULL,
				detected_at            TIMESTAMPTZ NOT NULL,
				expected_checkout_date TIMESTAMPTZ NOT NULL,
				severity               TEXT NOT NULL,
				acked_by               TEXT,
				acked_at               TIMESTAMPTZ,
				resolved_at            TIMESTAMPTZ
			)`,
	},
	{
		version: 7,
		name:    "index_incidents_booking_detected",
		stmt: `
			CREATE INDEX IF NOT EXISTS idx_incidents_booking_detected
				ON overstay_incidents (booking_id, detected_at DESC)`,
	},
	{
		version: 8,
		name:    "create_webhook_events",
		stmt: `
			CREATE TABLE IF NOT EXISTS webhook_events (
				event_id    TEXT PRIMARY KEY,
				event_type  TEXT NOT NULL,
				booking_id  TEXT NOT NULL,
				received_at TIMESTAMPTZ NOT NULL
			)`,
	},
	{
		version: 9,
		name:    "create_rooms",
		stmt: `
			CREATE TABLE IF NOT EXISTS rooms (
				number     TEXT PRIMARY KEY,
				floor      INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
	},
}

// Run applies pending migrations in order, each inside its own transaction
// alongside its schema_migrations row.
func Run(ctx context.Context, db *sqlx.DB, log *logger.Logger) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		applied, err := isApplied(ctx, db, m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			m.version, m.name,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}

		log.Info("Migration applied", "version", m.version, "name", m.name)
	}

	return nil
}

func isApplied(ctx context.Context, db *sqlx.DB, version int) (bool, error) {
	var count int
	err := db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, version)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %d: %w", version, err)
	}
	return count > 0, nil
}
