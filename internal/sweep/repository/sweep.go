package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"innkeep/pkg/model"
	"innkeep/pkg/postgres"
)

// SweepTx selects and expires one batch of overdue bookings inside a single
// transaction. Candidate selection uses SKIP LOCKED so a sweep never stalls
// behind a staff member mid-decision on the same row; a locked row is simply
// picked up by a later run.
type SweepTx interface {
	LockExpiredApprovals(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error)
	LockExpiredDrafts(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error)
	MarkExpired(ctx context.Context, ids []string, now time.Time) error
	MarkDraftsCancelled(ctx context.Context, ids []string, now time.Time) error
}

type SweepRepository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx SweepTx) error) error
	CountCandidates(ctx context.Context, cutoff time.Time) (approvals, drafts int, err error)
}

type postgresSweepRepository struct {
	db *sqlx.DB
}

func NewPostgresSweepRepository(db *sqlx.DB) SweepRepository {
	return &postgresSweepRepository{db: db}
}

func (r *postgresSweepRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx SweepTx) error) error {
	return postgres.WithinTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, &sweepTx{tx: tx})
	})
}

// CountCandidates reports how many rows a sweep would touch without locking
// anything. Dry-run only; the counts can be stale by the time a real sweep
// runs.
func (r *postgresSweepRepository) CountCandidates(ctx context.Context, cutoff time.Time) (int, int, error) {
	var approvals, drafts int

	query := `
		SELECT COUNT(*) FROM bookings
		WHERE status = $1 AND approval_deadline_at < $2 AND expired_at IS NULL`
	if err := r.db.GetContext(ctx, &approvals, query, model.StatusPendingApproval, cutoff); err != nil {
		return 0, 0, fmt.Errorf("failed to count approval candidates: %w", err)
	}

	query = `
		SELECT COUNT(*) FROM bookings
		WHERE status = $1 AND expires_at < $2`
	if err := r.db.GetContext(ctx, &drafts, query, model.StatusPendingPayment, cutoff); err != nil {
		return 0, 0, fmt.Errorf("failed to count draft candidates: %w", err)
	}

	return approvals, drafts, nil
}

type sweepTx struct {
	tx *sqlx.Tx
}

func (t *sweepTx) LockExpiredApprovals(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error) {
	query := `
		SELECT id, status, approval_deadline_at, expired_at
		FROM bookings
		WHERE status = $1 AND approval_deadline_at < $2 AND expired_at IS NULL
		ORDER BY approval_deadline_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED`

	var bookings []*model.Booking
	if err := t.tx.SelectContext(ctx, &bookings, query, model.StatusPendingApproval, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to lock expired approvals: %w", err)
	}
	return bookings, nil
}

func (t *sweepTx) LockExpiredDrafts(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error) {
	query := `
		SELECT id, status, expires_at
		FROM bookings
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED`

	var bookings []*model.Booking
	if err := t.tx.SelectContext(ctx, &bookings, query, model.StatusPendingPayment, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to lock expired drafts: %w", err)
	}
	return bookings, nil
}

// MarkExpired moves unapproved bookings past their deadline to EXPIRED and
// stamps expired_at, the authoritative hard-block read by the approval path.
func (t *sweepTx) MarkExpired(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		UPDATE bookings
		SET status = ?, expired_at = ?, auto_expire_reason_code = ?, updated_at = ?
		WHERE id IN (?)`,
		model.StatusExpired, now, model.ExpireReasonApprovalTimeout, now, ids,
	)
	if err != nil {
		return fmt.Errorf("failed to build expire query: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to expire bookings: %w", err)
	}
	return nil
}

// MarkDraftsCancelled moves unpaid drafts past their payment window to
// CANCELLED_DRAFT. These never held inventory, so no refund machinery runs.
func (t *sweepTx) MarkDraftsCancelled(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		UPDATE bookings
		SET status = ?, expired_at = ?, auto_expire_reason_code = ?, updated_at = ?
		WHERE id IN (?)`,
		model.StatusCancelledDraft, now, model.ExpireReasonPaymentTimeout, now, ids,
	)
	if err != nil {
		return fmt.Errorf("failed to build draft-cancel query: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to cancel draft bookings: %w", err)
	}
	return nil
}
