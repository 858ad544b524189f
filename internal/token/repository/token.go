package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"innkeep/pkg/model"
	"innkeep/pkg/postgres"
)

// TokenTx covers issuance, the only token path needing transactional
// isolation: revoking priors and inserting the replacement must be atomic to
// preserve the single-active-token invariant.
type TokenTx interface {
	RevokeActive(ctx context.Context, bookingID string) error
	Insert(ctx context.Context, token *model.GuestAccessToken) error
}

type TokenRepository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TokenTx) error) error
	ListActive(ctx context.Context, bookingID string) ([]*model.GuestAccessToken, error)
	TouchLastUsed(ctx context.Context, tokenID string, now time.Time) error
}

type postgresTokenRepository struct {
	db *sqlx.DB
}

func NewPostgresTokenRepository(db *sqlx.DB) TokenRepository {
	return &postgresTokenRepository{db: db}
}

func (r *postgresTokenRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx TokenTx) error) error {
	return postgres.WithinTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, &tokenTx{tx: tx})
	})
}

func (r *postgresTokenRepository) ListActive(ctx context.Context, bookingID string) ([]*model.GuestAccessToken, error) {
	query := `
		SELECT id, booking_id, token_hash, salt, scopes, purpose, status,
			expires_at, created_at, last_used_at
		FROM guest_access_tokens
		WHERE booking_id = $1 AND status = $2`

	var tokens []*model.GuestAccessToken
	if err := r.db.SelectContext(ctx, &tokens, query, bookingID, model.TokenActive); err != nil {
		return nil, fmt.Errorf("failed to list active tokens: %w", err)
	}
	return tokens, nil
}

// TouchLastUsed is best-effort bookkeeping; callers ignore failures so a slow
// write never blocks validation.
func (r *postgresTokenRepository) TouchLastUsed(ctx context.Context, tokenID string, now time.Time) error {
	query := `UPDATE guest_access_tokens SET last_used_at = $2 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, tokenID, now); err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	return nil
}

type tokenTx struct {
	tx *sqlx.Tx
}

func (t *tokenTx) RevokeActive(ctx context.Context, bookingID string) error {
	query := `
		UPDATE guest_access_tokens
		SET status = $2
		WHERE booking_id = $1 AND status = $3`

	if _, err := t.tx.ExecContext(ctx, query, bookingID, model.TokenRevoked, model.TokenActive); err != nil {
		return fmt.Errorf("failed to revoke active tokens: %w", err)
	}
	return nil
}

func (t *tokenTx) Insert(ctx context.Context, token *model.GuestAccessToken) error {
	query := `
		INSERT INTO guest_access_tokens (
			id, booking_id, token_hash, salt, scopes, purpose, status,
			expires_at, created_at
		) VALUES (
			:id, :booking_id, :token_hash, :salt, :scopes, :purpose, :status,
			:expires_at, :created_at
		)`

	if _, err := t.tx.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}
