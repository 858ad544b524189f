package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	bookingerrors "innkeep/internal/booking/errors"
	bookingrepo "innkeep/internal/booking/repository"
	"innkeep/internal/token/repository"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

// ErrUnauthorized is deliberately uniform: callers can never tell a wrong
// secret apart from a revoked or expired token.
var errUnauthorized = apperrors.Unauthorized("Invalid or expired access token")

type TokenService interface {
	Issue(ctx context.Context, bookingID, purpose string, scopes []string, now time.Time) (*model.GuestAccessToken, string, error)
	Validate(ctx context.Context, rawSecret, bookingID string, requiredScopes []string, now time.Time) (*model.GuestAccessToken, error)
}

type tokenService struct {
	repo     repository.TokenRepository
	bookings bookingrepo.BookingRepository
	ttl      time.Duration
	log      *logger.Logger
}

func NewTokenService(repo repository.TokenRepository, bookings bookingrepo.BookingRepository, ttl time.Duration, log *logger.Logger) TokenService {
	return &tokenService{
		repo:     repo,
		bookings: bookings,
		ttl:      ttl,
		log:      log,
	}
}

// Issue mints a fresh capability token bound to a booking. The raw secret is
// returned exactly once and only its salted hash is stored. All previously
// ACTIVE tokens for the booking are revoked in the same transaction,
// regardless of purpose, so at most one token is live at a time.
func (s *tokenService) Issue(ctx context.Context, bookingID, purpose string, scopes []string, now time.Time) (*model.GuestAccessToken, string, error) {
	if !model.ValidPurpose(purpose) {
		return nil, "", apperrors.InvalidInput("Unknown token purpose: " + purpose)
	}
	if len(scopes) == 0 {
		return nil, "", apperrors.InvalidInput("At least one scope is required")
	}
	for _, scope := range scopes {
		if !model.ValidScope(scope) {
			return nil, "", apperrors.InvalidInput("Unknown scope: " + scope)
		}
	}

	if _, err := s.bookings.FindByID(ctx, bookingID); err != nil {
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return nil, "", apperrors.NotFoundWithID("Booking", bookingID)
		}
		return nil, "", apperrors.Internal("Failed to load booking", err)
	}

	rawSecret, err := randomHex(32)
	if err != nil {
		return nil, "", apperrors.Internal("Failed to generate token secret", err)
	}
	salt, err := randomHex(16)
	if err != nil {
		return nil, "", apperrors.Internal("Failed to generate token salt", err)
	}

	token := &model.GuestAccessToken{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		TokenHash: hashSecret(salt, rawSecret),
		Salt:      salt,
		Scopes:    pq.StringArray(scopes),
		Purpose:   purpose,
		Status:    model.TokenActive,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.TokenTx) error {
		if err := tx.RevokeActive(ctx, bookingID); err != nil {
			return apperrors.Internal("Failed to revoke prior tokens", err)
		}
		if err := tx.Insert(ctx, token); err != nil {
			return apperrors.Internal("Failed to store token", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	s.log.Info("Guest access token issued",
		"booking_id", bookingID,
		"purpose", purpose,
		"token_id", token.ID,
	)
	return token, rawSecret, nil
}

// Validate is read-mostly and lock-free; only issuance needs a transaction.
func (s *tokenService) Validate(ctx context.Context, rawSecret, bookingID string, requiredScopes []string, now time.Time) (*model.GuestAccessToken, error) {
	active, err := s.repo.ListActive(ctx, bookingID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load tokens", err)
	}

	for _, token := range active {
		candidate := hashSecret(token.Salt, rawSecret)
		if !hmac.Equal([]byte(candidate), []byte(token.TokenHash)) {
			continue
		}
		if !now.Before(token.ExpiresAt) {
			return nil, errUnauthorized
		}
		if !token.HasScopes(requiredScopes) {
			return nil, errUnauthorized
		}

		if err := s.repo.TouchLastUsed(ctx, token.ID, now); err != nil {
			s.log.Warn("Failed to touch token last_used_at", "token_id", token.ID, "error", err)
		}
		return token, nil
	}

	return nil, errUnauthorized
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashSecret(salt, secret string) string {
	sum := sha256.Sum256([]byte(salt + secret))
	return hex.EncodeToString(sum[:])
}
