package service

import (
	"context"
	"time"

	"innkeep/internal/events"
	"innkeep/internal/sweep/repository"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

// Report summarizes one sweep run.
type Report struct {
	Expired         int `json:"expired"`
	DraftsCancelled int `json:"drafts_cancelled"`
	Batches         int `json:"batches"`
}

type SweepService interface {
	Run(ctx context.Context, now time.Time) (Report, error)
	DryRun(ctx context.Context, now time.Time) (Report, error)
}

type sweepService struct {
	repo      repository.SweepRepository
	publisher events.Publisher
	batchSize int
	log       *logger.Logger
}

func NewSweepService(repo repository.SweepRepository, publisher events.Publisher, batchSize int, log *logger.Logger) SweepService {
	return &sweepService{
		repo:      repo,
		publisher: publisher,
		batchSize: batchSize,
		log:       log,
	}
}

// Run expires overdue bookings in bounded batches, each batch its own
// transaction, until a batch comes back short. Rows locked by concurrent
// staff decisions are skipped, not waited on; whoever commits first wins and
// the loser sees the committed state.
func (s *sweepService) Run(ctx context.Context, now time.Time) (Report, error) {
	var report Report

	for {
		expired, err := s.sweepApprovals(ctx, now)
		if err != nil {
			return report, err
		}
		report.Expired += len(expired)

		drafts, err := s.sweepDrafts(ctx, now)
		if err != nil {
			return report, err
		}
		report.DraftsCancelled += len(drafts)
		report.Batches++

		for _, id := range expired {
			s.publisher.Publish(ctx, events.TypeBookingExpired, events.BookingEvent{
				BookingID:  id,
				Status:     model.StatusExpired,
				OccurredAt: now,
				Detail:     model.ExpireReasonApprovalTimeout,
			})
		}

		if len(expired) < s.batchSize && len(drafts) < s.batchSize {
			break
		}
	}

	s.log.Info("Sweep completed",
		"expired", report.Expired,
		"drafts_cancelled", report.DraftsCancelled,
		"batches", report.Batches,
	)
	return report, nil
}

// DryRun reports what a sweep would do without touching any rows.
func (s *sweepService) DryRun(ctx context.Context, now time.Time) (Report, error) {
	approvals, drafts, err := s.repo.CountCandidates(ctx, now)
	if err != nil {
		return Report{}, apperrors.Internal("Failed to count sweep candidates", err)
	}
	return Report{Expired: approvals, DraftsCancelled: drafts}, nil
}

func (s *sweepService) sweepApprovals(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.SweepTx) error {
		candidates, err := tx.LockExpiredApprovals(ctx, now, s.batchSize)
		if err != nil {
			return apperrors.Internal("Failed to select approval candidates", err)
		}

		for _, b := range candidates {
			ids = append(ids, b.ID)
		}
		return tx.MarkExpired(ctx, ids, now)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *sweepService) sweepDrafts(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.SweepTx) error {
		candidates, err := tx.LockExpiredDrafts(ctx, now, s.batchSize)
		if err != nil {
			return apperrors.Internal("Failed to select draft candidates", err)
		}

		for _, b := range candidates {
			ids = append(ids, b.ID)
		}
		return tx.MarkDraftsCancelled(ctx, ids, now)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
