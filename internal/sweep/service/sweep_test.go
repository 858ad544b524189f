package service

import (
	"context"
	"testing"
	"time"

	"innkeep/internal/events"
	"innkeep/internal/sweep/repository"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

var testNow = time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)

// fakeSweepRepo hands out bookings in deterministic batches the way SKIP
// LOCKED selection would: already-claimed rows never reappear.
type fakeSweepRepo struct {
	approvals []*model.Booking
	drafts    []*model.Booking
	expired   []string
	cancelled []string
	txCount   int
}

func (f *fakeSweepRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.SweepTx) error) error {
	f.txCount++
	return fn(ctx, &fakeSweepTx{repo: f})
}

func (f *fakeSweepRepo) CountCandidates(ctx context.Context, cutoff time.Time) (int, int, error) {
	return len(f.approvals), len(f.drafts), nil
}

type fakeSweepTx struct {
	repo *fakeSweepRepo
}

func take(pool *[]*model.Booking, limit int) []*model.Booking {
	n := limit
	if n > len(*pool) {
		n = len(*pool)
	}
	batch := (*pool)[:n]
	*pool = (*pool)[n:]
	return batch
}

func (t *fakeSweepTx) LockExpiredApprovals(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error) {
	return take(&t.repo.approvals, limit), nil
}

func (t *fakeSweepTx) LockExpiredDrafts(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error) {
	return take(&t.repo.drafts, limit), nil
}

func (t *fakeSweepTx) MarkExpired(ctx context.Context, ids []string, now time.Time) error {
	t.repo.expired = append(t.repo.expired, ids...)
	return nil
}

func (t *fakeSweepTx) MarkDraftsCancelled(ctx context.Context, ids []string, now time.Time) error {
	t.repo.cancelled = append(t.repo.cancelled, ids...)
	return nil
}

type recordingPublisher struct {
	published []events.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, event events.BookingEvent) {
	if eventType == events.TypeBookingExpired {
		p.published = append(p.published, event)
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "ERROR", Format: logger.TEXT, Service: "test"})
}

func makeBookings(prefix string, n int) []*model.Booking {
	out := make([]*model.Booking, n)
	for i := range out {
		out[i] = &model.Booking{ID: prefix + string(rune('a'+i))}
	}
	return out
}

func TestRunStopsOnShortBatch(t *testing.T) {
	repo := &fakeSweepRepo{
		approvals: makeBookings("app-", 7),
		drafts:    makeBookings("dft-", 2),
	}
	pub := &recordingPublisher{}
	svc := NewSweepService(repo, pub, 3, testLogger())

	report, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Expired != 7 {
		t.Fatalf("expired = %d, want 7", report.Expired)
	}
	if report.DraftsCancelled != 2 {
		t.Fatalf("drafts_cancelled = %d, want 2", report.DraftsCancelled)
	}
	// 7 approvals at batch size 3 needs 3 batches; the third comes back short
	// and stops the loop.
	if report.Batches != 3 {
		t.Fatalf("batches = %d, want 3", report.Batches)
	}
	if len(repo.expired) != 7 || len(repo.cancelled) != 2 {
		t.Fatalf("marked %d expired, %d cancelled", len(repo.expired), len(repo.cancelled))
	}
	if len(pub.published) != 7 {
		t.Fatalf("published %d booking.expired events, want 7", len(pub.published))
	}
	for _, ev := range pub.published {
		if ev.Status != model.StatusExpired || ev.Detail != model.ExpireReasonApprovalTimeout {
			t.Fatalf("event = %+v", ev)
		}
	}
}

func TestRunWithNothingToDo(t *testing.T) {
	repo := &fakeSweepRepo{}
	svc := NewSweepService(repo, &recordingPublisher{}, 100, testLogger())

	report, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Expired != 0 || report.DraftsCancelled != 0 {
		t.Fatalf("report = %+v, want zeros", report)
	}
	if report.Batches != 1 {
		t.Fatalf("batches = %d, want 1", report.Batches)
	}
}

func TestRunExactMultipleOfBatchSize(t *testing.T) {
	// 6 rows at batch size 3: two full batches, then one empty batch to
	// observe there is nothing left.
	repo := &fakeSweepRepo{approvals: makeBookings("app-", 6)}
	svc := NewSweepService(repo, &recordingPublisher{}, 3, testLogger())

	report, err := svc.Run(context.Background(), testNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Expired != 6 {
		t.Fatalf("expired = %d, want 6", report.Expired)
	}
	if report.Batches != 3 {
		t.Fatalf("batches = %d, want 3", report.Batches)
	}
}

func TestDryRunCountsWithoutMutating(t *testing.T) {
	repo := &fakeSweepRepo{
		approvals: makeBookings("app-", 4),
		drafts:    makeBookings("dft-", 3),
	}
	svc := NewSweepService(repo, &recordingPublisher{}, 3, testLogger())

	report, err := svc.DryRun(context.Background(), testNow)
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if report.Expired != 4 || report.DraftsCancelled != 3 {
		t.Fatalf("report = %+v, want 4/3", report)
	}
	if repo.txCount != 0 {
		t.Fatal("dry run opened a transaction")
	}
	if len(repo.expired)+len(repo.cancelled) != 0 {
		t.Fatal("dry run mutated rows")
	}
}
