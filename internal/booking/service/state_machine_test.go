package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"innkeep/internal/booking/repository"
	"innkeep/internal/events"
	"innkeep/internal/payment"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

// fakeBookingRepo keeps one booking in memory and applies tx writes to it, so
// tests observe the same state a committed transaction would leave behind. A
// returned error discards the staged copy, mirroring a rollback.
type fakeBookingRepo struct {
	booking  *model.Booking
	findErr  error
	calls    []string
	resolved int
}

func (f *fakeBookingRepo) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	copied := *f.booking
	return &copied, nil
}

func (f *fakeBookingRepo) Create(ctx context.Context, b *model.Booking) error {
	f.booking = b
	return nil
}

func (f *fakeBookingRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.BookingTx) error) error {
	staged := *f.booking
	tx := &fakeBookingTx{repo: f, staged: &staged}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	f.booking = tx.staged
	return nil
}

type fakeBookingTx struct {
	repo   *fakeBookingRepo
	staged *model.Booking
}

func (t *fakeBookingTx) GetForUpdate(ctx context.Context, id string) (*model.Booking, error) {
	if t.repo.findErr != nil {
		return nil, t.repo.findErr
	}
	t.repo.calls = append(t.repo.calls, "GetForUpdate")
	copied := *t.staged
	return &copied, nil
}

func (t *fakeBookingTx) SetApproved(ctx context.Context, id, staffID string, now time.Time) error {
	t.repo.calls = append(t.repo.calls, "SetApproved")
	t.staged.Status = model.StatusConfirmed
	t.staged.DecisionBy = &staffID
	t.staged.DecisionAt = &now
	return nil
}

func (t *fakeBookingTx) SetDeclined(ctx context.Context, id, staffID, reasonCode string, note *string, now time.Time) error {
	t.repo.calls = append(t.repo.calls, "SetDeclined")
	t.staged.Status = model.StatusDeclined
	t.staged.DecisionBy = &staffID
	t.staged.DecisionAt = &now
	t.staged.DeclineReasonCode = &reasonCode
	t.staged.DeclineNote = note
	return nil
}

func (t *fakeBookingTx) SetSeen(ctx context.Context, id, staffID string, now time.Time) error {
	t.repo.calls = append(t.repo.calls, "SetSeen")
	if t.staged.StaffSeenAt == nil {
		t.staged.StaffSeenAt = &now
		t.staged.StaffSeenBy = &staffID
	}
	return nil
}

func (t *fakeBookingTx) SetCheckedIn(ctx context.Context, id, room string, now time.Time) error {
	t.repo.calls = append(t.repo.calls, "SetCheckedIn")
	t.staged.Status = model.StatusCheckedIn
	t.staged.AssignedRoom = &room
	t.staged.CheckedInAt = &now
	t.staged.AssignmentVersion++
	return nil
}

func (t *fakeBookingTx) SetCompleted(ctx context.Context, id string, now time.Time) error {
	t.repo.calls = append(t.repo.calls, "SetCompleted")
	t.staged.Status = model.StatusCompleted
	t.staged.CheckedOutAt = &now
	return nil
}

func (t *fakeBookingTx) SetCancelled(ctx context.Context, upd repository.CancelUpdate) error {
	t.repo.calls = append(t.repo.calls, "SetCancelled")
	t.staged.Status = model.StatusCancelled
	t.staged.CancelledAt = &upd.CancelledAt
	t.staged.CancellationFee = upd.CancellationFee
	t.staged.RefundAmount = upd.RefundAmount
	if upd.RefundReference != nil {
		t.staged.RefundReference = upd.RefundReference
	}
	if upd.RefundProcessedAt != nil {
		t.staged.RefundProcessedAt = upd.RefundProcessedAt
	}
	return nil
}

func (t *fakeBookingTx) SetPaymentSession(ctx context.Context, id, provider, reference string) error {
	t.repo.calls = append(t.repo.calls, "SetPaymentSession")
	t.staged.PaymentProvider = &provider
	t.staged.PaymentReference = &reference
	return nil
}

func (t *fakeBookingTx) ResolveOpenIncidents(ctx context.Context, bookingID string, now time.Time) error {
	t.repo.calls = append(t.repo.calls, "ResolveOpenIncidents")
	t.repo.resolved++
	return nil
}

// fakeGateway records calls; any configured error is returned as a 502.
type fakeGateway struct {
	refunds     []payment.RefundRequest
	voids       []string
	refundErr   error
	sessionsErr error
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	if g.sessionsErr != nil {
		return nil, apperrors.Gateway("Gateway refused session", g.sessionsErr)
	}
	return &payment.Session{ID: "cs_test_" + req.BookingID}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.Refund, error) {
	if g.refundErr != nil {
		return nil, apperrors.Gateway("Gateway refused refund", g.refundErr)
	}
	g.refunds = append(g.refunds, req)
	return &payment.Refund{ID: "re_" + req.IdempotencyKey}, nil
}

func (g *fakeGateway) Void(ctx context.Context, paymentReference, idempotencyKey string) error {
	g.voids = append(g.voids, idempotencyKey)
	return nil
}

type capturedEvent struct {
	eventType string
	event     events.BookingEvent
}

type recordingPublisher struct {
	published []capturedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, event events.BookingEvent) {
	p.published = append(p.published, capturedEvent{eventType: eventType, event: event})
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "ERROR", Format: logger.TEXT, Service: "test"})
}

func newTestMachine(b *model.Booking) (StateMachine, *fakeBookingRepo, *fakeGateway, *recordingPublisher) {
	repo := &fakeBookingRepo{booking: b}
	gw := &fakeGateway{}
	pub := &recordingPublisher{}
	machine := NewStateMachine(repo, gw, payment.NewCalculator(payment.DefaultCancellationPolicy()), pub, testLogger())
	return machine, repo, gw, pub
}

func pendingApprovalBooking() *model.Booking {
	deadline := testNow.Add(-90 * time.Minute)
	paid := testNow.Add(-2 * time.Hour)
	ref := "cs_abc"
	return &model.Booking{
		ID:                 "b-1",
		Status:             model.StatusPendingApproval,
		CheckIn:            testNow.Add(96 * time.Hour),
		CheckOut:           testNow.Add(120 * time.Hour),
		TotalAmount:        40000,
		ApprovalDeadlineAt: &deadline,
		PaidAt:             &paid,
		PaymentReference:   &ref,
	}
}

func TestApproveOverdueButNotSweptSucceeds(t *testing.T) {
	// 90 minutes past the deadline, but expired_at is still NULL: the sweep
	// has not claimed this booking, so approval must win.
	booking := pendingApprovalBooking()
	machine, repo, _, pub := newTestMachine(booking)

	got, err := machine.Approve(context.Background(), booking.ID, "staff-7", testNow)
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if got.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want %s", got.Status, model.StatusConfirmed)
	}
	if repo.booking.Status != model.StatusConfirmed {
		t.Fatalf("persisted status = %s, want %s", repo.booking.Status, model.StatusConfirmed)
	}
	if got.DecisionBy == nil || *got.DecisionBy != "staff-7" {
		t.Fatalf("decision_by = %v, want staff-7", got.DecisionBy)
	}
	if len(pub.published) != 1 || pub.published[0].eventType != events.TypeBookingConfirmed {
		t.Fatalf("published = %+v, want one booking.confirmed", pub.published)
	}
}

func TestApproveHardExpiredConflicts(t *testing.T) {
	booking := pendingApprovalBooking()
	expiredAt := testNow.Add(-10 * time.Minute)
	reason := model.ExpireReasonApprovalTimeout
	booking.Status = model.StatusExpired
	booking.ExpiredAt = &expiredAt
	booking.AutoExpireReason = &reason
	machine, repo, _, _ := newTestMachine(booking)

	_, err := machine.Approve(context.Background(), booking.ID, "staff-7", testNow)
	assertConflict(t, err, "expired due to approval timeout")
	if repo.booking.Status != model.StatusExpired {
		t.Fatalf("persisted status changed to %s", repo.booking.Status)
	}
}

func TestApproveAfterSweepCommittedExpiredAt(t *testing.T) {
	// Race where the sweep committed first but status reads stale: expired_at
	// alone is authoritative.
	booking := pendingApprovalBooking()
	expiredAt := testNow.Add(-time.Minute)
	booking.ExpiredAt = &expiredAt
	machine, repo, _, _ := newTestMachine(booking)

	_, err := machine.Approve(context.Background(), booking.ID, "staff-7", testNow)
	assertConflict(t, err, "expired due to approval timeout")
	for _, call := range repo.calls {
		if call == "SetApproved" {
			t.Fatal("SetApproved was called on a hard-expired booking")
		}
	}
}

func TestApproveReplayOnConfirmedIsSuccess(t *testing.T) {
	booking := pendingApprovalBooking()
	decidedAt := testNow.Add(-5 * time.Minute)
	staff := "staff-2"
	booking.Status = model.StatusConfirmed
	booking.DecisionAt = &decidedAt
	booking.DecisionBy = &staff
	machine, repo, _, pub := newTestMachine(booking)

	got, err := machine.Approve(context.Background(), booking.ID, "staff-7", testNow)
	if err != nil {
		t.Fatalf("replayed Approve returned error: %v", err)
	}
	if got.DecisionBy == nil || *got.DecisionBy != "staff-2" {
		t.Fatalf("replay overwrote decision_by: %v", got.DecisionBy)
	}
	for _, call := range repo.calls {
		if call == "SetApproved" {
			t.Fatal("replay wrote the booking again")
		}
	}
	if len(pub.published) != 0 {
		t.Fatalf("replay published %v, want nothing", pub.published)
	}
}

func TestApproveRejectsOtherStates(t *testing.T) {
	for _, status := range []string{
		model.StatusPendingPayment,
		model.StatusDeclined,
		model.StatusCancelled,
		model.StatusCheckedIn,
	} {
		booking := pendingApprovalBooking()
		booking.Status = status
		machine, _, _, _ := newTestMachine(booking)

		_, err := machine.Approve(context.Background(), booking.ID, "staff-7", testNow)
		assertConflict(t, err, "")
	}
}

func TestDeclineRequiresPendingApproval(t *testing.T) {
	booking := pendingApprovalBooking()
	machine, repo, _, pub := newTestMachine(booking)

	note := "no rooms left on the floor"
	got, err := machine.Decline(context.Background(), booking.ID, "staff-3", "NO_AVAILABILITY", &note, testNow)
	if err != nil {
		t.Fatalf("Decline returned error: %v", err)
	}
	if got.Status != model.StatusDeclined {
		t.Fatalf("status = %s, want %s", got.Status, model.StatusDeclined)
	}
	if repo.booking.DeclineReasonCode == nil || *repo.booking.DeclineReasonCode != "NO_AVAILABILITY" {
		t.Fatalf("decline_reason_code = %v", repo.booking.DeclineReasonCode)
	}
	if len(pub.published) != 1 || pub.published[0].eventType != events.TypeBookingDeclined {
		t.Fatalf("published = %+v", pub.published)
	}

	// Declining again conflicts; DECLINED is terminal.
	_, err = machine.Decline(context.Background(), booking.ID, "staff-3", "OTHER", nil, testNow)
	assertConflict(t, err, "")
}

func TestMarkSeenFirstWriterWins(t *testing.T) {
	booking := pendingApprovalBooking()
	machine, repo, _, _ := newTestMachine(booking)

	first, err := machine.MarkSeen(context.Background(), booking.ID, "staff-a", testNow)
	if err != nil {
		t.Fatalf("first MarkSeen: %v", err)
	}
	if !first.IsNewForStaff {
		t.Fatal("first MarkSeen reported is_new_for_staff=false")
	}

	later := testNow.Add(time.Minute)
	second, err := machine.MarkSeen(context.Background(), booking.ID, "staff-b", later)
	if err != nil {
		t.Fatalf("second MarkSeen: %v", err)
	}
	if second.IsNewForStaff {
		t.Fatal("second MarkSeen reported is_new_for_staff=true")
	}
	if second.StaffSeenBy == nil || *second.StaffSeenBy != "staff-a" {
		t.Fatalf("staff_seen_by = %v, want staff-a", second.StaffSeenBy)
	}
	if !second.StaffSeenAt.Equal(testNow) {
		t.Fatalf("staff_seen_at = %v, want %v", second.StaffSeenAt, testNow)
	}
	if repo.booking.StaffSeenBy == nil || *repo.booking.StaffSeenBy != "staff-a" {
		t.Fatalf("persisted staff_seen_by = %v", repo.booking.StaffSeenBy)
	}
}

func confirmedPaidBooking() *model.Booking {
	b := pendingApprovalBooking()
	b.Status = model.StatusConfirmed
	return b
}

func TestCancelIssuesRefundExactlyOnce(t *testing.T) {
	booking := confirmedPaidBooking()
	// 96h out: free cancellation, full refund.
	machine, repo, gw, pub := newTestMachine(booking)

	got, err := machine.Cancel(context.Background(), booking.ID, "guest", testNow)
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	if got.CancellationFee != 0 || got.RefundAmount != 40000 {
		t.Fatalf("fee/refund = %d/%d, want 0/40000", got.CancellationFee, got.RefundAmount)
	}
	if len(gw.refunds) != 1 {
		t.Fatalf("gateway refunds = %d, want 1", len(gw.refunds))
	}
	if gw.refunds[0].IdempotencyKey != "refund-b-1" {
		t.Fatalf("idempotency key = %s, want refund-b-1", gw.refunds[0].IdempotencyKey)
	}
	if repo.booking.RefundProcessedAt == nil {
		t.Fatal("refund_processed_at not persisted")
	}

	// Replay after completion: recorded outcome, no second gateway call.
	again, err := machine.Cancel(context.Background(), booking.ID, "guest", testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("replayed Cancel returned error: %v", err)
	}
	if len(gw.refunds) != 1 {
		t.Fatalf("replay reached the gateway: refunds = %d", len(gw.refunds))
	}
	if again.RefundAmount != 40000 {
		t.Fatalf("replay refund_amount = %d", again.RefundAmount)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.published))
	}
}

func TestCancelSkipsGatewayWhenRefundAlreadyProcessed(t *testing.T) {
	booking := confirmedPaidBooking()
	processed := testNow.Add(-time.Hour)
	ref := "re_prior"
	booking.RefundProcessedAt = &processed
	booking.RefundReference = &ref
	machine, _, gw, _ := newTestMachine(booking)

	got, err := machine.Cancel(context.Background(), booking.ID, "staff-1", testNow)
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if len(gw.refunds) != 0 {
		t.Fatal("gateway refunded twice")
	}
	if got.RefundReference == nil || *got.RefundReference != "re_prior" {
		t.Fatalf("refund_reference = %v, want re_prior", got.RefundReference)
	}
}

func TestCancelGatewayErrorRollsBack(t *testing.T) {
	booking := confirmedPaidBooking()
	machine, repo, gw, pub := newTestMachine(booking)
	gw.refundErr = errors.New("provider 500")

	_, err := machine.Cancel(context.Background(), booking.ID, "guest", testNow)
	if err == nil {
		t.Fatal("Cancel succeeded despite gateway failure")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeGateway {
		t.Fatalf("code = %s, want %s", appErr.Code, apperrors.CodeGateway)
	}
	if repo.booking.Status != model.StatusConfirmed {
		t.Fatalf("booking mutated to %s despite rollback", repo.booking.Status)
	}
	if repo.booking.CancelledAt != nil {
		t.Fatal("cancelled_at set despite rollback")
	}
	if len(pub.published) != 0 {
		t.Fatal("event published for a failed cancellation")
	}
}

func TestCancelZeroRefundSkipsGateway(t *testing.T) {
	booking := confirmedPaidBooking()
	// Refund computes to a positive amount only with fee < 100%; force zero by
	// using a zero-amount booking.
	booking.TotalAmount = 0
	machine, repo, gw, _ := newTestMachine(booking)

	got, err := machine.Cancel(context.Background(), booking.ID, "guest", testNow)
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if len(gw.refunds) != 0 {
		t.Fatal("gateway called for a zero refund")
	}
	if got.Status != model.StatusCancelled || repo.booking.Status != model.StatusCancelled {
		t.Fatal("booking not cancelled")
	}
}

func TestCancelVoidsUnpaidAuthorization(t *testing.T) {
	booking := confirmedPaidBooking()
	booking.PaidAt = nil
	machine, _, gw, _ := newTestMachine(booking)

	_, err := machine.Cancel(context.Background(), booking.ID, "staff-1", testNow)
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if len(gw.refunds) != 0 {
		t.Fatal("refund issued for an unpaid booking")
	}
	if len(gw.voids) != 1 || gw.voids[0] != "void-b-1" {
		t.Fatalf("voids = %v, want [void-b-1]", gw.voids)
	}
}

func TestCancelRejectsNonConfirmed(t *testing.T) {
	booking := pendingApprovalBooking()
	machine, _, gw, _ := newTestMachine(booking)

	_, err := machine.Cancel(context.Background(), booking.ID, "guest", testNow)
	assertConflict(t, err, "")
	if len(gw.refunds)+len(gw.voids) != 0 {
		t.Fatal("gateway touched for a non-cancellable booking")
	}
}

func TestCheckInBumpsAssignmentVersion(t *testing.T) {
	booking := confirmedPaidBooking()
	machine, repo, _, pub := newTestMachine(booking)

	got, err := machine.CheckIn(context.Background(), booking.ID, "staff-5", "204", testNow)
	if err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	if got.Status != model.StatusCheckedIn {
		t.Fatalf("status = %s", got.Status)
	}
	if got.AssignedRoom == nil || *got.AssignedRoom != "204" {
		t.Fatalf("assigned_room = %v", got.AssignedRoom)
	}
	if repo.booking.AssignmentVersion != 1 {
		t.Fatalf("assignment_version = %d, want 1", repo.booking.AssignmentVersion)
	}
	if len(pub.published) != 1 || pub.published[0].eventType != events.TypeBookingCheckedIn {
		t.Fatalf("published = %+v", pub.published)
	}

	_, err = machine.CheckIn(context.Background(), booking.ID, "staff-5", "204", testNow)
	assertConflict(t, err, "")
}

func TestCheckOutResolvesOpenIncidents(t *testing.T) {
	booking := confirmedPaidBooking()
	booking.Status = model.StatusCheckedIn
	room := "204"
	booking.AssignedRoom = &room
	machine, repo, _, pub := newTestMachine(booking)

	got, err := machine.CheckOut(context.Background(), booking.ID, "staff-5", testNow)
	if err != nil {
		t.Fatalf("CheckOut returned error: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if repo.resolved != 1 {
		t.Fatalf("open incidents resolved %d times, want 1", repo.resolved)
	}
	if len(pub.published) != 1 || pub.published[0].eventType != events.TypeBookingCheckedOut {
		t.Fatalf("published = %+v", pub.published)
	}
}

func TestGetByIDIncludesRiskLevel(t *testing.T) {
	cases := []struct {
		name    string
		overdue time.Duration
		want    string
	}{
		{"before deadline", -time.Hour, model.RiskNormal},
		{"just past", 10 * time.Minute, model.RiskNormal},
		{"half hour past", 30 * time.Minute, model.RiskWarning},
		{"hour past", 60 * time.Minute, model.RiskCritical},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			booking := pendingApprovalBooking()
			deadline := testNow.Add(-tc.overdue)
			booking.ApprovalDeadlineAt = &deadline
			machine, _, _, _ := newTestMachine(booking)

			view, err := machine.GetByID(context.Background(), booking.ID, testNow)
			if err != nil {
				t.Fatalf("GetByID returned error: %v", err)
			}
			if view.RiskLevel != tc.want {
				t.Fatalf("risk_level = %s, want %s", view.RiskLevel, tc.want)
			}
		})
	}
}

func TestRiskLevelNeverGatesApprove(t *testing.T) {
	booking := pendingApprovalBooking()
	deadline := testNow.Add(-3 * time.Hour) // deep CRITICAL
	booking.ApprovalDeadlineAt = &deadline
	machine, _, _, _ := newTestMachine(booking)

	got, err := machine.Approve(context.Background(), booking.ID, "staff-7", testNow)
	if err != nil {
		t.Fatalf("Approve of a CRITICAL-risk booking failed: %v", err)
	}
	if got.Status != model.StatusConfirmed {
		t.Fatalf("status = %s", got.Status)
	}
}

func assertConflict(t *testing.T, err error, contains string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected conflict error, got nil")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeConflict {
		t.Fatalf("code = %s, want %s (%v)", appErr.Code, apperrors.CodeConflict, err)
	}
	if contains != "" && !strings.Contains(appErr.Message, contains) {
		t.Fatalf("message %q does not contain %q", appErr.Message, contains)
	}
}
