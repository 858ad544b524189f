package service

import (
	"context"
	"testing"
	"time"

	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/model"
)

func TestCreateDraftSetsBothDeadlines(t *testing.T) {
	repo := &fakeBookingRepo{booking: &model.Booking{}}
	params := DraftParams{
		CheckIn:        testNow.Add(96 * time.Hour),
		CheckOut:       testNow.Add(120 * time.Hour),
		TotalAmount:    40000,
		PaymentWindow:  30 * time.Minute,
		ApprovalWindow: 24 * time.Hour,
	}

	draft, err := CreateDraft(context.Background(), repo, params, testNow)
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if draft.Status != model.StatusPendingPayment {
		t.Fatalf("status = %s, want %s", draft.Status, model.StatusPendingPayment)
	}
	if draft.ID == "" {
		t.Fatal("draft has no id")
	}
	if draft.ExpiresAt == nil || !draft.ExpiresAt.Equal(testNow.Add(30*time.Minute)) {
		t.Fatalf("expires_at = %v", draft.ExpiresAt)
	}
	if draft.ApprovalDeadlineAt == nil || !draft.ApprovalDeadlineAt.Equal(testNow.Add(24*time.Hour)) {
		t.Fatalf("approval_deadline_at = %v", draft.ApprovalDeadlineAt)
	}
	if repo.booking != draft {
		t.Fatal("draft not persisted")
	}
}

func TestCreateDraftRejectsInvalidInput(t *testing.T) {
	repo := &fakeBookingRepo{booking: &model.Booking{}}

	cases := []struct {
		name   string
		params DraftParams
	}{
		{"checkout before checkin", DraftParams{
			CheckIn:     testNow.Add(48 * time.Hour),
			CheckOut:    testNow.Add(24 * time.Hour),
			TotalAmount: 100,
		}},
		{"zero-length stay", DraftParams{
			CheckIn:     testNow.Add(48 * time.Hour),
			CheckOut:    testNow.Add(48 * time.Hour),
			TotalAmount: 100,
		}},
		{"non-positive amount", DraftParams{
			CheckIn:     testNow.Add(24 * time.Hour),
			CheckOut:    testNow.Add(48 * time.Hour),
			TotalAmount: 0,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CreateDraft(context.Background(), repo, tc.params, testNow)
			if err == nil {
				t.Fatal("CreateDraft accepted invalid input")
			}
			if apperrors.AsAppError(err).Code != apperrors.CodeInvalidInput {
				t.Fatalf("code = %s", apperrors.AsAppError(err).Code)
			}
		})
	}
}
