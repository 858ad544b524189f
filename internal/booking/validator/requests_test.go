package validator

import (
	"strings"
	"testing"

	"innkeep/pkg/logger"
)

func newTestValidator() *RequestValidator {
	return NewRequestValidator(logger.New(logger.Config{Level: "ERROR", Format: logger.TEXT, Service: "test"}))
}

func TestDeclineRequestValidation(t *testing.T) {
	v := newTestValidator()
	longNote := strings.Repeat("x", 501)

	cases := []struct {
		name    string
		req     DeclineRequest
		wantErr bool
	}{
		{"valid", DeclineRequest{StaffID: "staff-1", ReasonCode: "NO_AVAILABILITY"}, false},
		{"valid with note", DeclineRequest{StaffID: "staff-1", ReasonCode: "OTHER", Note: ptr("walk-in took the room")}, false},
		{"missing staff id", DeclineRequest{ReasonCode: "OTHER"}, true},
		{"unknown reason code", DeclineRequest{StaffID: "staff-1", ReasonCode: "BORED"}, true},
		{"note too long", DeclineRequest{StaffID: "staff-1", ReasonCode: "OTHER", Note: &longNote}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.req)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestCancelRequestValidation(t *testing.T) {
	v := newTestValidator()

	if err := v.Validate(CancelRequest{CancelledBy: "guest-9", BookerType: "GUEST"}); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	if err := v.Validate(CancelRequest{CancelledBy: "guest-9", BookerType: "ROBOT"}); err == nil {
		t.Fatal("unknown booker type accepted")
	}
}

func TestTranslatedMessagesNameTheField(t *testing.T) {
	v := newTestValidator()

	err := v.Validate(ApproveRequest{})
	if err == nil {
		t.Fatal("empty request accepted")
	}
	if !strings.Contains(err.Error(), "StaffID is required") {
		t.Fatalf("error %q does not name the missing field", err.Error())
	}
}

func ptr(s string) *string { return &s }
