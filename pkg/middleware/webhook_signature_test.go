package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"innkeep/pkg/logger"
)

const testSecret = "whsec_test"

func signBody(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func signatureTestHandler(t *testing.T, wantBody string) (http.Handler, *bool) {
	t.Helper()
	reached := false
	log := logger.New(logger.Config{Level: "ERROR", Format: logger.TEXT, Service: "test"})

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("handler failed to read body: %v", err)
		}
		if string(body) != wantBody {
			t.Fatalf("handler saw body %q, want %q", body, wantBody)
		}
		w.WriteHeader(http.StatusOK)
	})
	return WebhookSignatureVerification(testSecret, log)(inner), &reached
}

func TestValidSignaturePassesAndBodyIsRestored(t *testing.T) {
	body := `{"event_id":"evt_1"}`
	handler, reached := signatureTestHandler(t, body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", strings.NewReader(body))
	req.Header.Set("X-Provider-Signature", signBody(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !*reached {
		t.Fatal("handler never ran")
	}
}

func TestSha256PrefixedSignatureAccepted(t *testing.T) {
	body := `{"event_id":"evt_2"}`
	handler, reached := signatureTestHandler(t, body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", strings.NewReader(body))
	req.Header.Set("X-Provider-Signature", "sha256="+signBody(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !*reached {
		t.Fatalf("status = %d, reached = %v", rec.Code, *reached)
	}
}

func TestTamperedBodyRejected(t *testing.T) {
	handler, reached := signatureTestHandler(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", strings.NewReader(`{"amount":99999}`))
	req.Header.Set("X-Provider-Signature", signBody(`{"amount":1}`))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if *reached {
		t.Fatal("handler ran despite bad signature")
	}
}

func TestMissingSignatureRejected(t *testing.T) {
	handler, reached := signatureTestHandler(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || *reached {
		t.Fatalf("status = %d, reached = %v", rec.Code, *reached)
	}
}
