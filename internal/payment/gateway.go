package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/logger"
)

type SessionRequest struct {
	BookingID string `json:"booking_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type Session struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
}

type RefundRequest struct {
	PaymentReference string `json:"payment_reference"`
	Amount           int64  `json:"amount"`
	IdempotencyKey   string `json:"-"`
}

type Refund struct {
	ID string `json:"id"`
}

// Gateway is the payment-provider surface the booking lifecycle needs. Every
// call carries an idempotency key so a network-level retry cannot double-apply
// a charge or refund at the provider.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
	Void(ctx context.Context, paymentReference, idempotencyKey string) error
}

type restGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logger.Logger
}

func NewRESTGateway(baseURL, apiKey string, timeout time.Duration, log *logger.Logger) Gateway {
	return &restGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (g *restGateway) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	var session Session
	err := g.post(ctx, "/v1/checkout/sessions", "session-"+req.BookingID, req, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (g *restGateway) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	var refund Refund
	err := g.post(ctx, "/v1/refunds", req.IdempotencyKey, req, &refund)
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (g *restGateway) Void(ctx context.Context, paymentReference, idempotencyKey string) error {
	body := map[string]string{"payment_reference": paymentReference}
	return g.post(ctx, "/v1/authorizations/void", idempotencyKey, body, nil)
}

func (g *restGateway) post(ctx context.Context, path, idempotencyKey string, body any, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Internal("Failed to encode gateway request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Internal("Failed to build gateway request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return apperrors.Gateway("Payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Gateway("Failed to read gateway response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.log.Error("Payment gateway call failed",
			"path", path,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return apperrors.Gateway(
			fmt.Sprintf("Payment gateway returned status %d", resp.StatusCode), nil,
		)
	}

	if target != nil {
		if err := json.Unmarshal(respBody, target); err != nil {
			return apperrors.Gateway("Failed to decode gateway response", err)
		}
	}

	return nil
}
