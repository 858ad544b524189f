package handler

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"

	"innkeep/internal/webhook/service"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/httpx"
	"innkeep/pkg/logger"
)

type WebhookHandler struct {
	service  service.WebhookService
	validate *validator.Validate
	log      *logger.Logger
}

func NewWebhookHandler(svc service.WebhookService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		service:  svc,
		validate: validator.New(),
		log:      log,
	}
}

// Receive handles provider payment notifications. Signature verification
// happens in middleware before this handler runs. Once the event is durably
// recorded the response is 200 even when nothing changed, so the provider's
// retry policy never hammers the endpoint.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var event service.PaymentEvent
	if err := httpx.DecodeStrict(r, &event); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.validate.Struct(event); err != nil {
		h.writeError(w, apperrors.InvalidInput("Invalid webhook payload: "+err.Error()))
		return
	}

	if event.EventType != service.EventCheckoutCompleted {
		// Unknown event types are acknowledged without processing.
		h.writeSuccess(w, map[string]any{"received": true, "processed": false})
		return
	}

	if err := h.service.ProcessPaymentConfirmation(r.Context(), event, time.Now().UTC()); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeSuccess(w, map[string]any{"received": true})
}

func (h *WebhookHandler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httpx.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "Receive", "error", writeErr)
	}
}

func (h *WebhookHandler) writeSuccess(w http.ResponseWriter, data any) {
	if err := httpx.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", "Receive", "error", err)
	}
}

func (h *WebhookHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/webhooks/payment", h.Receive)
}
