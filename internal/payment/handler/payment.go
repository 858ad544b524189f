package handler

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"innkeep/internal/payment"
	"innkeep/pkg/httpx"
	"innkeep/pkg/logger"
)

type PaymentHandler struct {
	sessions payment.SessionService
	log      *logger.Logger
}

func NewPaymentHandler(sessions payment.SessionService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		sessions: sessions,
		log:      log,
	}
}

// CreateSession opens (or replays) the provider checkout session for a draft.
func (h *PaymentHandler) CreateSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, err := h.sessions.CreateSession(r.Context(), ps.ByName("id"), time.Now().UTC())
	if err != nil {
		if writeErr := httpx.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CreateSession", "error", writeErr)
		}
		return
	}

	if err := httpx.WriteCreated(w, session); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateSession", "error", err)
	}
}

func (h *PaymentHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings/:id/payment-session", h.CreateSession)
}
