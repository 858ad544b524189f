package handler

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"

	"innkeep/internal/token/service"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/httpx"
	"innkeep/pkg/logger"
)

type IssueRequest struct {
	Purpose string   `json:"purpose" validate:"required,oneof=STATUS CHAT CHECKIN"`
	Scopes  []string `json:"scopes" validate:"required,min=1,dive,oneof=status:read chat checkin invoice:read"`
}

type TokenHandler struct {
	service  service.TokenService
	validate *validator.Validate
	log      *logger.Logger
}

func NewTokenHandler(svc service.TokenService, log *logger.Logger) *TokenHandler {
	return &TokenHandler{
		service:  svc,
		validate: validator.New(),
		log:      log,
	}
}

// Issue mints a guest token for a booking. The raw secret appears in this
// response only; it is never retrievable again.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req IssueRequest
	if err := httpx.DecodeStrict(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, apperrors.Validation("Invalid request", map[string]any{"error": err.Error()}))
		return
	}

	token, rawSecret, err := h.service.Issue(r.Context(), ps.ByName("id"), req.Purpose, req.Scopes, time.Now().UTC())
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := httpx.WriteCreated(w, map[string]any{
		"token_id":   token.ID,
		"secret":     rawSecret,
		"purpose":    token.Purpose,
		"scopes":     token.Scopes,
		"expires_at": token.ExpiresAt,
	}); err != nil {
		h.log.Error("failed to write created response", "handler", "Issue", "error", err)
	}
}

func (h *TokenHandler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httpx.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "Issue", "error", writeErr)
	}
}

func (h *TokenHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings/:id/tokens", h.Issue)
}
