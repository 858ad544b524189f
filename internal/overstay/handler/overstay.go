package handler

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"

	"innkeep/internal/overstay/service"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/httpx"
	"innkeep/pkg/logger"
)

type AcknowledgeRequest struct {
	StaffID string `json:"staff_id" validate:"required,min=1,max=64"`
}

type ExtendRequest struct {
	StaffID     string    `json:"staff_id" validate:"required,min=1,max=64"`
	NewCheckOut time.Time `json:"new_check_out" validate:"required"`
}

type OverstayHandler struct {
	service  service.OverstayService
	validate *validator.Validate
	log      *logger.Logger
}

func NewOverstayHandler(svc service.OverstayService, log *logger.Logger) *OverstayHandler {
	return &OverstayHandler{
		service:  svc,
		validate: validator.New(),
		log:      log,
	}
}

func (h *OverstayHandler) Status(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	status, err := h.service.Status(r.Context(), ps.ByName("id"), time.Now().UTC())
	if err != nil {
		h.writeError(w, "Status", err)
		return
	}
	h.writeSuccess(w, "Status", status)
}

func (h *OverstayHandler) Acknowledge(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req AcknowledgeRequest
	if !h.decode(w, r, "Acknowledge", &req) {
		return
	}

	incident, err := h.service.Acknowledge(r.Context(), ps.ByName("id"), req.StaffID, time.Now().UTC())
	if err != nil {
		h.writeError(w, "Acknowledge", err)
		return
	}
	h.writeSuccess(w, "Acknowledge", incident)
}

func (h *OverstayHandler) Extend(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req ExtendRequest
	if !h.decode(w, r, "Extend", &req) {
		return
	}

	result, err := h.service.Extend(r.Context(), ps.ByName("id"), req.NewCheckOut, time.Now().UTC())
	if err != nil {
		h.writeError(w, "Extend", err)
		return
	}

	if !result.Extended {
		// Room conflict: refuse with alternatives rather than silently moving
		// another guest's reservation.
		h.writeError(w, "Extend", apperrors.Conflict("Assigned room is not available for the extended window").WithDetails(map[string]any{
			"conflicts":       result.Conflicts,
			"suggested_rooms": result.SuggestedRooms,
		}))
		return
	}
	h.writeSuccess(w, "Extend", result)
}

func (h *OverstayHandler) decode(w http.ResponseWriter, r *http.Request, op string, req any) bool {
	if err := httpx.DecodeStrict(r, req); err != nil {
		h.writeError(w, op, err)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, op, apperrors.Validation("Invalid request", map[string]any{"error": err.Error()}))
		return false
	}
	return true
}

func (h *OverstayHandler) writeError(w http.ResponseWriter, op string, err error) {
	if writeErr := httpx.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", op, "error", writeErr)
	}
}

func (h *OverstayHandler) writeSuccess(w http.ResponseWriter, op string, data any) {
	if err := httpx.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", op, "error", err)
	}
}

func (h *OverstayHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/bookings/:id/overstay/status", h.Status)
	router.POST("/api/v1/bookings/:id/overstay/acknowledge", h.Acknowledge)
	router.POST("/api/v1/bookings/:id/overstay/extend", h.Extend)
}
