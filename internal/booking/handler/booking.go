package handler

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"innkeep/internal/booking/service"
	"innkeep/internal/booking/validator"
	apperrors "innkeep/pkg/errors"
	"innkeep/pkg/httpx"
	"innkeep/pkg/logger"
)

type BookingHandler struct {
	machine   service.StateMachine
	validator *validator.RequestValidator
	log       *logger.Logger
}

func NewBookingHandler(machine service.StateMachine, v *validator.RequestValidator, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		machine:   machine,
		validator: v,
		log:       log,
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	view, err := h.machine.GetByID(r.Context(), ps.ByName("id"), time.Now().UTC())
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}
	h.writeSuccess(w, "GetByID", view)
}

func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req validator.ApproveRequest
	if !h.decode(w, r, "Approve", &req) {
		return
	}

	booking, err := h.machine.Approve(r.Context(), ps.ByName("id"), req.StaffID, time.Now().UTC())
	if err != nil {
		h.writeError(w, "Approve", err)
		return
	}

	h.writeSuccess(w, "Approve", map[string]any{
		"status":      "approved",
		"decision_at": booking.DecisionAt,
	})
}

func (h *BookingHandler) Decline(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req validator.DeclineRequest
	if !h.decode(w, r, "Decline", &req) {
		return
	}

	booking, err := h.machine.Decline(r.Context(), ps.ByName("id"), req.StaffID, req.ReasonCode, req.Note, time.Now().UTC())
	if err != nil {
		h.writeError(w, "Decline", err)
		return
	}

	h.writeSuccess(w, "Decline", map[string]any{
		"status":      "declined",
		"reason_code": booking.DeclineReasonCode,
		"decision_at": booking.DecisionAt,
	})
}

func (h *BookingHandler) MarkSeen(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req validator.MarkSeenRequest
	if !h.decode(w, r, "MarkSeen", &req) {
		return
	}

	result, err := h.machine.MarkSeen(r.Context(), ps.ByName("id"), req.StaffID, time.Now().UTC())
	if err != nil {
		h.writeError(w, "MarkSeen", err)
		return
	}

	h.writeSuccess(w, "MarkSeen", result)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req validator.CancelRequest
	if !h.decode(w, r, "Cancel", &req) {
		return
	}

	booking, err := h.machine.Cancel(r.Context(), ps.ByName("id"), req.CancelledBy, time.Now().UTC())
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	h.writeSuccess(w, "Cancel", map[string]any{
		"status":           "cancelled",
		"cancelled_at":     booking.CancelledAt,
		"cancellation_fee": booking.CancellationFee,
		"refund_amount":    booking.RefundAmount,
		"refund_reference": booking.RefundReference,
	})
}

func (h *BookingHandler) CheckIn(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req validator.CheckInRequest
	if !h.decode(w, r, "CheckIn", &req) {
		return
	}

	booking, err := h.machine.CheckIn(r.Context(), ps.ByName("id"), req.StaffID, req.Room, time.Now().UTC())
	if err != nil {
		h.writeError(w, "CheckIn", err)
		return
	}

	h.writeSuccess(w, "CheckIn", map[string]any{
		"status":        booking.Status,
		"assigned_room": booking.AssignedRoom,
		"checked_in_at": booking.CheckedInAt,
	})
}

func (h *BookingHandler) CheckOut(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req validator.CheckOutRequest
	if !h.decode(w, r, "CheckOut", &req) {
		return
	}

	booking, err := h.machine.CheckOut(r.Context(), ps.ByName("id"), req.StaffID, time.Now().UTC())
	if err != nil {
		h.writeError(w, "CheckOut", err)
		return
	}

	h.writeSuccess(w, "CheckOut", map[string]any{
		"status":         booking.Status,
		"checked_out_at": booking.CheckedOutAt,
	})
}

func (h *BookingHandler) decode(w http.ResponseWriter, r *http.Request, op string, req any) bool {
	if err := httpx.DecodeStrict(r, req); err != nil {
		h.writeError(w, op, err)
		return false
	}
	if err := h.validator.Validate(req); err != nil {
		h.writeError(w, op, apperrors.Validation("Invalid request", map[string]any{"error": err.Error()}))
		return false
	}
	return true
}

func (h *BookingHandler) writeError(w http.ResponseWriter, op string, err error) {
	if writeErr := httpx.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", op, "error", writeErr)
	}
}

func (h *BookingHandler) writeSuccess(w http.ResponseWriter, op string, data any) {
	if err := httpx.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", op, "error", err)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/bookings/:id", h.GetByID)
	router.POST("/api/v1/bookings/:id/approve", h.Approve)
	router.POST("/api/v1/bookings/:id/decline", h.Decline)
	router.POST("/api/v1/bookings/:id/mark-seen", h.MarkSeen)
	router.POST("/api/v1/bookings/:id/cancel", h.Cancel)
	router.POST("/api/v1/bookings/:id/check-in", h.CheckIn)
	router.POST("/api/v1/bookings/:id/check-out", h.CheckOut)
}
