package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/julienschmidt/httprouter"

	"innkeep/pkg/httpx"
	"innkeep/pkg/logger"
)

const pingTimeout = 2 * time.Second

type HealthHandler struct {
	db  *sqlx.DB
	log *logger.Logger
}

func NewHealthHandler(db *sqlx.DB, log *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, log: log}
}

// Health reports process liveness only.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if err := httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		h.log.Error("failed to write health response", "error", err)
	}
}

// Ready additionally pings the database.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.log.Error("Readiness check failed", "error", err)
		if writeErr := httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}); writeErr != nil {
			h.log.Error("failed to write readiness response", "error", writeErr)
		}
		return
	}

	if err := httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"}); err != nil {
		h.log.Error("failed to write readiness response", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
