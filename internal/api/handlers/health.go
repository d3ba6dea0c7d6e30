package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/supportkb/internal/api"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

// NewHealthHandler accepts a nil pinger for deployments without a database.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			api.JSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: "database unavailable"})
			return
		}
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}
