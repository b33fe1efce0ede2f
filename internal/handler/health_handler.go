package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/storecast-backend/internal/response"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type StoreCounter interface {
	Count(ctx context.Context) (int, error)
}

// HealthHandler reports database reachability and how many stores are configured.
type HealthHandler struct {
	DB     Pinger
	Stores StoreCounter
	Logger *zap.Logger
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.DB.PingContext(ctx); err != nil {
		h.Logger.Error("health check: database unreachable", zap.Error(err))
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "error",
			"database": "unreachable",
		})
		return
	}

	count, err := h.Stores.Count(ctx)
	if err != nil {
		h.Logger.Error("health check: store count failed", zap.Error(err))
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "error",
			"database": "connected",
		})
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"database":    "connected",
		"store_count": count,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}
