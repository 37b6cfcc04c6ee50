package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and store reachability
type HealthHandler struct {
	backend string
	stores  map[string]Pinger
	timeout time.Duration
	logger  *slog.Logger
}

func NewHealthHandler(logger *slog.Logger, backend string, stores map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		backend: backend,
		stores:  stores,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.stores))
	for name, store := range h.stores {
		if err := store.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", "store", name, "error", err)
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    overall,
		"backend":   h.backend,
		"stores":    checks,
		"timestamp": time.Now().UTC(),
	})
}
