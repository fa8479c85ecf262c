package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthStatus reports the store driver and the commit mode currently in use.
type HealthStatus struct {
	Driver string
	Ping   func(ctx context.Context) error
	Mode   func() string
}

func Health(h HealthStatus, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok", "store": h.Driver}
		if h.Mode != nil {
			body["commitMode"] = h.Mode()
		}

		if h.Ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := h.Ping(ctx); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				body["status"] = "unavailable"
				c.JSON(http.StatusServiceUnavailable, body)
				return
			}
		}
		c.JSON(http.StatusOK, body)
	}
}
