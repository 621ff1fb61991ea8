package handler

import (
	"context"
	"net/http"
	"time"

	"offline-wallet/internal/core/ports"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheck reports the state of the remote mirror and Redis. The wallet
// itself works offline, so a degraded answer only means sync and guards
// are impaired.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		deps := make(map[string]depStatus, len(checkers))
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(ctx); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
