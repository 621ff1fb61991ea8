package middleware

import (
	"net/http"
	"strings"
	"time"

	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/apperror"
	"offline-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Context keys set by the middleware chain.
const (
	CtxWalletUID = "wallet_uid"
	CtxTokenID   = "token_id"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestID reuses the caller's X-Request-ID when it looks sane, otherwise
// assigns a new one, and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(response.CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// JWTAuth validates the bearer token and requires its subject to be the
// wallet this API serves.
func JWTAuth(tokenSvc ports.TokenService, walletUID string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || !strings.EqualFold(authHeader[:7], "Bearer ") {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(authHeader[7:])
		if err != nil {
			log.Debug().Err(err).Msg("rejected bearer token")
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}
		if claims.WalletUID != walletUID {
			log.Warn().Str("subject", claims.WalletUID).Msg("token issued for another wallet")
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxWalletUID, claims.WalletUID)
		c.Set(CtxTokenID, claims.TokenID)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", latency).
			Str("request_id", c.GetString(response.CtxRequestID)).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": apperror.CodeInternal,
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
