package middleware

import (
	"net/http"

	"offline-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AuditAction names a wallet mutation made through the API.
type AuditAction string

const (
	AuditActionIssue    AuditAction = "VOUCHER_ISSUE"
	AuditActionRedeem   AuditAction = "VOUCHER_REDEEM"
	AuditActionCancel   AuditAction = "VOUCHER_CANCEL"
	AuditActionSync     AuditAction = "SYNC"
	AuditActionPinReset AuditAction = "PIN_RESET"
)

// AuditLog writes one audit line per successful mutating request. Reads
// and failed requests are not audited.
func AuditLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		if c.Request.Method != http.MethodPost {
			return
		}

		action := mapRouteToAction(c.FullPath())
		if action == "" {
			return
		}

		event := log.Info().
			Str("action", string(action)).
			Str("wallet_uid", c.GetString(CtxWalletUID)).
			Str("request_id", c.GetString(response.CtxRequestID)).
			Str("client_ip", c.ClientIP())
		if id := c.Param("id"); id != "" {
			event = event.Str("voucher_id", id)
		}
		event.Msg("audit")
	}
}

func mapRouteToAction(route string) AuditAction {
	switch route {
	case "/api/v1/vouchers":
		return AuditActionIssue
	case "/api/v1/vouchers/redeem":
		return AuditActionRedeem
	case "/api/v1/vouchers/:id/cancel":
		return AuditActionCancel
	case "/api/v1/sync":
		return AuditActionSync
	case "/api/v1/pin/reset":
		return AuditActionPinReset
	}
	return ""
}
