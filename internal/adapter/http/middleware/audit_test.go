package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditRouter(buf *bytes.Buffer, status int) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), AuditLog(zerolog.New(buf)))
	handler := func(c *gin.Context) {
		c.Set(CtxWalletUID, "U123")
		c.Status(status)
	}
	r.POST("/api/v1/vouchers/:id/cancel", handler)
	r.POST("/api/v1/vouchers", handler)
	r.GET("/api/v1/wallet/balance", handler)
	return r
}

func TestAuditLog_CancelSuccess(t *testing.T) {
	var buf bytes.Buffer
	r := auditRouter(&buf, http.StatusOK)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/vouchers/vch_1/cancel", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, string(AuditActionCancel), line["action"])
	assert.Equal(t, "U123", line["wallet_uid"])
	assert.Equal(t, "vch_1", line["voucher_id"])
	assert.Equal(t, w.Header().Get(HeaderRequestID), line["request_id"])
}

func TestAuditLog_Skips(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"read", http.MethodGet, "/api/v1/wallet/balance", http.StatusOK},
		{"failed mutation", http.MethodPost, "/api/v1/vouchers", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := auditRouter(&buf, tt.status)
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))
			assert.Zero(t, buf.Len())
		})
	}
}

func TestMapRouteToAction(t *testing.T) {
	assert.Equal(t, AuditActionIssue, mapRouteToAction("/api/v1/vouchers"))
	assert.Equal(t, AuditActionRedeem, mapRouteToAction("/api/v1/vouchers/redeem"))
	assert.Equal(t, AuditActionSync, mapRouteToAction("/api/v1/sync"))
	assert.Equal(t, AuditActionPinReset, mapRouteToAction("/api/v1/pin/reset"))
	assert.Empty(t, mapRouteToAction("/health"))
}
