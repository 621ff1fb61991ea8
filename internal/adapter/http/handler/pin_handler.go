package handler

import (
	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// PinHandler exposes the PIN lockout state.
type PinHandler struct {
	pin ports.PinVerifier
}

// NewPinHandler creates a new PinHandler.
func NewPinHandler(pin ports.PinVerifier) *PinHandler {
	return &PinHandler{pin: pin}
}

// Attempts handles GET /api/v1/pin/attempts.
func (h *PinHandler) Attempts(c *gin.Context) {
	n, err := h.pin.Attempts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"failed_attempts": n})
}

// Reset handles POST /api/v1/pin/reset. The bearer token is the owner's
// proof, so no PIN is asked for.
func (h *PinHandler) Reset(c *gin.Context) {
	if err := h.pin.ResetLockout(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
