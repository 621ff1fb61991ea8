package handler

import (
	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// SyncHandler runs reconciliation on demand.
type SyncHandler struct {
	reconciler ports.SyncReconciler
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(reconciler ports.SyncReconciler) *SyncHandler {
	return &SyncHandler{reconciler: reconciler}
}

// Sync handles POST /api/v1/sync. A partial run answers with the error
// and the report as details; the failed items are retried next run.
func (h *SyncHandler) Sync(c *gin.Context) {
	report, err := h.reconciler.SyncNow(c.Request.Context())
	if err != nil {
		if report != nil {
			response.ErrorWithDetails(c, err, report)
			return
		}
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}
