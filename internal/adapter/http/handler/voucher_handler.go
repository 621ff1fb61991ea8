package handler

import (
	"offline-wallet/internal/adapter/http/dto"
	"offline-wallet/internal/core/domain"
	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/apperror"
	"offline-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// VoucherHandler issues, redeems and cancels vouchers.
type VoucherHandler struct {
	engine ports.TransactionEngine
}

// NewVoucherHandler creates a new VoucherHandler.
func NewVoucherHandler(engine ports.TransactionEngine) *VoucherHandler {
	return &VoucherHandler{engine: engine}
}

// Issue handles POST /api/v1/vouchers.
func (h *VoucherHandler) Issue(c *gin.Context) {
	var req dto.CreateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	issued, err := h.engine.CreateVoucher(c.Request.Context(), ports.CreateVoucherRequest{
		Amount:  amount,
		Pin:     req.Pin,
		Details: req.Details,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.VoucherResponse{
		VoucherID: issued.VoucherID,
		Wire:      issued.Wire,
		Amount:    issued.Amount,
		Timestamp: issued.Timestamp,
	})
}

// Redeem handles POST /api/v1/vouchers/redeem.
func (h *VoucherHandler) Redeem(c *gin.Context) {
	var req dto.RedeemVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	redemption, err := h.engine.RedeemVoucher(c.Request.Context(), ports.RedeemRequest{
		Wire:      req.Wire,
		SenderUID: req.SenderUID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.RedemptionResponse{
		VoucherID:    redemption.VoucherID,
		Amount:       redemption.Amount,
		Counterparty: redemption.Counterparty,
		Details:      redemption.Details,
		Message:      redemption.Message,
	})
}

// Cancel handles POST /api/v1/vouchers/:id/cancel.
func (h *VoucherHandler) Cancel(c *gin.Context) {
	var req dto.PinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	voucherID := c.Param("id")
	if err := h.engine.CancelVoucher(c.Request.Context(), voucherID, req.Pin); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"voucher_id": voucherID, "status": domain.VoucherStatusCancelled})
}
