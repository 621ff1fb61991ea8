package dto

import (
	"time"

	"offline-wallet/internal/core/domain"
)

// CreateVoucherRequest is the request body for voucher issuance.
type CreateVoucherRequest struct {
	Amount  string `json:"amount" binding:"required,money"`
	Pin     string `json:"pin" binding:"required,pin"`
	Details string `json:"details" binding:"max=140"`
}

// RedeemVoucherRequest is the request body for voucher redemption.
type RedeemVoucherRequest struct {
	Wire      string `json:"wire" binding:"required,max=4096"`
	SenderUID string `json:"sender_uid" binding:"required,max=64,safe_id"`
}

// PinRequest is the request body of PIN-gated operations without other input.
type PinRequest struct {
	Pin string `json:"pin" binding:"required,pin"`
}

// VoucherResponse is the response body for an issued voucher.
type VoucherResponse struct {
	VoucherID string        `json:"voucher_id"`
	Wire      string        `json:"wire"`
	Amount    domain.Amount `json:"amount"`
	Timestamp time.Time     `json:"timestamp"`
}

// RedemptionResponse is the response body for a redeemed voucher.
type RedemptionResponse struct {
	VoucherID    string        `json:"voucher_id"`
	Amount       domain.Amount `json:"amount"`
	Counterparty string        `json:"counterparty"`
	Details      string        `json:"details,omitempty"`
	Message      string        `json:"message"`
}

// BalanceResponse is the balance body, also sent as the SSE "balance" event.
type BalanceResponse struct {
	Balance domain.Amount `json:"balance"`
	Entries int           `json:"entries"`
}

// EntryListResponse wraps the ledger history, newest first.
type EntryListResponse struct {
	Entries []domain.LedgerEntry `json:"entries"`
	Total   int                  `json:"total"`
}

// IdentityResponse is the wallet's public identity.
type IdentityResponse struct {
	UID          string `json:"uid"`
	PublicKeyPEM string `json:"public_key_pem"`
}
