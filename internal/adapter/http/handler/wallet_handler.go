package handler

import (
	"time"

	"offline-wallet/internal/adapter/http/dto"
	"offline-wallet/internal/core/domain"
	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	eventBalance = "balance"
	eventPing    = "ping"

	defaultHeartbeat = 25 * time.Second
)

// WalletHandler serves the balance, history and identity of the wallet.
type WalletHandler struct {
	engine    ports.TransactionEngine
	heartbeat time.Duration
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(engine ports.TransactionEngine) *WalletHandler {
	return &WalletHandler{engine: engine, heartbeat: defaultHeartbeat}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	entries, err := h.engine.Entries(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, balanceEvent(entries))
}

// ListEntries handles GET /api/v1/wallet/entries.
func (h *WalletHandler) ListEntries(c *gin.Context) {
	entries, err := h.engine.Entries(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	response.OK(c, dto.EntryListResponse{Entries: entries, Total: len(entries)})
}

// Events handles GET /api/v1/wallet/events. It streams a "balance" event
// with the current state, then one after every committed ledger mutation.
// Only the latest pending state is kept for a slow client.
func (h *WalletHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()

	updates := make(chan dto.BalanceResponse, 1)
	unsubscribe := h.engine.Subscribe(func(entries []domain.LedgerEntry) {
		ev := balanceEvent(entries)
		for {
			select {
			case updates <- ev:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	// Read after subscribing so no mutation falls between the two.
	entries, err := h.engine.Entries(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(eventBalance, balanceEvent(entries))
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-updates:
			c.SSEvent(eventBalance, ev)
			c.Writer.Flush()
		case t := <-heartbeat.C:
			c.SSEvent(eventPing, t.Unix())
			c.Writer.Flush()
		}
	}
}

// GetIdentity handles GET /api/v1/identity.
func (h *WalletHandler) GetIdentity(c *gin.Context) {
	id, err := h.engine.Identity(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.IdentityResponse{UID: id.UID, PublicKeyPEM: id.PublicKeyPEM})
}

func balanceEvent(entries []domain.LedgerEntry) dto.BalanceResponse {
	return dto.BalanceResponse{Balance: domain.Balance(entries), Entries: len(entries)}
}
