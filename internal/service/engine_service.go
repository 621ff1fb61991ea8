package service

import (
	"context"
	"fmt"
	"time"

	"offline-wallet/internal/core/domain"
	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/apperror"

	"github.com/rs/zerolog"
	"go.jetify.com/typeid/v2"
)

// DefaultRedeemClaimTTL bounds how long a redeemed voucher ID stays claimed
// in the guard. The ledger's unique index covers it after that.
const DefaultRedeemClaimTTL = 24 * time.Hour

// TransactionEngineImpl implements ports.TransactionEngine.
type TransactionEngineImpl struct {
	uid       string
	keys      ports.KeyManager
	codec     ports.VoucherCodec
	ledger    ports.LedgerStore
	pin       ports.PinVerifier
	contacts  ports.ContactDirectory
	guard     ports.RedemptionGuard
	redeemTTL time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// EngineOption configures a TransactionEngineImpl.
type EngineOption func(*TransactionEngineImpl)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *TransactionEngineImpl) { e.now = now }
}

// WithRedeemClaimTTL overrides DefaultRedeemClaimTTL.
func WithRedeemClaimTTL(ttl time.Duration) EngineOption {
	return func(e *TransactionEngineImpl) {
		if ttl > 0 {
			e.redeemTTL = ttl
		}
	}
}

// NewTransactionEngine creates the engine for the wallet identified by uid.
func NewTransactionEngine(
	uid string,
	keys ports.KeyManager,
	codec ports.VoucherCodec,
	ledger ports.LedgerStore,
	pin ports.PinVerifier,
	contacts ports.ContactDirectory,
	guard ports.RedemptionGuard,
	log zerolog.Logger,
	opts ...EngineOption,
) *TransactionEngineImpl {
	e := &TransactionEngineImpl{
		uid:       uid,
		keys:      keys,
		codec:     codec,
		ledger:    ledger,
		pin:       pin,
		contacts:  contacts,
		guard:     guard,
		redeemTTL: DefaultRedeemClaimTTL,
		now:       time.Now,
		log:       log.With().Str("wallet_uid", uid).Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateVoucher authorizes with the PIN, encodes a signed voucher and records
// the debit. Nothing is written unless the voucher was fully encoded.
func (e *TransactionEngineImpl) CreateVoucher(ctx context.Context, req ports.CreateVoucherRequest) (*ports.IssuedVoucher, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if err := e.pin.VerifyPin(ctx, req.Pin); err != nil {
		return nil, err
	}

	tid, err := typeid.Generate(domain.VoucherIDPrefix)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate voucher id: %w", err))
	}

	payload := domain.VoucherPayload{
		VoucherID: tid.String(),
		SenderUID: e.uid,
		Amount:    req.Amount,
		Details:   req.Details,
		Timestamp: e.timestamp(),
	}

	wire, err := e.codec.Encode(ctx, payload, e.keys, e.keys)
	if err != nil {
		return nil, err
	}
	parts, err := e.codec.Inspect(wire)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("inspect issued voucher: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry := &domain.LedgerEntry{
		VoucherID: payload.VoucherID,
		Type:      domain.EntryTypeSent,
		Amount:    payload.Amount,
		Timestamp: payload.Timestamp,
		Details:   payload.Details,
		Status:    domain.VoucherStatusIssued,
		Signature: wireEncoding.EncodeToString(parts.Signature),
	}
	id, err := e.ledger.Append(ctx, entry)
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("voucher_id", payload.VoucherID).
		Str("amount", payload.Amount.String()).
		Int64("entry_id", id).
		Msg("Voucher issued")

	return &ports.IssuedVoucher{
		VoucherID: payload.VoucherID,
		EntryID:   id,
		Wire:      wire,
		Amount:    payload.Amount,
		Timestamp: payload.Timestamp,
	}, nil
}

// RedeemVoucher verifies a scanned voucher from a known sender and records
// the credit. Each voucher ID is credited at most once.
func (e *TransactionEngineImpl) RedeemVoucher(ctx context.Context, req ports.RedeemRequest) (*ports.Redemption, error) {
	parts, err := e.codec.Inspect(req.Wire)
	if err != nil {
		return nil, err
	}
	if req.SenderUID == "" {
		return nil, apperror.ErrUnknownSender("")
	}

	senderKey, err := e.contacts.LookupPublicKey(ctx, req.SenderUID)
	if err != nil {
		return nil, err
	}

	payload, err := e.codec.Decode(ctx, req.Wire, senderKey, e.keys)
	if err != nil {
		e.log.Warn().Err(err).Str("sender_uid", req.SenderUID).Msg("Voucher rejected")
		return nil, err
	}
	if payload.SenderUID != req.SenderUID {
		e.log.Warn().
			Str("claimed_sender", req.SenderUID).
			Str("payload_sender", payload.SenderUID).
			Msg("Voucher sender mismatch")
		return nil, apperror.ErrInvalidSignature()
	}
	if !payload.Amount.IsPositive() {
		return nil, apperror.ErrPayloadParse(fmt.Errorf("amount %s is not positive", payload.Amount))
	}

	claimed, err := e.guard.Claim(ctx, payload.VoucherID, e.redeemTTL)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("claim voucher: %w", err))
	}
	if !claimed {
		return nil, apperror.ErrDuplicateVoucher()
	}

	id, err := e.recordRedemption(ctx, payload, parts)
	if err != nil {
		if relErr := e.guard.Release(context.WithoutCancel(ctx), payload.VoucherID); relErr != nil {
			e.log.Error().Err(relErr).Str("voucher_id", payload.VoucherID).Msg("Failed to release redemption claim")
		}
		return nil, err
	}

	e.log.Info().
		Str("voucher_id", payload.VoucherID).
		Str("amount", payload.Amount.String()).
		Str("sender_uid", payload.SenderUID).
		Int64("entry_id", id).
		Msg("Voucher redeemed")

	return &ports.Redemption{
		VoucherID:    payload.VoucherID,
		EntryID:      id,
		Amount:       payload.Amount,
		Counterparty: payload.SenderUID,
		Details:      payload.Details,
		Message:      fmt.Sprintf("Received %s from %s", payload.Amount, payload.SenderUID),
	}, nil
}

func (e *TransactionEngineImpl) recordRedemption(ctx context.Context, payload *domain.VoucherPayload, parts *domain.WireVoucher) (int64, error) {
	existing, err := e.ledger.FindByVoucher(ctx, payload.VoucherID, domain.EntryTypeReceived)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("check ledger: %w", err))
	}
	if existing != nil {
		return 0, apperror.ErrDuplicateVoucher()
	}

	return e.ledger.Append(ctx, &domain.LedgerEntry{
		VoucherID:    payload.VoucherID,
		Type:         domain.EntryTypeReceived,
		Amount:       payload.Amount,
		Timestamp:    payload.Timestamp,
		Details:      payload.Details,
		Counterparty: payload.SenderUID,
		Status:       domain.VoucherStatusRedeemed,
		Signature:    wireEncoding.EncodeToString(parts.Signature),
	})
}

// CancelVoucher withdraws an issued voucher that has not left the device's
// books yet. The debit entry is removed, restoring the balance.
func (e *TransactionEngineImpl) CancelVoucher(ctx context.Context, voucherID, pin string) error {
	if err := e.pin.VerifyPin(ctx, pin); err != nil {
		return err
	}

	entry, err := e.ledger.FindByVoucher(ctx, voucherID, domain.EntryTypeSent)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("find voucher: %w", err))
	}
	if entry == nil {
		return apperror.ErrNotFound("voucher")
	}
	if !entry.IsCancellable() {
		return apperror.ErrVoucherNotCancellable()
	}

	if err := e.ledger.Delete(ctx, entry.ID); err != nil {
		return err
	}

	e.log.Info().Str("voucher_id", voucherID).Str("amount", entry.Amount.String()).Msg("Voucher cancelled")
	return nil
}

func (e *TransactionEngineImpl) Balance(ctx context.Context) (domain.Amount, error) {
	return e.ledger.Balance(ctx)
}

func (e *TransactionEngineImpl) Entries(ctx context.Context) ([]domain.LedgerEntry, error) {
	return e.ledger.Entries(ctx)
}

func (e *TransactionEngineImpl) Subscribe(observer ports.LedgerObserver) func() {
	return e.ledger.Subscribe(observer)
}

// Identity returns the wallet UID and its exported public key.
func (e *TransactionEngineImpl) Identity(ctx context.Context) (*ports.Identity, error) {
	pem, err := e.keys.PublicKeyExport(ctx)
	if err != nil {
		return nil, err
	}
	return &ports.Identity{UID: e.uid, PublicKeyPEM: pem}, nil
}

// timestamp is the clock truncated to the millisecond precision of the ledger.
func (e *TransactionEngineImpl) timestamp() time.Time {
	return time.UnixMilli(e.now().UnixMilli())
}
