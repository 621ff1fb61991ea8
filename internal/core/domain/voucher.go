package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// VoucherStatus is the lifecycle state of a voucher.
type VoucherStatus string

const (
	VoucherStatusIssued    VoucherStatus = "ISSUED"
	VoucherStatusRedeemed  VoucherStatus = "REDEEMED"
	VoucherStatusCancelled VoucherStatus = "CANCELLED"
)

// IsTerminal returns true once the voucher can no longer change state.
func (s VoucherStatus) IsTerminal() bool {
	return s == VoucherStatusRedeemed || s == VoucherStatusCancelled
}

// CanTransition reports whether a voucher may move from s to next.
// Transitions are monotonic: ISSUED -> {REDEEMED | CANCELLED}.
func (s VoucherStatus) CanTransition(next VoucherStatus) bool {
	if s == next {
		return true
	}
	return s == VoucherStatusIssued && (next == VoucherStatusRedeemed || next == VoucherStatusCancelled)
}

// Valid reports whether s is a known status.
func (s VoucherStatus) Valid() bool {
	switch s {
	case VoucherStatusIssued, VoucherStatusRedeemed, VoucherStatusCancelled:
		return true
	}
	return false
}

// Canonical payload field names, in wire order.
const (
	FieldAmount    = "amount"
	FieldSender    = "senderTxId"
	FieldDetails   = "details"
	FieldTimestamp = "timestamp"
	FieldVoucherID = "voucherId"
)

// VoucherIDPrefix prefixes every voucher ID, issued or derived.
const VoucherIDPrefix = "vch"

const maxVoucherIDLen = 128

var (
	ErrMissingAmount    = errors.New("payload: amount is missing")
	ErrMissingSender    = errors.New("payload: sender identifier is missing")
	ErrInvalidVoucherID = errors.New("payload: voucher id is invalid")
)

// VoucherPayload is the plaintext content of a voucher before encryption.
type VoucherPayload struct {
	VoucherID string
	SenderUID string
	Amount    Amount
	Details   string
	Timestamp time.Time
}

var fieldEscaper = strings.NewReplacer("%", "%25", ";", "%3B", "=", "%3D")

// Canonical renders the payload as
// amount=<a>;senderTxId=<uid>;details=<d>;timestamp=<unix ms>[;voucherId=<id>].
// Field order is fixed and reserved characters in values are percent-escaped.
func (p VoucherPayload) Canonical() []byte {
	var b strings.Builder
	b.WriteString(FieldAmount + "=" + p.Amount.String())
	b.WriteString(";" + FieldSender + "=" + fieldEscaper.Replace(p.SenderUID))
	b.WriteString(";" + FieldDetails + "=" + fieldEscaper.Replace(p.Details))
	b.WriteString(";" + FieldTimestamp + "=" + strconv.FormatInt(p.Timestamp.UnixMilli(), 10))
	if p.VoucherID != "" {
		b.WriteString(";" + FieldVoucherID + "=" + fieldEscaper.Replace(p.VoucherID))
	}
	return []byte(b.String())
}

// ParsePayload decodes canonical payload bytes. amount and senderTxId are
// mandatory; details defaults to "" and timestamp to now. A payload without a
// voucherId gets one derived from its content, so the same voucher always
// maps to the same ID.
func ParsePayload(raw []byte, now time.Time) (*VoucherPayload, error) {
	fields := make(map[string]string)
	for _, part := range strings.Split(string(raw), ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = unescapeField(strings.TrimSpace(value))
	}

	rawAmount, ok := fields[FieldAmount]
	if !ok {
		return nil, ErrMissingAmount
	}
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}

	sender := fields[FieldSender]
	if sender == "" {
		return nil, ErrMissingSender
	}

	ts := now
	if rawTS, ok := fields[FieldTimestamp]; ok {
		if ms, err := strconv.ParseInt(rawTS, 10, 64); err == nil {
			ts = time.UnixMilli(ms)
		}
	}

	voucherID, hasID := fields[FieldVoucherID]
	if !hasID {
		voucherID = DeriveVoucherID(raw)
	}
	if voucherID == "" || len(voucherID) > maxVoucherIDLen {
		return nil, ErrInvalidVoucherID
	}

	return &VoucherPayload{
		VoucherID: voucherID,
		SenderUID: sender,
		Amount:    amount,
		Details:   fields[FieldDetails],
		Timestamp: ts,
	}, nil
}

// DeriveVoucherID returns a content-derived voucher ID for payloads that do not carry one.
func DeriveVoucherID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return VoucherIDPrefix + "_" + hex.EncodeToString(sum[:])[:26]
}

// unescapeField reverses the canonical escaping. Values written by other
// encoders may hold a bare '%', which is kept as-is.
func unescapeField(v string) string {
	if !strings.Contains(v, "%") {
		return v
	}
	out, err := url.PathUnescape(v)
	if err != nil {
		return v
	}
	return out
}

// WireVoucher holds the decoded segments of a voucher wire string.
type WireVoucher struct {
	IV         []byte
	Ciphertext []byte
	Signature  []byte
}
