package service

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"offline-wallet/internal/core/domain"
	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/apperror"
)

// Wire format: OP1:<iv>.<ciphertext>.<signature>, each segment base64url
// without padding and with zero trailing bits. The signature covers the
// ciphertext bytes.
const (
	WireTag       = "OP1"
	wirePrefix    = WireTag + ":"
	wireSeparator = "."
	wireSegments  = 3
)

var wireEncoding = base64.RawURLEncoding.Strict()

// VoucherCodecService implements ports.VoucherCodec.
type VoucherCodecService struct {
	verifier ports.SignatureVerifier
	now      func() time.Time
}

// NewVoucherCodecService creates a codec that checks signatures with verifier.
func NewVoucherCodecService(verifier ports.SignatureVerifier, now func() time.Time) *VoucherCodecService {
	if now == nil {
		now = time.Now
	}
	return &VoucherCodecService{verifier: verifier, now: now}
}

// Encode serializes, encrypts, then signs the ciphertext.
func (c *VoucherCodecService) Encode(ctx context.Context, payload domain.VoucherPayload, signer ports.PayloadSigner, cipher ports.PayloadCipher) (string, error) {
	iv, ct, err := cipher.SymmetricEncrypt(ctx, payload.Canonical())
	if err != nil {
		return "", err
	}

	sig, err := signer.Sign(ctx, ct)
	if err != nil {
		return "", err
	}

	return wirePrefix +
		wireEncoding.EncodeToString(iv) + wireSeparator +
		wireEncoding.EncodeToString(ct) + wireSeparator +
		wireEncoding.EncodeToString(sig), nil
}

// Decode checks the shape, verifies the signature, then decrypts and parses.
// No decryption is attempted for a voucher whose signature does not verify.
func (c *VoucherCodecService) Decode(ctx context.Context, wire string, senderKey ed25519.PublicKey, cipher ports.PayloadCipher) (*domain.VoucherPayload, error) {
	parts, err := c.Inspect(wire)
	if err != nil {
		return nil, err
	}

	ok, err := c.verifier.Verify(parts.Ciphertext, parts.Signature, senderKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.ErrInvalidSignature()
	}

	plaintext, err := cipher.SymmetricDecrypt(ctx, parts.IV, parts.Ciphertext)
	if err != nil {
		if isAppError(err) {
			return nil, err
		}
		return nil, apperror.ErrDecryptionFailure(err)
	}

	payload, err := domain.ParsePayload(plaintext, c.now())
	if err != nil {
		return nil, apperror.ErrPayloadParse(err)
	}
	return payload, nil
}

// Inspect validates the wire shape and decodes the three segments. The
// string must match exactly; callers strip transport whitespace.
func (c *VoucherCodecService) Inspect(wire string) (*domain.WireVoucher, error) {
	// The decoder skips CR and LF, so they are rejected here.
	if strings.ContainsAny(wire, "\r\n") {
		return nil, apperror.ErrMalformedVoucher("line break in voucher")
	}
	body, ok := strings.CutPrefix(wire, wirePrefix)
	if !ok {
		return nil, apperror.ErrMalformedVoucher("unknown format tag")
	}

	segments := strings.Split(body, wireSeparator)
	if len(segments) != wireSegments {
		return nil, apperror.ErrMalformedVoucher(fmt.Sprintf("expected %d segments, got %d", wireSegments, len(segments)))
	}

	decoded := make([][]byte, wireSegments)
	for i, seg := range segments {
		if seg == "" {
			return nil, apperror.ErrMalformedVoucher("empty segment")
		}
		b, err := wireEncoding.DecodeString(seg)
		if err != nil {
			return nil, apperror.ErrMalformedVoucher("segment is not base64url")
		}
		decoded[i] = b
	}

	return &domain.WireVoucher{IV: decoded[0], Ciphertext: decoded[1], Signature: decoded[2]}, nil
}
