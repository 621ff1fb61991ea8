package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"offline-wallet/internal/adapter/keystore"
	"offline-wallet/internal/core/domain"
	"offline-wallet/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codecNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return codecNow }

// sharedPair returns two devices holding the same network key.
func sharedPair(t *testing.T) (alice, bob *KeyManagerService) {
	t.Helper()
	ctx := context.Background()
	shared := []byte(strings.Repeat("k", keystore.SymmetricKeySize))

	alice = NewKeyManagerService(keystore.NewMemoryVault(), zerolog.Nop())
	bob = NewKeyManagerService(keystore.NewMemoryVault(), zerolog.Nop())
	for _, km := range []*KeyManagerService{alice, bob} {
		require.NoError(t, km.ImportSharedKey(ctx, shared))
		_, err := km.GenerateIdentityKeys(ctx)
		require.NoError(t, err)
	}
	return alice, bob
}

func testPayload() domain.VoucherPayload {
	return domain.VoucherPayload{
		VoucherID: "vch_01hx0000000000000000000000",
		SenderUID: "U123",
		Amount:    domain.MustParseAmount("25.50"),
		Details:   "lunch",
		Timestamp: time.UnixMilli(codecNow.Add(-time.Minute).UnixMilli()),
	}
}

func TestVoucherCodec_RoundTrip(t *testing.T) {
	alice, bob := sharedPair(t)
	ctx := context.Background()
	alicePub, err := alice.GenerateIdentityKeys(ctx)
	require.NoError(t, err)

	codec := NewVoucherCodecService(bob, fixedClock)
	wire, err := NewVoucherCodecService(alice, fixedClock).Encode(ctx, testPayload(), alice, alice)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(wire, "OP1:"))
	assert.Len(t, strings.Split(strings.TrimPrefix(wire, "OP1:"), "."), 3)

	got, err := codec.Decode(ctx, wire, alicePub, bob)
	require.NoError(t, err)
	assert.Equal(t, testPayload(), *got)

	// The codec takes the exact string; trimming belongs to the caller.
	_, err = codec.Decode(ctx, "  "+wire+"\n", alicePub, bob)
	assert.True(t, apperror.HasCode(err, apperror.CodeMalformedVoucher), "got %v", err)
}

func TestVoucherCodec_FreshCiphertextPerEncode(t *testing.T) {
	alice, _ := sharedPair(t)
	ctx := context.Background()
	codec := NewVoucherCodecService(alice, fixedClock)

	w1, err := codec.Encode(ctx, testPayload(), alice, alice)
	require.NoError(t, err)
	w2, err := codec.Encode(ctx, testPayload(), alice, alice)
	require.NoError(t, err)
	assert.NotEqual(t, w1, w2)
}

func TestVoucherCodec_WrongSenderKey(t *testing.T) {
	alice, bob := sharedPair(t)
	ctx := context.Background()
	bobPub, err := bob.GenerateIdentityKeys(ctx)
	require.NoError(t, err)

	codec := NewVoucherCodecService(bob, fixedClock)
	wire, err := codec.Encode(ctx, testPayload(), alice, alice)
	require.NoError(t, err)

	_, err = codec.Decode(ctx, wire, bobPub, bob)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidSignature))
}

func TestVoucherCodec_WrongSymmetricKey(t *testing.T) {
	alice, _ := sharedPair(t)
	ctx := context.Background()
	alicePub, err := alice.GenerateIdentityKeys(ctx)
	require.NoError(t, err)

	// Same identity trust, different network key.
	outsider := NewKeyManagerService(keystore.NewMemoryVault(), zerolog.Nop())
	_, err = outsider.GenerateIdentityKeys(ctx)
	require.NoError(t, err)

	codec := NewVoucherCodecService(outsider, fixedClock)
	wire, err := codec.Encode(ctx, testPayload(), alice, alice)
	require.NoError(t, err)

	_, err = codec.Decode(ctx, wire, alicePub, outsider)
	assert.True(t, apperror.HasCode(err, apperror.CodeDecryptionFailure))
}

func TestVoucherCodec_TamperedSegments(t *testing.T) {
	alice, bob := sharedPair(t)
	ctx := context.Background()
	alicePub, err := alice.GenerateIdentityKeys(ctx)
	require.NoError(t, err)

	codec := NewVoucherCodecService(bob, fixedClock)
	wire, err := codec.Encode(ctx, testPayload(), alice, alice)
	require.NoError(t, err)
	parts, err := codec.Inspect(wire)
	require.NoError(t, err)

	rebuild := func(v *domain.WireVoucher) string {
		return wirePrefix + wireEncoding.EncodeToString(v.IV) + "." +
			wireEncoding.EncodeToString(v.Ciphertext) + "." +
			wireEncoding.EncodeToString(v.Signature)
	}
	clone := func() *domain.WireVoucher {
		return &domain.WireVoucher{
			IV:         append([]byte(nil), parts.IV...),
			Ciphertext: append([]byte(nil), parts.Ciphertext...),
			Signature:  append([]byte(nil), parts.Signature...),
		}
	}

	t.Run("ciphertext", func(t *testing.T) {
		v := clone()
		v.Ciphertext[3] ^= 0x01
		_, err := codec.Decode(ctx, rebuild(v), alicePub, bob)
		assert.True(t, apperror.HasCode(err, apperror.CodeInvalidSignature))
	})

	t.Run("signature", func(t *testing.T) {
		v := clone()
		v.Signature[10] ^= 0x80
		_, err := codec.Decode(ctx, rebuild(v), alicePub, bob)
		assert.True(t, apperror.HasCode(err, apperror.CodeInvalidSignature))
	})

	t.Run("wire text", func(t *testing.T) {
		// Replace the last character of each segment with every other
		// base64url character. The last character carries unused bits
		// for the 12-byte IV and the 64-byte signature.
		const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
		segments := strings.Split(strings.TrimPrefix(wire, wirePrefix), ".")
		require.Len(t, segments, 3)

		for i, seg := range segments {
			last := seg[len(seg)-1]
			for _, r := range alphabet {
				if byte(r) == last {
					continue
				}
				mutated := append([]string(nil), segments...)
				mutated[i] = seg[:len(seg)-1] + string(r)
				tampered := wirePrefix + strings.Join(mutated, ".")

				_, err := codec.Decode(ctx, tampered, alicePub, bob)
				require.Error(t, err, "segment %d, last char %q", i, r)
			}
		}
	})

	t.Run("embedded line break", func(t *testing.T) {
		sig := strings.LastIndex(wire, ".")
		tampered := wire[:sig+5] + "\r\n" + wire[sig+5:]
		_, err := codec.Decode(ctx, tampered, alicePub, bob)
		assert.True(t, apperror.HasCode(err, apperror.CodeMalformedVoucher), "got %v", err)
	})

	t.Run("iv", func(t *testing.T) {
		v := clone()
		v.IV[0] ^= 0x01
		_, err := codec.Decode(ctx, rebuild(v), alicePub, bob)
		assert.True(t, apperror.HasCode(err, apperror.CodeDecryptionFailure))
	})
}

func TestVoucherCodec_Malformed(t *testing.T) {
	alice, _ := sharedPair(t)
	ctx := context.Background()
	alicePub, err := alice.GenerateIdentityKeys(ctx)
	require.NoError(t, err)
	codec := NewVoucherCodecService(alice, fixedClock)

	tests := map[string]string{
		"empty":         "",
		"no tag":        "aaaa.bbbb.cccc",
		"wrong tag":     "OP2:aaaa.bbbb.cccc",
		"two segments":  "OP1:aaaa.bbbb",
		"four segments": "OP1:aaaa.bbbb.cccc.dddd",
		"empty segment": "OP1:aaaa..cccc",
		"not base64url": "OP1:aa*a.bbbb.cccc",
		"padded base64": "OP1:aaa=.bbbb.cccc",
		"trailing bits": "OP1:aab.bbbb.cccc",
		"line break":    "OP1:aa\naa.bbbb.cccc",
		"leading space": " OP1:aaaa.bbbb.cccc",
	}
	for name, wire := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Decode(ctx, wire, alicePub, alice)
			assert.True(t, apperror.HasCode(err, apperror.CodeMalformedVoucher), "got %v", err)
		})
	}
}

func TestVoucherCodec_UnparseablePayload(t *testing.T) {
	alice, _ := sharedPair(t)
	ctx := context.Background()
	alicePub, err := alice.GenerateIdentityKeys(ctx)
	require.NoError(t, err)

	iv, ct, err := alice.SymmetricEncrypt(ctx, []byte("details=no amount here"))
	require.NoError(t, err)
	sig, err := alice.Sign(ctx, ct)
	require.NoError(t, err)

	wire := wirePrefix + wireEncoding.EncodeToString(iv) + "." +
		wireEncoding.EncodeToString(ct) + "." + wireEncoding.EncodeToString(sig)

	_, err = NewVoucherCodecService(alice, fixedClock).Decode(ctx, wire, alicePub, alice)
	assert.True(t, apperror.HasCode(err, apperror.CodePayloadParseError))
}
