package keystore

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"testing"

	"offline-wallet/internal/adapter/storage/sqlite"
	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

const (
	testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	otherMaster   = "ff0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
)

func openDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), "file::memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSQLVault(t *testing.T, db *bun.DB, master string) *SQLVault {
	t.Helper()
	v, err := NewSQLVault(db, master, zerolog.Nop())
	require.NoError(t, err)
	return v
}

func vaults(t *testing.T) map[string]ports.KeyVault {
	return map[string]ports.KeyVault{
		"memory": NewMemoryVault(),
		"sql":    newSQLVault(t, openDB(t), testMasterKey),
	}
}

func TestVault_Contract(t *testing.T) {
	for name, v := range vaults(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, v.Open(ctx))

			_, err := v.PublicKey(ctx)
			assert.True(t, apperror.HasCode(err, apperror.CodeKeyNotInitialized))
			_, err = v.Sign(ctx, []byte("x"))
			assert.True(t, apperror.HasCode(err, apperror.CodeKeyNotInitialized))

			pub, created, err := v.Generate(ctx)
			require.NoError(t, err)
			assert.True(t, created)

			again, created, err := v.Generate(ctx)
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, pub, again)

			sig, err := v.Sign(ctx, []byte("message"))
			require.NoError(t, err)
			assert.Len(t, sig, SignatureSize)
			assert.True(t, ed25519.Verify(pub, []byte("message"), sig))

			iv, ct, err := v.Encrypt(ctx, []byte("amount=1.00"))
			require.NoError(t, err)
			assert.Len(t, iv, IVSize)
			assert.Len(t, ct, len("amount=1.00")+TagSize)

			pt, err := v.Decrypt(ctx, iv, ct)
			require.NoError(t, err)
			assert.Equal(t, "amount=1.00", string(pt))

			ct[0] ^= 0xff
			_, err = v.Decrypt(ctx, iv, ct)
			assert.Error(t, err)

			_, err = v.Decrypt(ctx, iv, ct[:TagSize-1])
			assert.Error(t, err)
		})
	}
}

func TestVault_FreshIVPerCall(t *testing.T) {
	v := NewMemoryVault()
	ctx := context.Background()
	_, _, err := v.Generate(ctx)
	require.NoError(t, err)

	iv1, ct1, err := v.Encrypt(ctx, []byte("same"))
	require.NoError(t, err)
	iv2, ct2, err := v.Encrypt(ctx, []byte("same"))
	require.NoError(t, err)

	assert.False(t, bytes.Equal(iv1, iv2))
	assert.False(t, bytes.Equal(ct1, ct2))
}

func TestVault_ImportedKeyIsShared(t *testing.T) {
	ctx := context.Background()
	shared := bytes.Repeat([]byte{7}, SymmetricKeySize)

	alice := NewMemoryVault()
	bob := newSQLVault(t, openDB(t), testMasterKey)
	require.NoError(t, alice.ImportSymmetricKey(ctx, shared))
	require.NoError(t, bob.ImportSymmetricKey(ctx, shared))
	_, _, err := alice.Generate(ctx)
	require.NoError(t, err)

	iv, ct, err := alice.Encrypt(ctx, []byte("hello"))
	require.NoError(t, err)

	pt, err := bob.Decrypt(ctx, iv, ct)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pt))

	assert.Error(t, alice.ImportSymmetricKey(ctx, []byte("short")))
}

func TestSQLVault_KeysSurviveReopen(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	first := newSQLVault(t, db, testMasterKey)
	pub, _, err := first.Generate(ctx)
	require.NoError(t, err)

	second := newSQLVault(t, db, testMasterKey)
	require.NoError(t, second.Open(ctx))
	got, err := second.PublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	var sealed []keyMaterialModel
	require.NoError(t, db.NewSelect().Model(&sealed).Scan(ctx))
	require.Len(t, sealed, 2)
	for _, row := range sealed {
		assert.NotContains(t, row.Sealed, "BEGIN")
		assert.Greater(t, len(row.Sealed), 2*(IVSize+TagSize))
	}
}

func TestSQLVault_WrongMasterKey(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	_, _, err := newSQLVault(t, db, testMasterKey).Generate(ctx)
	require.NoError(t, err)

	err = newSQLVault(t, db, otherMaster).Open(ctx)
	assert.True(t, apperror.HasCode(err, apperror.CodeKeyStoreUnavailable))
}

func TestSQLVault_MissingTable(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	_, err := db.ExecContext(ctx, "DROP TABLE key_material")
	require.NoError(t, err)

	err = newSQLVault(t, db, testMasterKey).Open(ctx)
	assert.True(t, apperror.HasCode(err, apperror.CodeKeyStoreUnavailable))
}

func TestNewSQLVault_BadMasterKey(t *testing.T) {
	_, err := NewSQLVault(nil, "abcd", zerolog.Nop())
	assert.Error(t, err)
}

func TestSealBindsRowName(t *testing.T) {
	master, err := ParseHexKey(testMasterKey)
	require.NoError(t, err)

	sealed, err := seal(master, []byte("secret"), keySigning)
	require.NoError(t, err)

	_, err = unseal(master, sealed, keySymmetric)
	assert.Error(t, err)

	out, err := unseal(master, sealed, keySigning)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(out))
}
