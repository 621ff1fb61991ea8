package keystore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"offline-wallet/pkg/apperror"
)

// MemoryVault keeps the keys in process memory. Used by tests and
// throwaway wallets; keys die with the process.
type MemoryVault struct {
	mu   sync.RWMutex
	priv ed25519.PrivateKey
	sym  []byte
}

// NewMemoryVault creates an empty vault. Call Generate before use.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{}
}

func (v *MemoryVault) Open(ctx context.Context) error {
	return nil
}

func (v *MemoryVault) Generate(ctx context.Context) (ed25519.PublicKey, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	created := false
	if v.priv == nil {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, false, fmt.Errorf("generating signing key: %w", err)
		}
		v.priv = priv
		created = true
	}
	if v.sym == nil {
		key, err := randomKey()
		if err != nil {
			return nil, false, err
		}
		v.sym = key
		created = true
	}
	return v.priv.Public().(ed25519.PublicKey), created, nil
}

func (v *MemoryVault) PublicKey(ctx context.Context) (ed25519.PublicKey, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.priv == nil {
		return nil, apperror.ErrKeyNotInitialized()
	}
	return v.priv.Public().(ed25519.PublicKey), nil
}

func (v *MemoryVault) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.priv == nil {
		return nil, apperror.ErrKeyNotInitialized()
	}
	return ed25519.Sign(v.priv, msg), nil
}

func (v *MemoryVault) Encrypt(ctx context.Context, plaintext []byte) ([]byte, []byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.sym == nil {
		return nil, nil, apperror.ErrKeyNotInitialized()
	}
	return encrypt(v.sym, plaintext, nil)
}

func (v *MemoryVault) Decrypt(ctx context.Context, iv, ciphertext []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.sym == nil {
		return nil, apperror.ErrKeyNotInitialized()
	}
	return decrypt(v.sym, iv, ciphertext, nil)
}

func (v *MemoryVault) ImportSymmetricKey(ctx context.Context, key []byte) error {
	if len(key) != SymmetricKeySize {
		return fmt.Errorf("symmetric key must be %d bytes, got %d", SymmetricKeySize, len(key))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.sym = append([]byte(nil), key...)
	return nil
}
