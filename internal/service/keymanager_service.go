package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"offline-wallet/internal/adapter/keystore"
	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/apperror"

	"github.com/rs/zerolog"
)

// KeyManagerService implements ports.KeyManager on top of a KeyVault.
// The vault serializes its own access; ed25519 and GCM are stateless, so
// the service is safe for concurrent use by the engine and the reconciler.
type KeyManagerService struct {
	vault ports.KeyVault
	log   zerolog.Logger
}

// NewKeyManagerService creates a new key manager.
func NewKeyManagerService(vault ports.KeyVault, log zerolog.Logger) *KeyManagerService {
	return &KeyManagerService{vault: vault, log: log}
}

// GenerateIdentityKeys creates the identity keys if missing and returns the
// public key. Repeated calls return the same key.
func (s *KeyManagerService) GenerateIdentityKeys(ctx context.Context) (ed25519.PublicKey, error) {
	if err := s.vault.Open(ctx); err != nil {
		return nil, asKeyStoreError(err)
	}

	pub, created, err := s.vault.Generate(ctx)
	if err != nil {
		return nil, asKeyStoreError(err)
	}
	if created {
		s.log.Info().Msg("Identity keys generated")
	}
	return pub, nil
}

// ImportSharedKey installs the network-shared voucher key.
func (s *KeyManagerService) ImportSharedKey(ctx context.Context, key []byte) error {
	if err := s.vault.ImportSymmetricKey(ctx, key); err != nil {
		return asKeyStoreError(err)
	}
	return nil
}

// PublicKeyExport returns the public key as a PEM SubjectPublicKeyInfo block.
func (s *KeyManagerService) PublicKeyExport(ctx context.Context) (string, error) {
	pub, err := s.vault.PublicKey(ctx)
	if err != nil {
		return "", asKeyStoreError(err)
	}
	return keystore.EncodePublicKeyPEM(pub)
}

// Sign signs msg with the device private key.
func (s *KeyManagerService) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	sig, err := s.vault.Sign(ctx, msg)
	if err != nil {
		if isAppError(err) {
			return nil, err
		}
		return nil, apperror.ErrSigningFailure(err)
	}
	return sig, nil
}

// Verify checks sig over msg. It never panics on malformed input.
func (s *KeyManagerService) Verify(msg, sig []byte, pub ed25519.PublicKey) (bool, error) {
	if len(pub) != ed25519.PublicKeySize {
		return false, apperror.ErrVerification(fmt.Errorf("public key has %d bytes, want %d", len(pub), ed25519.PublicKeySize))
	}
	if len(sig) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(pub, msg, sig), nil
}

// SymmetricEncrypt encrypts with a fresh IV.
func (s *KeyManagerService) SymmetricEncrypt(ctx context.Context, plaintext []byte) ([]byte, []byte, error) {
	iv, ct, err := s.vault.Encrypt(ctx, plaintext)
	if err != nil {
		if isAppError(err) {
			return nil, nil, err
		}
		return nil, nil, apperror.InternalError(fmt.Errorf("encrypting payload: %w", err))
	}
	return iv, ct, nil
}

// SymmetricDecrypt fails with DecryptionFailure on any authentication error.
func (s *KeyManagerService) SymmetricDecrypt(ctx context.Context, iv, ciphertext []byte) ([]byte, error) {
	pt, err := s.vault.Decrypt(ctx, iv, ciphertext)
	if err != nil {
		if isAppError(err) {
			return nil, err
		}
		return nil, apperror.ErrDecryptionFailure(err)
	}
	return pt, nil
}

func isAppError(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr)
}

func asKeyStoreError(err error) error {
	if isAppError(err) {
		return err
	}
	return apperror.ErrKeyStoreUnavailable(err)
}
