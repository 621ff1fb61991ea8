package keystore

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"offline-wallet/pkg/apperror"
)

const pemPublicKeyType = "PUBLIC KEY"

// EncodePublicKeyPEM wraps the PKIX DER encoding of pub in a PEM envelope.
func EncodePublicKeyPEM(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshaling public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemPublicKeyType, Bytes: der})), nil
}

// ParsePublicKeyPEM reads an Ed25519 public key from PEM text.
func ParsePublicKeyPEM(text string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(text)))
	if block == nil || block.Type != pemPublicKeyType {
		return nil, apperror.ErrVerification(errors.New("no PUBLIC KEY block found"))
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, apperror.ErrVerification(fmt.Errorf("parsing public key: %w", err))
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, apperror.ErrVerification(fmt.Errorf("unsupported public key type %T", key))
	}
	return pub, nil
}
