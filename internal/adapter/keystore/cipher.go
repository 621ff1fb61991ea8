// Package keystore implements ports.KeyVault backends. Private and
// symmetric key bytes stay inside this package.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Algorithm parameters. They are fixed for the lifetime of a key.
const (
	// SymmetricKeySize is the AES-256 key length.
	SymmetricKeySize = 32
	// IVSize is the AES-GCM nonce length carried in every voucher.
	IVSize = 12
	// TagSize is the GCM tag appended to every ciphertext.
	TagSize = 16
	// SignatureSize is the fixed Ed25519 signature length.
	SignatureSize = ed25519.SignatureSize
)

var errShortCiphertext = errors.New("ciphertext shorter than tag")

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("AES key must be %d bytes, got %d", SymmetricKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aead, nil
}

// encrypt seals plaintext under key with a fresh random IV.
func encrypt(key, plaintext, aad []byte) (iv, ciphertext []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	iv = make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("generating iv: %w", err)
	}
	return iv, aead.Seal(nil, iv, plaintext, aad), nil
}

// decrypt opens ciphertext; any tampering fails the tag check.
func decrypt(key, iv, ciphertext, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))
	}
	if len(ciphertext) < TagSize {
		return nil, errShortCiphertext
	}
	plaintext, err := aead.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}

// seal encrypts secret under the master key as hex(iv || ciphertext).
// The row name is bound as associated data so sealed rows cannot be swapped.
func seal(master, secret []byte, name string) (string, error) {
	iv, ct, err := encrypt(master, secret, []byte(name))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(append(iv, ct...)), nil
}

// unseal reverses seal.
func unseal(master []byte, sealed, name string) ([]byte, error) {
	raw, err := hex.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decoding sealed key: %w", err)
	}
	if len(raw) < IVSize+TagSize {
		return nil, errShortCiphertext
	}
	return decrypt(master, raw[:IVSize], raw[IVSize:], []byte(name))
}

// ParseHexKey decodes a 32-byte hex key from configuration.
func ParseHexKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", SymmetricKeySize, len(key))
	}
	return key, nil
}

func randomKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating symmetric key: %w", err)
	}
	return key, nil
}
