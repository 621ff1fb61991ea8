package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Default Argon2id parameters for PIN hashing.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64MB
	argon2Threads = 4
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
}

// Argon2HashService implements ports.HashService using Argon2id.
type Argon2HashService struct {
	params argon2Params
}

// NewArgon2HashService creates a hash service with the default parameters.
func NewArgon2HashService() *Argon2HashService {
	return NewArgon2HashServiceWithParams(argon2Time, argon2Memory, argon2Threads)
}

// NewArgon2HashServiceWithParams creates a hash service with explicit cost
// parameters. memoryKiB is in KiB. Hashes record their own parameters, so
// services with different costs verify each other's output.
func NewArgon2HashServiceWithParams(time, memoryKiB uint32, threads uint8) *Argon2HashService {
	return &Argon2HashService{params: argon2Params{
		memory:  memoryKiB,
		time:    time,
		threads: threads,
		keyLen:  argon2KeyLen,
	}}
}

// Hash returns $argon2id$v=19$m=<mem>,t=<time>,p=<threads>$<salt>$<hash>.
func (s *Argon2HashService) Hash(pin string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	p := s.params
	hash := argon2.IDKey([]byte(pin), salt, p.time, p.memory, p.threads, p.keyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks pin against an encoded hash in constant time.
func (s *Argon2HashService) Verify(pin string, encodedHash string) (bool, error) {
	salt, hash, params, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(pin), salt, params.time, params.memory, params.threads, params.keyLen)
	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

func decodeArgon2Hash(encodedHash string) (salt, hash []byte, params argon2Params, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, nil, params, fmt.Errorf("invalid hash format: expected 6 parts, got %d", len(parts))
	}
	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, params, fmt.Errorf("parsing params: %w", err)
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	if len(hash) == 0 {
		return nil, nil, params, fmt.Errorf("empty hash")
	}
	params.keyLen = uint32(len(hash))

	return salt, hash, params, nil
}
