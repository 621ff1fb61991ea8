package keystore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"offline-wallet/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
)

// Row names in key_material.
const (
	keySigning   = "signing_seed"
	keySymmetric = "symmetric"
)

// keyMaterialModel maps the key_material table. Sealed holds
// hex(iv || AES-GCM(master, secret)).
type keyMaterialModel struct {
	bun.BaseModel `bun:"table:key_material"`

	Name      string `bun:"name,pk"`
	Sealed    string `bun:"sealed,notnull"`
	CreatedAt int64  `bun:"created_at,notnull"`
}

// SQLVault keeps the keys sealed under a master key in the device database.
// Unsealed keys are cached in memory after the first load.
type SQLVault struct {
	db     bun.IDB
	master []byte
	log    zerolog.Logger

	mu     sync.RWMutex
	loaded bool
	priv   ed25519.PrivateKey
	sym    []byte
}

// NewSQLVault creates a vault sealing keys with the 32-byte hex master key.
func NewSQLVault(db bun.IDB, masterHex string, log zerolog.Logger) (*SQLVault, error) {
	master, err := ParseHexKey(masterHex)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	return &SQLVault{db: db, master: master, log: log}, nil
}

// Open loads and unseals any stored keys.
func (v *SQLVault) Open(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadLocked(ctx)
}

func (v *SQLVault) Generate(ctx context.Context) (ed25519.PublicKey, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.loadLocked(ctx); err != nil {
		return nil, false, err
	}

	var rows []keyMaterialModel
	priv, sym := v.priv, v.sym

	if priv == nil {
		_, generated, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, false, fmt.Errorf("generating signing key: %w", err)
		}
		row, err := v.sealRow(keySigning, generated.Seed())
		if err != nil {
			return nil, false, err
		}
		rows = append(rows, row)
		priv = generated
	}
	if sym == nil {
		key, err := randomKey()
		if err != nil {
			return nil, false, err
		}
		row, err := v.sealRow(keySymmetric, key)
		if err != nil {
			return nil, false, err
		}
		rows = append(rows, row)
		sym = key
	}

	if len(rows) > 0 {
		if _, err := v.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return nil, false, apperror.ErrKeyStoreUnavailable(fmt.Errorf("storing key material: %w", err))
		}
		v.log.Info().Int("keys_created", len(rows)).Msg("Identity key material generated")
	}

	v.priv, v.sym = priv, sym
	return priv.Public().(ed25519.PublicKey), len(rows) > 0, nil
}

func (v *SQLVault) PublicKey(ctx context.Context) (ed25519.PublicKey, error) {
	priv, err := v.signingKey(ctx)
	if err != nil {
		return nil, err
	}
	return priv.Public().(ed25519.PublicKey), nil
}

func (v *SQLVault) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	priv, err := v.signingKey(ctx)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, msg), nil
}

func (v *SQLVault) Encrypt(ctx context.Context, plaintext []byte) ([]byte, []byte, error) {
	key, err := v.symmetricKey(ctx)
	if err != nil {
		return nil, nil, err
	}
	return encrypt(key, plaintext, nil)
}

func (v *SQLVault) Decrypt(ctx context.Context, iv, ciphertext []byte) ([]byte, error) {
	key, err := v.symmetricKey(ctx)
	if err != nil {
		return nil, err
	}
	return decrypt(key, iv, ciphertext, nil)
}

// ImportSymmetricKey stores a network-shared key, replacing any existing one.
func (v *SQLVault) ImportSymmetricKey(ctx context.Context, key []byte) error {
	if len(key) != SymmetricKeySize {
		return fmt.Errorf("symmetric key must be %d bytes, got %d", SymmetricKeySize, len(key))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	row, err := v.sealRow(keySymmetric, key)
	if err != nil {
		return err
	}
	_, err = v.db.NewInsert().Model(&row).
		On("CONFLICT (name) DO UPDATE").
		Set("sealed = EXCLUDED.sealed").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	if err != nil {
		return apperror.ErrKeyStoreUnavailable(fmt.Errorf("storing symmetric key: %w", err))
	}

	v.sym = append([]byte(nil), key...)
	return nil
}

func (v *SQLVault) signingKey(ctx context.Context) (ed25519.PrivateKey, error) {
	if err := v.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.priv == nil {
		return nil, apperror.ErrKeyNotInitialized()
	}
	return v.priv, nil
}

func (v *SQLVault) symmetricKey(ctx context.Context) ([]byte, error) {
	if err := v.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.sym == nil {
		return nil, apperror.ErrKeyNotInitialized()
	}
	return v.sym, nil
}

func (v *SQLVault) ensureLoaded(ctx context.Context) error {
	v.mu.RLock()
	loaded := v.loaded
	v.mu.RUnlock()
	if loaded {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadLocked(ctx)
}

// loadLocked reads and unseals stored rows. Caller holds mu.
func (v *SQLVault) loadLocked(ctx context.Context) error {
	if v.loaded {
		return nil
	}

	var rows []keyMaterialModel
	if err := v.db.NewSelect().Model(&rows).Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apperror.ErrKeyStoreUnavailable(fmt.Errorf("reading key material: %w", err))
	}

	for _, row := range rows {
		secret, err := unseal(v.master, row.Sealed, row.Name)
		if err != nil {
			return apperror.ErrKeyStoreUnavailable(fmt.Errorf("unsealing %s: %w", row.Name, err))
		}
		switch row.Name {
		case keySigning:
			if len(secret) != ed25519.SeedSize {
				return apperror.ErrKeyStoreUnavailable(fmt.Errorf("signing seed has %d bytes", len(secret)))
			}
			v.priv = ed25519.NewKeyFromSeed(secret)
		case keySymmetric:
			v.sym = secret
		}
	}

	v.loaded = true
	return nil
}

func (v *SQLVault) sealRow(name string, secret []byte) (keyMaterialModel, error) {
	sealed, err := seal(v.master, secret, name)
	if err != nil {
		return keyMaterialModel{}, apperror.ErrKeyStoreUnavailable(fmt.Errorf("sealing %s: %w", name, err))
	}
	return keyMaterialModel{Name: name, Sealed: sealed, CreatedAt: time.Now().UnixMilli()}, nil
}
