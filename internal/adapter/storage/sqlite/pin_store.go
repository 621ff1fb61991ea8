package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// pinStateModel maps the single-row pin_state table.
type pinStateModel struct {
	bun.BaseModel `bun:"table:pin_state"`

	ID        int64  `bun:"id,pk"`
	Hash      string `bun:"hash,notnull"`
	Failures  int    `bun:"failures,notnull"`
	UpdatedAt int64  `bun:"updated_at,notnull"`
}

const pinStateRow = 1

// PinStore implements ports.PinStore and ports.AttemptCounter on the
// device database, so the lockout survives restarts.
type PinStore struct {
	db *bun.DB
}

// NewPinStore creates a new SQLite PIN state store.
func NewPinStore(db *bun.DB) *PinStore {
	return &PinStore{db: db}
}

// GetHash returns the stored hash, or "" when no PIN is set.
func (s *PinStore) GetHash(ctx context.Context) (string, error) {
	st, err := s.load(ctx, s.db)
	if err != nil {
		return "", err
	}
	return st.Hash, nil
}

// SetHash stores a new hash and clears the failure count.
func (s *PinStore) SetHash(ctx context.Context, hash string) error {
	_, err := s.db.NewInsert().
		Model(&pinStateModel{ID: pinStateRow, Hash: hash, UpdatedAt: time.Now().UnixMilli()}).
		On("CONFLICT (id) DO UPDATE").
		Set("hash = EXCLUDED.hash").
		Set("failures = 0").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("storing pin hash: %w", err)
	}
	return nil
}

// Failures returns the consecutive failed attempts.
func (s *PinStore) Failures(ctx context.Context) (int, error) {
	st, err := s.load(ctx, s.db)
	if err != nil {
		return 0, err
	}
	return st.Failures, nil
}

// RecordFailure increments the failure count and returns the new value.
func (s *PinStore) RecordFailure(ctx context.Context) (int, error) {
	var failures int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&pinStateModel{ID: pinStateRow, Failures: 1, UpdatedAt: time.Now().UnixMilli()}).
			On("CONFLICT (id) DO UPDATE").
			Set("failures = pin_state.failures + 1").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return err
		}
		st, err := s.load(ctx, tx)
		if err != nil {
			return err
		}
		failures = st.Failures
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recording pin failure: %w", err)
	}
	return failures, nil
}

// Reset clears the failure count.
func (s *PinStore) Reset(ctx context.Context) error {
	_, err := s.db.NewUpdate().Model((*pinStateModel)(nil)).
		Set("failures = 0").
		Set("updated_at = ?", time.Now().UnixMilli()).
		Where("id = ?", pinStateRow).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("resetting pin failures: %w", err)
	}
	return nil
}

func (s *PinStore) load(ctx context.Context, db bun.IDB) (*pinStateModel, error) {
	var st pinStateModel
	err := db.NewSelect().Model(&st).Where("id = ?", pinStateRow).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &pinStateModel{ID: pinStateRow}, nil
		}
		return nil, fmt.Errorf("loading pin state: %w", err)
	}
	return &st, nil
}
