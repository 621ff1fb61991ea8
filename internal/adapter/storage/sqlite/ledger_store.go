package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"offline-wallet/internal/core/domain"
	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
)

// ledgerEntryModel maps the ledger_entries table.
type ledgerEntryModel struct {
	bun.BaseModel `bun:"table:ledger_entries"`

	ID           int64  `bun:"id,pk,autoincrement"`
	VoucherID    string `bun:"voucher_id,notnull"`
	Type         string `bun:"type,notnull"`
	AmountMinor  int64  `bun:"amount_minor,notnull"`
	TimestampMS  int64  `bun:"timestamp_ms,notnull"`
	Details      string `bun:"details,notnull"`
	Counterparty string `bun:"counterparty,notnull"`
	Status       string `bun:"status,notnull"`
	Signature    string `bun:"signature,notnull"`
	Synced       bool   `bun:"synced,notnull"`
	RemoteKey    string `bun:"remote_key,notnull"`
}

func toModel(e *domain.LedgerEntry) *ledgerEntryModel {
	return &ledgerEntryModel{
		VoucherID:    e.VoucherID,
		Type:         string(e.Type),
		AmountMinor:  e.Amount.MinorUnits(),
		TimestampMS:  e.Timestamp.UnixMilli(),
		Details:      e.Details,
		Counterparty: e.Counterparty,
		Status:       string(e.Status),
		Signature:    e.Signature,
		Synced:       e.Synced,
		RemoteKey:    e.RemoteKey(),
	}
}

func (m *ledgerEntryModel) toDomain() domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:           m.ID,
		VoucherID:    m.VoucherID,
		Type:         domain.EntryType(m.Type),
		Amount:       domain.Amount(m.AmountMinor),
		Timestamp:    time.UnixMilli(m.TimestampMS),
		Details:      m.Details,
		Counterparty: m.Counterparty,
		Status:       domain.VoucherStatus(m.Status),
		Signature:    m.Signature,
		Synced:       m.Synced,
	}
}

// LedgerStore implements ports.LedgerStore on the device SQLite database.
// Writers are serialized by mu and each mutation is a single transaction.
type LedgerStore struct {
	db  *bun.DB
	log zerolog.Logger
	mu  sync.RWMutex

	obsMu     sync.Mutex
	observers map[int]ports.LedgerObserver
	nextObs   int
}

// NewLedgerStore creates a new SQLite-backed ledger.
func NewLedgerStore(db *bun.DB, log zerolog.Logger) *LedgerStore {
	return &LedgerStore{
		db:        db,
		log:       log,
		observers: make(map[int]ports.LedgerObserver),
	}
}

// Append inserts the entry and returns its ID.
func (s *LedgerStore) Append(ctx context.Context, entry *domain.LedgerEntry) (int64, error) {
	if err := validateEntry(entry); err != nil {
		return 0, apperror.ErrLedgerWrite(err)
	}

	s.mu.Lock()
	m := toModel(entry)
	err := s.inTx(ctx, func(tx bun.Tx) error {
		res, err := tx.NewInsert().Model(m).Exec(ctx)
		if err != nil {
			return err
		}
		if m.ID == 0 {
			if m.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("reading inserted id: %w", err)
			}
		}
		return nil
	})
	s.mu.Unlock()

	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperror.ErrDuplicateVoucher()
		}
		return 0, apperror.ErrLedgerWrite(fmt.Errorf("inserting ledger entry: %w", err))
	}

	entry.ID = m.ID
	s.notify(ctx)
	return m.ID, nil
}

// Entries returns all entries, newest first.
func (s *LedgerStore) Entries(ctx context.Context) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []ledgerEntryModel
	if err := s.db.NewSelect().Model(&rows).OrderExpr("timestamp_ms DESC, id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("listing ledger entries: %w", err)
	}
	return toDomainList(rows), nil
}

// UnsyncedEntries returns entries with synced=false, oldest first.
func (s *LedgerStore) UnsyncedEntries(ctx context.Context) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []ledgerEntryModel
	err := s.db.NewSelect().Model(&rows).
		Where("synced = ?", false).
		OrderExpr("timestamp_ms ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing unsynced entries: %w", err)
	}
	return toDomainList(rows), nil
}

// MarkSynced flips the synced flag. Already-synced entries are left alone.
func (s *LedgerStore) MarkSynced(ctx context.Context, id int64) error {
	changed := false

	s.mu.Lock()
	err := s.inTx(ctx, func(tx bun.Tx) error {
		m, err := findByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if m.Synced {
			return nil
		}
		if _, err := tx.NewUpdate().Model((*ledgerEntryModel)(nil)).
			Set("synced = ?", true).
			Where("id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		changed = true
		return nil
	})
	s.mu.Unlock()

	if err != nil {
		return wrapWrite(err, "marking entry synced")
	}
	if changed {
		s.notify(ctx)
	}
	return nil
}

// FindByVoucher returns the entry for (voucherID, type), or nil.
func (s *LedgerStore) FindByVoucher(ctx context.Context, voucherID string, typ domain.EntryType) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m ledgerEntryModel
	err := s.db.NewSelect().Model(&m).
		Where("voucher_id = ?", voucherID).
		Where("type = ?", string(typ)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding entry by voucher: %w", err)
	}
	e := m.toDomain()
	return &e, nil
}

// FindByRemoteKey returns the entry mirrored under key, or nil.
func (s *LedgerStore) FindByRemoteKey(ctx context.Context, key string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m ledgerEntryModel
	err := s.db.NewSelect().Model(&m).
		Where("remote_key = ?", key).
		OrderExpr("id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding entry by remote key: %w", err)
	}
	e := m.toDomain()
	return &e, nil
}

// UpdateStatus moves the voucher status forward. Only the status column changes.
func (s *LedgerStore) UpdateStatus(ctx context.Context, id int64, status domain.VoucherStatus) error {
	changed := false

	s.mu.Lock()
	err := s.inTx(ctx, func(tx bun.Tx) error {
		m, err := findByID(ctx, tx, id)
		if err != nil {
			return err
		}
		current := domain.VoucherStatus(m.Status)
		if !current.CanTransition(status) {
			return apperror.ErrInvalidStatusTransition(string(current), string(status))
		}
		if current == status {
			return nil
		}
		if _, err := tx.NewUpdate().Model((*ledgerEntryModel)(nil)).
			Set("status = ?", string(status)).
			Where("id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		changed = true
		return nil
	})
	s.mu.Unlock()

	if err != nil {
		return wrapWrite(err, "updating entry status")
	}
	if changed {
		s.notify(ctx)
	}
	return nil
}

// Delete removes an entry. Only voucher cancellation uses it.
func (s *LedgerStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	err := s.inTx(ctx, func(tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*ledgerEntryModel)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.ErrNotFound("Ledger entry")
		}
		return nil
	})
	s.mu.Unlock()

	if err != nil {
		return wrapWrite(err, "deleting entry")
	}
	s.notify(ctx)
	return nil
}

// Balance derives the balance from every entry.
func (s *LedgerStore) Balance(ctx context.Context) (domain.Amount, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return 0, err
	}
	return domain.Balance(entries), nil
}

// Subscribe registers an observer until the returned func is called.
func (s *LedgerStore) Subscribe(observer ports.LedgerObserver) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = observer
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// notify hands every observer a fresh snapshot. The mutation is already
// committed, so a failed snapshot read is only logged.
func (s *LedgerStore) notify(ctx context.Context) {
	s.obsMu.Lock()
	observers := make([]ports.LedgerObserver, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.obsMu.Unlock()

	if len(observers) == 0 {
		return
	}

	snapshot, err := s.Entries(context.WithoutCancel(ctx))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read ledger snapshot for observers")
		return
	}
	for _, o := range observers {
		o(snapshot)
	}
}

func (s *LedgerStore) inTx(ctx context.Context, fn func(tx bun.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func findByID(ctx context.Context, tx bun.Tx, id int64) (*ledgerEntryModel, error) {
	var m ledgerEntryModel
	if err := tx.NewSelect().Model(&m).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrNotFound("Ledger entry")
		}
		return nil, err
	}
	return &m, nil
}

func toDomainList(rows []ledgerEntryModel) []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out
}

func validateEntry(e *domain.LedgerEntry) error {
	switch {
	case e == nil:
		return errors.New("nil entry")
	case !e.Type.Valid():
		return fmt.Errorf("invalid entry type %q", e.Type)
	case !e.Amount.IsPositive():
		return errors.New("amount must be positive")
	case !e.Status.Valid():
		return fmt.Errorf("invalid status %q", e.Status)
	case e.Timestamp.IsZero():
		return errors.New("timestamp is required")
	}
	return nil
}

// wrapWrite passes typed errors through and wraps the rest as ledger write failures.
func wrapWrite(err error, action string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.ErrLedgerWrite(fmt.Errorf("%s: %w", action, err))
}
