// Package memory holds in-process implementations of the storage ports,
// used by tests and ephemeral wallets.
package memory

import (
	"context"
	"errors"
	"sync"

	"offline-wallet/internal/core/domain"
	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/apperror"
)

// LedgerStore implements ports.LedgerStore in memory.
type LedgerStore struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
	nextID  int64

	obsMu     sync.Mutex
	observers map[int]ports.LedgerObserver
	nextObs   int
}

// NewLedgerStore creates an empty in-memory ledger.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{observers: make(map[int]ports.LedgerObserver)}
}

func (s *LedgerStore) Append(ctx context.Context, entry *domain.LedgerEntry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperror.ErrLedgerWrite(err)
	}
	if entry == nil || !entry.Type.Valid() || !entry.Amount.IsPositive() || !entry.Status.Valid() {
		return 0, apperror.ErrLedgerWrite(errors.New("invalid entry"))
	}

	s.mu.Lock()
	if entry.VoucherID != "" {
		for _, e := range s.entries {
			if e.VoucherID == entry.VoucherID && e.Type == entry.Type {
				s.mu.Unlock()
				return 0, apperror.ErrDuplicateVoucher()
			}
		}
	}
	s.nextID++
	stored := *entry
	stored.ID = s.nextID
	s.entries = append(s.entries, stored)
	s.mu.Unlock()

	entry.ID = stored.ID
	s.notify()
	return stored.ID, nil
}

func (s *LedgerStore) Entries(ctx context.Context) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	out := append([]domain.LedgerEntry(nil), s.entries...)
	s.mu.RUnlock()

	domain.SortNewestFirst(out)
	return out, nil
}

func (s *LedgerStore) UnsyncedEntries(ctx context.Context) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	var out []domain.LedgerEntry
	for _, e := range s.entries {
		if !e.Synced {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	domain.SortOldestFirst(out)
	return out, nil
}

func (s *LedgerStore) MarkSynced(ctx context.Context, id int64) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return apperror.ErrNotFound("Ledger entry")
	}
	changed := !s.entries[i].Synced
	s.entries[i].Synced = true
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return nil
}

func (s *LedgerStore) FindByVoucher(ctx context.Context, voucherID string, typ domain.EntryType) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.VoucherID == voucherID && e.Type == typ {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (s *LedgerStore) FindByRemoteKey(ctx context.Context, key string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.RemoteKey() == key {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (s *LedgerStore) UpdateStatus(ctx context.Context, id int64, status domain.VoucherStatus) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return apperror.ErrNotFound("Ledger entry")
	}
	current := s.entries[i].Status
	if !current.CanTransition(status) {
		s.mu.Unlock()
		return apperror.ErrInvalidStatusTransition(string(current), string(status))
	}
	s.entries[i].Status = status
	s.mu.Unlock()

	if current != status {
		s.notify()
	}
	return nil
}

func (s *LedgerStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return apperror.ErrNotFound("Ledger entry")
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *LedgerStore) Balance(ctx context.Context) (domain.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Balance(s.entries), nil
}

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

func (s *LedgerStore) notify() {
	s.obsMu.Lock()
	observers := make([]ports.LedgerObserver, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.obsMu.Unlock()

	if len(observers) == 0 {
		return
	}
	snapshot, _ := s.Entries(context.Background())
	for _, o := range observers {
		o(snapshot)
	}
}

func (s *LedgerStore) indexOf(id int64) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}

