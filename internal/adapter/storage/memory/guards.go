package memory

import (
	"context"
	"sync"
	"time"
)

// RedemptionGuard implements ports.RedemptionGuard in memory.
type RedemptionGuard struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

// NewRedemptionGuard creates an empty guard.
func NewRedemptionGuard() *RedemptionGuard {
	return &RedemptionGuard{claims: make(map[string]time.Time), now: time.Now}
}

func (g *RedemptionGuard) Claim(ctx context.Context, voucherID string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.claims[voucherID]; ok && (exp.IsZero() || now.Before(exp)) {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	g.claims[voucherID] = exp
	return true, nil
}

func (g *RedemptionGuard) Release(ctx context.Context, voucherID string) error {
	g.mu.Lock()
	delete(g.claims, voucherID)
	g.mu.Unlock()
	return nil
}

// SyncLock implements ports.SyncLock with a process-local mutex. The ttl is
// ignored: a holder in the same process cannot crash without releasing.
type SyncLock struct {
	mu sync.Mutex
}

// NewSyncLock creates an unlocked lock.
func NewSyncLock() *SyncLock {
	return &SyncLock{}
}

func (l *SyncLock) Acquire(ctx context.Context, ttl time.Duration) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, true, nil
}

// PinStore implements ports.PinStore and ports.AttemptCounter in memory.
type PinStore struct {
	mu       sync.Mutex
	hash     string
	failures int
}

// NewPinStore creates a store with no PIN set.
func NewPinStore() *PinStore {
	return &PinStore{}
}

func (s *PinStore) GetHash(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hash, nil
}

func (s *PinStore) SetHash(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hash = hash
	s.failures = 0
	return nil
}

func (s *PinStore) Failures(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures, nil
}

func (s *PinStore) RecordFailure(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return s.failures, nil
}

func (s *PinStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
	return nil
}
