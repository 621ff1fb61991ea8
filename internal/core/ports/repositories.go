package ports

import (
	"context"
	"crypto/ed25519"
	"time"

	"offline-wallet/internal/core/domain"
)

// LedgerObserver receives the full entry snapshot after each committed mutation.
type LedgerObserver func(entries []domain.LedgerEntry)

// LedgerStore is the device's append-only record of value movement.
// Mutations are serialized; each runs in exactly one storage transaction.
type LedgerStore interface {
	// Append persists the whole entry atomically and returns its local ID.
	// A second entry with the same (voucher ID, type) fails with DuplicateVoucher.
	Append(ctx context.Context, entry *domain.LedgerEntry) (int64, error)
	// Entries returns a snapshot, newest first.
	Entries(ctx context.Context) ([]domain.LedgerEntry, error)
	// UnsyncedEntries returns entries not yet mirrored remotely, oldest first.
	UnsyncedEntries(ctx context.Context) ([]domain.LedgerEntry, error)
	// MarkSynced is idempotent.
	MarkSynced(ctx context.Context, id int64) error
	// FindByVoucher returns nil, nil when no entry matches.
	FindByVoucher(ctx context.Context, voucherID string, typ domain.EntryType) (*domain.LedgerEntry, error)
	// FindByRemoteKey returns nil, nil when no entry matches.
	FindByRemoteKey(ctx context.Context, key string) (*domain.LedgerEntry, error)
	UpdateStatus(ctx context.Context, id int64, status domain.VoucherStatus) error
	Delete(ctx context.Context, id int64) error
	Balance(ctx context.Context) (domain.Amount, error)
	Subscribe(observer LedgerObserver) (unsubscribe func())
}

// PinStore persists the PIN hash.
type PinStore interface {
	// GetHash returns "" when no PIN has been set.
	GetHash(ctx context.Context) (string, error)
	SetHash(ctx context.Context, hash string) error
}

// AttemptCounter tracks consecutive failed PIN attempts. It never expires on
// its own; only Reset clears it.
type AttemptCounter interface {
	Failures(ctx context.Context) (int, error)
	RecordFailure(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// RedemptionGuard claims voucher IDs so concurrent redemptions of the same
// voucher cannot both pass the ledger check.
type RedemptionGuard interface {
	// Claim returns true if the voucher ID was not claimed yet.
	Claim(ctx context.Context, voucherID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, voucherID string) error
}

// SyncLock keeps at most one reconciliation running per wallet.
type SyncLock interface {
	// Acquire returns ok=false without error when the lock is held elsewhere.
	Acquire(ctx context.Context, ttl time.Duration) (release func(), ok bool, err error)
}

// RemoteStore is the server-side mirror of vouchers and transactions.
type RemoteStore interface {
	Upsert(ctx context.Context, collection, id string, fields map[string]any, policy domain.MergePolicy) error
	Query(ctx context.Context, collection string, filter domain.RemoteFilter) ([]domain.RemoteRecord, error)
}

// ContactDirectory resolves wallet UIDs to their signing public keys.
type ContactDirectory interface {
	// LookupPublicKey fails with UnknownSender when the UID is not known.
	LookupPublicKey(ctx context.Context, uid string) (ed25519.PublicKey, error)
	Contacts(ctx context.Context) ([]domain.Contact, error)
	Add(ctx context.Context, contact domain.Contact) error
}
