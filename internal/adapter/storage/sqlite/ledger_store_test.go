package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"offline-wallet/internal/core/domain"
	"offline-wallet/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := Open(context.Background(), "file::memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestLedger(t *testing.T) *LedgerStore {
	return NewLedgerStore(openTestDB(t), zerolog.Nop())
}

func entryAt(typ domain.EntryType, amount string, ms int64, voucherID string) *domain.LedgerEntry {
	status := domain.VoucherStatusIssued
	if typ == domain.EntryTypeReceived {
		status = domain.VoucherStatusRedeemed
	}
	return &domain.LedgerEntry{
		VoucherID:    voucherID,
		Type:         typ,
		Amount:       domain.MustParseAmount(amount),
		Timestamp:    time.UnixMilli(ms),
		Counterparty: "U9",
		Status:       status,
	}
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	db := openTestDB(t)

	applied, err := RunMigrations(context.Background(), db.DB)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	var n int
	require.NoError(t, db.NewRaw("SELECT COUNT(*) FROM schema_migrations").Scan(context.Background(), &n))
	assert.Equal(t, 1, n)
}

func TestLedgerStore_AppendAssignsIncreasingIDs(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	e1 := entryAt(domain.EntryTypeReceived, "100.00", 2000, "vch_a")
	id1, err := store.Append(ctx, e1)
	require.NoError(t, err)
	assert.Equal(t, id1, e1.ID)

	id2, err := store.Append(ctx, entryAt(domain.EntryTypeSent, "50.00", 1000, "vch_b"))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)
}

func TestLedgerStore_EntriesOrderedByTimestamp(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	_, err := store.Append(ctx, entryAt(domain.EntryTypeReceived, "1.00", 3000, "vch_3"))
	require.NoError(t, err)
	_, err = store.Append(ctx, entryAt(domain.EntryTypeSent, "1.00", 1000, "vch_1"))
	require.NoError(t, err)
	_, err = store.Append(ctx, entryAt(domain.EntryTypeReceived, "1.00", 2000, "vch_2"))
	require.NoError(t, err)

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "vch_3", entries[0].VoucherID)
	assert.Equal(t, "vch_2", entries[1].VoucherID)
	assert.Equal(t, "vch_1", entries[2].VoucherID)

	unsynced, err := store.UnsyncedEntries(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 3)
	assert.Equal(t, "vch_1", unsynced[0].VoucherID)
	assert.Equal(t, "vch_3", unsynced[2].VoucherID)
}

func TestLedgerStore_DuplicateVoucher(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	_, err := store.Append(ctx, entryAt(domain.EntryTypeReceived, "25.50", 1000, "vch_dup"))
	require.NoError(t, err)

	_, err = store.Append(ctx, entryAt(domain.EntryTypeReceived, "25.50", 1000, "vch_dup"))
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicateVoucher))

	// The issuing side may hold the SENT row for the same voucher.
	_, err = store.Append(ctx, entryAt(domain.EntryTypeSent, "25.50", 1000, "vch_dup"))
	assert.NoError(t, err)

	balance, err := store.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(0), balance)
}

func TestLedgerStore_AppendRejectsInvalidEntries(t *testing.T) {
	store := newTestLedger(t)

	bad := entryAt(domain.EntryTypeSent, "1.00", 1000, "")
	bad.Amount = 0
	_, err := store.Append(context.Background(), bad)
	assert.True(t, apperror.HasCode(err, apperror.CodeLedgerWriteFailure))

	bad = entryAt("MOVED", "1.00", 1000, "")
	_, err = store.Append(context.Background(), bad)
	assert.True(t, apperror.HasCode(err, apperror.CodeLedgerWriteFailure))
}

func TestLedgerStore_AppendCancelledContextWritesNothing(t *testing.T) {
	store := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Append(ctx, entryAt(domain.EntryTypeSent, "1.00", 1000, "vch_x"))
	assert.Error(t, err)

	entries, err := store.Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedgerStore_MarkSynced(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	id, err := store.Append(ctx, entryAt(domain.EntryTypeSent, "5.00", 1000, "vch_s"))
	require.NoError(t, err)

	require.NoError(t, store.MarkSynced(ctx, id))
	require.NoError(t, store.MarkSynced(ctx, id))

	unsynced, err := store.UnsyncedEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	err = store.MarkSynced(ctx, 999)
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestLedgerStore_UpdateStatusIsMonotonic(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	id, err := store.Append(ctx, entryAt(domain.EntryTypeSent, "5.00", 1000, "vch_m"))
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(ctx, id, domain.VoucherStatusRedeemed))

	err = store.UpdateStatus(ctx, id, domain.VoucherStatusIssued)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidStatusTransition))

	got, err := store.FindByVoucher(ctx, "vch_m", domain.EntryTypeSent)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.VoucherStatusRedeemed, got.Status)
	assert.Equal(t, domain.MustParseAmount("5.00"), got.Amount)
	assert.Equal(t, int64(1000), got.Timestamp.UnixMilli())
}

func TestLedgerStore_FindAndDelete(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	got, err := store.FindByVoucher(ctx, "vch_none", domain.EntryTypeSent)
	require.NoError(t, err)
	assert.Nil(t, got)

	noVoucher := entryAt(domain.EntryTypeReceived, "2.00", 1700000000000, "")
	id, err := store.Append(ctx, noVoucher)
	require.NoError(t, err)

	got, err = store.FindByRemoteKey(ctx, "RECEIVED:1700000000000:U9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)

	require.NoError(t, store.Delete(ctx, id))
	err = store.Delete(ctx, id)
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestLedgerStore_ObserversSeeCommittedSnapshots(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	var balances []domain.Amount
	unsubscribe := store.Subscribe(func(entries []domain.LedgerEntry) {
		balances = append(balances, domain.Balance(entries))
	})

	id, err := store.Append(ctx, entryAt(domain.EntryTypeReceived, "100.00", 1000, "vch_1"))
	require.NoError(t, err)
	_, err = store.Append(ctx, entryAt(domain.EntryTypeSent, "40.00", 2000, "vch_2"))
	require.NoError(t, err)
	require.NoError(t, store.MarkSynced(ctx, id))
	require.NoError(t, store.MarkSynced(ctx, id)) // no change, no notification

	unsubscribe()
	_, err = store.Append(ctx, entryAt(domain.EntryTypeReceived, "1.00", 3000, "vch_3"))
	require.NoError(t, err)

	assert.Equal(t, []domain.Amount{10000, 6000, 6000}, balances)
}

func TestLedgerStore_ConcurrentAppends(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Append(ctx, entryAt(domain.EntryTypeReceived, "1.00", int64(1000+i), "vch_c"+string(rune('a'+i))))
			assert.NoError(t, err)
			_, err = store.Balance(ctx)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	balance, err := store.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(workers*100), balance)
}
