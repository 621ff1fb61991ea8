package service

import (
	"context"
	"fmt"
	"time"

	"offline-wallet/internal/core/domain"
	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/apperror"

	"github.com/rs/zerolog"
)

// DefaultSyncLockTTL bounds how long a crashed run can hold the sync lock.
const DefaultSyncLockTTL = 2 * time.Minute

// SyncReconcilerImpl implements ports.SyncReconciler.
type SyncReconcilerImpl struct {
	uid     string
	ledger  ports.LedgerStore
	remote  ports.RemoteStore
	lock    ports.SyncLock
	lockTTL time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewSyncReconciler creates a reconciler for the wallet identified by uid.
func NewSyncReconciler(
	uid string,
	ledger ports.LedgerStore,
	remote ports.RemoteStore,
	lock ports.SyncLock,
	lockTTL time.Duration,
	log zerolog.Logger,
) *SyncReconcilerImpl {
	if lockTTL <= 0 {
		lockTTL = DefaultSyncLockTTL
	}
	return &SyncReconcilerImpl{
		uid:     uid,
		ledger:  ledger,
		remote:  remote,
		lock:    lock,
		lockTTL: lockTTL,
		now:     time.Now,
		log:     log.With().Str("wallet_uid", uid).Logger(),
	}
}

// SyncNow pushes unsynced entries, then pulls remote records concerning this
// wallet. Items that fail are reported and retried on the next run; entries
// already marked synced stay synced. A report with failures comes back
// together with a SyncPartial error.
func (s *SyncReconcilerImpl) SyncNow(ctx context.Context) (*domain.SyncReport, error) {
	release, ok, err := s.lock.Acquire(ctx, s.lockTTL)
	if err != nil {
		return nil, apperror.ErrRemoteUnavailable(fmt.Errorf("acquire sync lock: %w", err))
	}
	if !ok {
		return nil, apperror.ErrSyncInProgress()
	}
	defer release()

	report := &domain.SyncReport{StartedAt: s.now()}
	finish := func(err error) (*domain.SyncReport, error) {
		report.FinishedAt = s.now()
		ev := s.log.Info()
		if err != nil || report.Partial() {
			ev = s.log.Warn().Err(err)
		}
		ev.Int("pushed", report.Pushed).
			Int("pulled", report.Pulled).
			Int("updated", report.Updated).
			Int("failures", len(report.Failures)).
			Dur("took", report.FinishedAt.Sub(report.StartedAt)).
			Msg("Sync finished")

		if err != nil {
			return report, err
		}
		if report.Partial() {
			return report, apperror.ErrSyncPartial(len(report.Failures))
		}
		return report, nil
	}

	if err := s.push(ctx, report); err != nil {
		return finish(err)
	}
	if err := s.pullVouchers(ctx, report); err != nil {
		return finish(err)
	}
	if err := s.pullTransactions(ctx, report); err != nil {
		return finish(err)
	}
	return finish(nil)
}

func (s *SyncReconcilerImpl) push(ctx context.Context, report *domain.SyncReport) error {
	entries, err := s.ledger.UnsyncedEntries(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("read unsynced entries: %w", err))
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		key := e.RemoteKey()
		collection := domain.RemoteCollection(e)
		if err := s.remote.Upsert(ctx, collection, key, domain.RemoteFields(e, s.uid), domain.MergeFields); err != nil {
			s.log.Warn().Err(err).Int64("entry_id", e.ID).Str("key", key).Msg("Push failed")
			report.Fail(e.ID, key, err)
			continue
		}
		if err := s.ledger.MarkSynced(ctx, e.ID); err != nil {
			report.Fail(e.ID, key, err)
			continue
		}
		report.Pushed++
	}
	return nil
}

func (s *SyncReconcilerImpl) pullVouchers(ctx context.Context, report *domain.SyncReport) error {
	records, err := s.remote.Query(ctx, domain.CollectionVouchers, domain.PartyFilter(domain.CollectionVouchers, s.uid))
	if err != nil {
		return apperror.ErrRemoteUnavailable(fmt.Errorf("query vouchers: %w", err))
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, remote := range rec.EntriesFor(s.uid) {
			if err := s.mergeVoucher(ctx, rec, remote, report); err != nil {
				s.log.Warn().Err(err).Str("voucher_id", rec.ID).Str("type", string(remote.Type)).Msg("Pull failed")
				report.Fail(0, rec.ID, err)
			}
		}
	}
	return nil
}

func (s *SyncReconcilerImpl) mergeVoucher(ctx context.Context, rec domain.RemoteRecord, remote domain.LedgerEntry, report *domain.SyncReport) error {
	local, err := s.ledger.FindByVoucher(ctx, remote.VoucherID, remote.Type)
	if err != nil {
		return err
	}

	if local == nil {
		if remote.Type == domain.EntryTypeSent && remote.Status == domain.VoucherStatusCancelled {
			return nil
		}
		if _, err := s.ledger.Append(ctx, &remote); err != nil {
			if apperror.HasCode(err, apperror.CodeDuplicateVoucher) {
				return nil
			}
			return err
		}
		report.Pulled++
		return nil
	}

	if local.Type == domain.EntryTypeSent &&
		local.Status == domain.VoucherStatusIssued &&
		rec.Status() == domain.VoucherStatusRedeemed {
		if err := s.ledger.UpdateStatus(ctx, local.ID, domain.VoucherStatusRedeemed); err != nil {
			return err
		}
		report.Updated++
	}
	return nil
}

func (s *SyncReconcilerImpl) pullTransactions(ctx context.Context, report *domain.SyncReport) error {
	records, err := s.remote.Query(ctx, domain.CollectionTransactions, domain.PartyFilter(domain.CollectionTransactions, s.uid))
	if err != nil {
		return apperror.ErrRemoteUnavailable(fmt.Errorf("query transactions: %w", err))
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, remote := range rec.EntriesFor(s.uid) {
			key := remote.RemoteKey()
			local, err := s.ledger.FindByRemoteKey(ctx, key)
			if err == nil && local == nil {
				_, err = s.ledger.Append(ctx, &remote)
				if err == nil {
					report.Pulled++
				}
			}
			if err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("Pull failed")
				report.Fail(0, key, err)
			}
		}
	}
	return nil
}
