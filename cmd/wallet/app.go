package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"offline-wallet/config"
	"offline-wallet/internal/adapter/contacts"
	"offline-wallet/internal/adapter/keystore"
	"offline-wallet/internal/adapter/storage/memory"
	mongoStorage "offline-wallet/internal/adapter/storage/mongo"
	pgStorage "offline-wallet/internal/adapter/storage/postgres"
	redisStorage "offline-wallet/internal/adapter/storage/redis"
	"offline-wallet/internal/adapter/storage/sqlite"
	"offline-wallet/internal/core/domain"
	"offline-wallet/internal/core/ports"
	"offline-wallet/internal/service"
	"offline-wallet/pkg/apperror"
	"offline-wallet/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
)

// errNoRemote is returned by commands that need a remote store when
// remote.backend is "none".
var errNoRemote = errors.New(`no remote store configured (remote.backend is "none")`)

// app is the wired wallet: the device database, key vault, PIN, contacts
// and the engine on top of them. Remote and Redis pieces are optional.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	db       *bun.DB
	keys     *service.KeyManagerService
	pin      *service.PinService
	contacts ports.ContactDirectory
	ledger   ports.LedgerStore
	engine   *service.TransactionEngineImpl
	tokens   *service.JWTTokenService

	syncLock  ports.SyncLock
	rateLimit *redisStorage.RateLimitStore
	health    []ports.HealthChecker

	closers []func()
}

// openApp wires the wallet from cfg. The remote store is not connected
// here; see connectRemote.
func openApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Wallet.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sqlite.Open(ctx, cfg.LedgerDSN(), logger.Component(log, "sqlite"))
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, func() { _ = db.Close() })

	vault, err := keystore.NewSQLVault(db, cfg.Keys.MasterKey, logger.Component(log, "keystore"))
	if err != nil {
		return nil, err
	}
	a.keys = service.NewKeyManagerService(vault, logger.Component(log, "keys"))
	if err := vault.Open(ctx); err != nil {
		return nil, fmt.Errorf("open key vault: %w", err)
	}

	pinStore := sqlite.NewPinStore(db)
	var (
		attempts ports.AttemptCounter  = pinStore
		guard    ports.RedemptionGuard = memory.NewRedemptionGuard()
	)
	a.syncLock = memory.NewSyncLock()

	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		guards := redisStorage.NewGuards(rdb, cfg.Wallet.UID, logger.Component(log, "sync_lock"))
		attempts, guard, a.syncLock = guards.Attempts, guards.Redemption, guards.SyncLock
		a.rateLimit = guards.RateLimit
		a.health = append(a.health, guards.Health)
	}

	a.pin = service.NewPinService(pinStore, attempts, service.NewArgon2HashService(), service.PinPolicy{
		MaxAttempts: cfg.Pin.MaxAttempts,
		MinLength:   cfg.Pin.MinLength,
		MaxLength:   cfg.Pin.MaxLength,
	}, logger.Component(log, "pin"))

	self := domain.Contact{UID: cfg.Wallet.UID, Name: "self"}
	if pub, err := vault.PublicKey(ctx); err == nil {
		self.PublicKey = pub
	} else if !apperror.HasCode(err, apperror.CodeKeyNotInitialized) {
		return nil, err
	}
	dir, err := contacts.OpenFileDirectory(cfg.ContactsFile(), self, logger.Component(log, "contacts"))
	if err != nil {
		return nil, err
	}
	a.contacts = dir

	a.ledger = sqlite.NewLedgerStore(db, logger.Component(log, "ledger"))
	codec := service.NewVoucherCodecService(a.keys, time.Now)
	a.engine = service.NewTransactionEngine(cfg.Wallet.UID, a.keys, codec, a.ledger, a.pin, a.contacts, guard,
		logger.Component(log, "engine"),
		service.WithRedeemClaimTTL(cfg.Sync.RedeemTTL),
	)

	a.tokens = newTokenService(cfg)
	return a, nil
}

func newTokenService(cfg *config.Config) *service.JWTTokenService {
	return service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
}

// connectRemote opens the configured remote store and returns a reconciler
// over it, plus a health checker the scheduler uses as its reachability
// probe.
func (a *app) connectRemote(ctx context.Context) (ports.SyncReconciler, ports.HealthChecker, error) {
	var (
		remote ports.RemoteStore
		probe  ports.HealthChecker
	)

	switch a.cfg.Remote.Backend {
	case config.RemotePostgres:
		pool, err := pgStorage.NewPool(ctx, a.cfg.Remote.Postgres, a.log)
		if err != nil {
			return nil, nil, apperror.ErrRemoteUnavailable(err)
		}
		a.closers = append(a.closers, pool.Close)

		store := pgStorage.NewRemoteStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, apperror.ErrRemoteUnavailable(err)
		}
		remote, probe = store, pgStorage.NewHealthCheck(pool)

	case config.RemoteMongo:
		client, err := mongoStorage.Connect(ctx, a.cfg.Remote.Mongo, a.log)
		if err != nil {
			return nil, nil, apperror.ErrRemoteUnavailable(err)
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })

		store := mongoStorage.NewRemoteStore(client.Database(a.cfg.Remote.Mongo.Database), logger.Component(a.log, "mongo"))
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, nil, apperror.ErrRemoteUnavailable(err)
		}
		remote, probe = store, mongoStorage.NewHealthCheck(client)

	default:
		return nil, nil, errNoRemote
	}

	a.health = append(a.health, probe)
	reconciler := service.NewSyncReconciler(a.cfg.Wallet.UID, a.ledger, remote, a.syncLock, a.cfg.Sync.LockTTL,
		logger.Component(a.log, "sync"))
	return reconciler, probe, nil
}

// Close releases everything openApp and connectRemote opened, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
