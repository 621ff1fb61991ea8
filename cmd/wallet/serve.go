package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpHandler "offline-wallet/internal/adapter/http/handler"
	"offline-wallet/internal/core/domain"
	"offline-wallet/internal/core/ports"
	"offline-wallet/internal/service"
	"offline-wallet/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API and the background sync job",
		Long: `Serves the wallet API on server.host:server.port and, when a remote
store is configured and sync.enabled is set, reconciles the ledger every
sync.interval and shortly after each ledger change. Stops gracefully on
SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is required to serve the API")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()

			reconciler, probe, err := a.connectRemote(ctx)
			switch {
			case errors.Is(err, errNoRemote):
				opts.log.Info().Msg("No remote store configured, sync disabled")
			case err != nil:
				// The wallet works offline; sync can be retried by restarting.
				opts.log.Warn().Err(err).Msg("Remote store unreachable at startup, sync disabled")
				reconciler = nil
			}

			gin.SetMode(cfg.Server.Mode)
			router := httpHandler.SetupRouter(httpHandler.RouterDeps{
				WalletUID:      cfg.Wallet.UID,
				Engine:         a.engine,
				Reconciler:     reconciler,
				Pin:            a.pin,
				TokenSvc:       a.tokens,
				RateLimitStore: a.rateLimit,
				HealthCheckers: a.health,
				Logger:         logger.Component(opts.log, "http"),
			})

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			srv := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)

			if reconciler != nil && cfg.Sync.Enabled {
				startScheduler(gctx, g, a.engine, reconciler, probe, cfg.Sync.Interval, cfg.Sync.RetryBackoff, opts)
			}

			g.Go(func() error {
				opts.log.Info().Str("addr", addr).Msg("HTTP server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				opts.log.Info().Msg("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					opts.log.Error().Err(err).Msg("Server forced to shutdown")
				}
				return nil
			})

			err = g.Wait()
			opts.log.Info().Msg("Server exited")
			return err
		},
	}
}

// startScheduler runs the periodic sync job in g and asks it for an early
// run after every ledger change.
func startScheduler(
	ctx context.Context,
	g *errgroup.Group,
	engine ports.TransactionEngine,
	reconciler ports.SyncReconciler,
	probe ports.HealthChecker,
	interval time.Duration,
	backoff []time.Duration,
	opts *rootOptions,
) {
	scheduler := service.NewSyncScheduler(reconciler, probe, interval, backoff, logger.Component(opts.log, "scheduler"))
	unsubscribe := engine.Subscribe(func([]domain.LedgerEntry) { scheduler.Trigger() })

	g.Go(func() error {
		defer unsubscribe()
		scheduler.Run(ctx)
		return nil
	})
}
