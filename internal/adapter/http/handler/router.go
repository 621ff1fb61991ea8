package handler

import (
	"offline-wallet/internal/adapter/http/middleware"
	redisStore "offline-wallet/internal/adapter/storage/redis"
	"offline-wallet/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds request bodies; a voucher wire string is well under 4 KiB.
const maxBodyBytes = 64 << 10

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletUID      string
	Engine         ports.TransactionEngine
	Reconciler     ports.SyncReconciler
	Pin            ports.PinVerifier
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	r.Use(middleware.AuditLog(deps.Logger))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.WalletUID, deps.Logger))

	voucherHandler := NewVoucherHandler(deps.Engine)
	vouchers := v1.Group("/vouchers")
	{
		vouchers.POST("", rl("vouchers_issue"), voucherHandler.Issue)
		vouchers.POST("/redeem", rl("vouchers_redeem"), voucherHandler.Redeem)
		vouchers.POST("/:id/cancel", rl("vouchers_cancel"), voucherHandler.Cancel)
	}

	walletHandler := NewWalletHandler(deps.Engine)
	wallet := v1.Group("/wallet")
	{
		wallet.GET("/balance", rl("wallet"), walletHandler.GetBalance)
		wallet.GET("/entries", rl("wallet"), walletHandler.ListEntries)
		wallet.GET("/events", rl("wallet"), walletHandler.Events)
	}
	v1.GET("/identity", rl("wallet"), walletHandler.GetIdentity)

	if deps.Reconciler != nil {
		v1.POST("/sync", rl("sync"), NewSyncHandler(deps.Reconciler).Sync)
	}

	pinHandler := NewPinHandler(deps.Pin)
	pin := v1.Group("/pin")
	{
		pin.GET("/attempts", rl("wallet"), pinHandler.Attempts)
		pin.POST("/reset", rl("pin"), pinHandler.Reset)
	}

	return r
}
