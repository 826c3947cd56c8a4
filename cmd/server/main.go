// Package main is the entry point for the ledgercore API server.
// Multi-tenant architecture: shared database with tenant-scoped queries
// and row-level security.
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

	"ledgercore/internal/config"
	"ledgercore/internal/core/tenant"
	"ledgercore/internal/domain/audit"
	"ledgercore/internal/domain/auth"
	"ledgercore/internal/domain/authz"
	"ledgercore/internal/domain/invoice"
	"ledgercore/internal/infrastructure/cache"
	v1 "ledgercore/internal/infrastructure/http/v1"
	"ledgercore/internal/infrastructure/storage/postgres"
	"ledgercore/internal/infrastructure/storage/postgres/audit_repo"
	"ledgercore/internal/infrastructure/storage/postgres/auth_repo"
	"ledgercore/internal/infrastructure/storage/postgres/guard"
	"ledgercore/internal/infrastructure/storage/postgres/invoice_repo"
	"ledgercore/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting ledgercore server", "rls_enabled", cfg.EnableRLS)

	// --- Database ---
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool, cfg.EnableRLS)

	// --- Redis ---
	// Tenant cache and rate limiting degrade gracefully without redis;
	// the token blacklist does not, so startup still fails hard here.
	rdb, err := cache.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err, "addr", cfg.RedisAddr)
	}
	defer func() { _ = rdb.Close() }()
	log.Info("redis connection established")

	blacklist := cache.NewTokenBlacklist(rdb)
	limiter := cache.NewRedisLimiter(rdb, time.Duration(cfg.RateLimitWindowSec)*time.Second)

	// --- Tenant registry ---
	registry := tenant.NewCachedRegistry(
		tenant.NewPostgresRegistry(pool.Pool),
		rdb,
		time.Duration(cfg.TenantCacheTTLSec)*time.Second,
	)
	resolver := tenant.NewResolver(registry, cfg.AllowedHosts)

	// --- Audit ---
	auditRepo, err := audit_repo.NewAuditRepo(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit repository", "error", err)
	}
	defer auditRepo.Close()

	spool := audit.NewSpool(auditRepo, 1024)
	spool.Start(ctx)
	auditService := audit.NewService(auditRepo, spool)
	defer auditService.Close()

	// --- Auth ---
	tokenConfig := auth.DefaultTokenConfig(cfg.SigningSecret)
	tokenConfig.AccessTTL = cfg.AccessTTL
	tokenConfig.RefreshTTL = cfg.RefreshTTL
	tokenService := auth.NewTokenService(tokenConfig, blacklist)

	userRepo := auth_repo.NewUserRepo(txManager, auditService)
	actionTokenRepo := auth_repo.NewActionTokenRepo(txManager, auditService)

	authService := auth.NewService(
		userRepo,
		actionTokenRepo,
		registry,
		tokenService,
		txManager,
		auditService,
		nil, // log notifier; a mail transport slots in here
		auth.DefaultServiceConfig(),
	)

	// --- Invoices ---
	invoiceRepo := invoice_repo.NewInvoiceRepo(txManager, auditService)
	invoiceService := invoice.NewService(invoiceRepo, txManager, auditService)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Config:         cfg,
		Logger:         log,
		Pool:           pool.Pool,
		Redis:          rdb,
		Resolver:       resolver,
		Registry:       registry,
		TokenService:   tokenService,
		AuthService:    authService,
		InvoiceService: invoiceService,
		AuditService:   auditService,
		Limiter:        limiter,
		Engine:         authz.NewEngine(),
	})

	// --- Retention sweeps ---
	go runRetention(ctx, log, registry, auditService, actionTokenRepo, cfg.AuditRetentionDays)

	// --- HTTP server ---
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// runRetention periodically purges expired audit records and stale action
// tokens for every active tenant.
func runRetention(
	ctx context.Context,
	log *logger.Logger,
	registry tenant.Registry,
	audits *audit.Service,
	tokens *auth_repo.ActionTokenRepo,
	retentionDays int,
) {
	if retentionDays <= 0 {
		return
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour

	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// The token sweep crosses every tenant, so it runs in an audited
		// unchecked session.
		sweepCtx, err := guard.OpenUnchecked(ctx, audits, "scheduled action token cleanup")
		if err != nil {
			log.Warnw("retention sweep skipped, unchecked session refused", "error", err)
			continue
		}
		if n, err := tokens.CleanupExpired(sweepCtx); err != nil {
			log.Warnw("action token cleanup failed", "error", err)
		} else if n > 0 {
			log.Infow("expired action tokens removed", "count", n)
		}

		tenants, err := registry.ListActive(ctx)
		if err != nil {
			log.Warnw("retention sweep skipped, tenant listing failed", "error", err)
			continue
		}
		for _, t := range tenants {
			if _, err := audits.PurgeExpired(ctx, t.ID, retention); err != nil {
				log.Warnw("audit purge failed", "tenant_id", t.ID, "error", err)
			}
		}
	}
}
