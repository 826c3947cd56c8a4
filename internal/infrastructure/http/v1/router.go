// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ledgercore/internal/config"
	"ledgercore/internal/core/tenant"
	"ledgercore/internal/domain/audit"
	"ledgercore/internal/domain/auth"
	"ledgercore/internal/domain/authz"
	"ledgercore/internal/domain/invoice"
	"ledgercore/internal/infrastructure/cache"
	"ledgercore/internal/infrastructure/http/v1/handlers"
	"ledgercore/internal/infrastructure/http/v1/middleware"
	"ledgercore/pkg/logger"
)

// Compound route guards, compiled once at startup. Single-permission
// checks go through RequirePermission; these cover predicates over more
// than one claim. Failure to compile panics before the server accepts
// traffic.
var (
	guardExport   = authz.MustCompileGuard(`"invoice:export" in permissions && role != "staff"`)
	guardPlatform = authz.MustCompileGuard(`group == "multi_tenant" && "platform:manage" in permissions`)
)

// RouterConfig holds the wired dependencies for the HTTP surface.
type RouterConfig struct {
	Config *config.Config
	Logger *logger.Logger

	Pool  *pgxpool.Pool
	Redis *redis.Client

	Resolver *tenant.Resolver
	Registry tenant.Registry

	TokenService   *auth.TokenService
	AuthService    *auth.Service
	InvoiceService *invoice.Service
	AuditService   *audit.Service

	Limiter cache.Limiter
	Engine  *authz.Engine
}

// NewRouter creates and configures the gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Global middleware (order matters).
	router.Use(middleware.Recovery())
	router.Use(middleware.SecurityHeaders(!cfg.Config.Development))
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.HostGate(cfg.Config.AllowedHosts))
	router.Use(middleware.RateLimit(cfg.Limiter, cfg.Config.RateLimitMax))

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.TokenService)
	tenantHandler := handlers.NewTenantHandler(cfg.Registry)
	invoiceHandler := handlers.NewInvoiceHandler(cfg.InvoiceService)
	auditHandler := handlers.NewAuditHandler(cfg.AuditService)
	schemaHandler := handlers.NewSchemaHandler(apiSchema())

	// Health endpoints: no host gate, no tenant, no auth.
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	router.GET("/api/schema", schemaHandler.Get)

	// Public auth endpoints. Tenant resolution is attempted (login and
	// registration need the scope) but absence is reported by the service,
	// not the middleware. Credential endpoints ride a stricter rate ladder.
	public := router.Group("/auth")
	public.Use(middleware.OptionalTenant(cfg.Resolver, cfg.AuditService))
	public.Use(middleware.PublicContext())
	{
		strict := public.Group("")
		strict.Use(middleware.AuthRateLimit(cfg.Limiter, cfg.Config.AuthRateLimitMax))
		{
			strict.POST("/login", authHandler.Login)
			strict.POST("/register", authHandler.Register)
			strict.POST("/password/reset", authHandler.RequestPasswordReset)
			strict.POST("/password/reset/confirm", authHandler.ConfirmPasswordReset)
		}

		public.POST("/token/refresh", authHandler.Refresh)
		public.POST("/token/blacklist", authHandler.Logout)
		public.POST("/email/verify", authHandler.VerifyEmail)
	}

	// Tenant-scoped API: verified identity, resolved tenant, assembled
	// request context, onboarding gate, then per-route guards.
	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.TokenService))
	api.Use(middleware.Tenant(cfg.Resolver, cfg.AuditService))
	api.Use(middleware.Context())
	exempt := make([]string, 0, len(cfg.Config.PublicRoutePrefixes)+len(onboardingExempt))
	exempt = append(exempt, cfg.Config.PublicRoutePrefixes...)
	exempt = append(exempt, onboardingExempt...)
	api.Use(middleware.Onboarding(exempt))
	{
		tenants := api.Group("/tenants")
		{
			tenants.GET("/me", tenantHandler.Me)
			tenants.GET("/onboarding/status", tenantHandler.OnboardingStatus)
			tenants.POST("/onboarding/advance",
				middleware.RequirePermission(cfg.Engine, authz.PermTenantManage),
				tenantHandler.AdvanceOnboarding)
		}

		invoices := api.Group("/invoices")
		{
			invoices.GET("", middleware.RequirePermission(cfg.Engine, authz.PermInvoiceRead), invoiceHandler.List)
			invoices.GET("/:id", middleware.RequirePermission(cfg.Engine, authz.PermInvoiceRead), invoiceHandler.Get)
			invoices.POST("", middleware.RequirePermission(cfg.Engine, authz.PermInvoiceWrite), invoiceHandler.Create)
			invoices.PUT("/:id", middleware.RequirePermission(cfg.Engine, authz.PermInvoiceWrite), invoiceHandler.Update)
			invoices.DELETE("/:id", middleware.RequirePermission(cfg.Engine, authz.PermInvoiceWrite), invoiceHandler.Delete)
			invoices.POST("/:id/approve", middleware.RequirePermission(cfg.Engine, authz.PermInvoiceApprove), invoiceHandler.Approve)
			invoices.POST("/:id/void", middleware.RequirePermission(cfg.Engine, authz.PermInvoiceApprove), invoiceHandler.Void)
			invoices.POST("/:id/export", middleware.RequireGuard(guardExport, cfg.AuditService), invoiceHandler.Export)
		}

		users := api.Group("/users")
		users.Use(middleware.RequirePermission(cfg.Engine, authz.PermUserManage))
		{
			users.GET("", authHandler.ListUsers)
			users.GET("/:id", authHandler.GetUser)
			users.PUT("/:id/role",
				middleware.RequirePermission(cfg.Engine, authz.PermRoleAssign),
				authHandler.ChangeRole)
		}

		auditGroup := api.Group("/audit")
		auditGroup.Use(middleware.RequirePermission(cfg.Engine, authz.PermAuditRead))
		{
			auditGroup.GET("", auditHandler.List)
			auditGroup.GET("/verify", auditHandler.Verify)
		}

		// Platform administration: multi-tenant group only.
		admin := api.Group("/admin")
		admin.Use(middleware.RequireGuard(guardPlatform, cfg.AuditService))
		{
			admin.POST("/tenants", tenantHandler.Create)
			admin.GET("/tenants", tenantHandler.List)
			admin.GET("/tenants/:id", tenantHandler.Get)
			admin.PUT("/tenants/:id/active", tenantHandler.SetActive)
			admin.POST("/tenants/:id/domains", tenantHandler.AddDomain)
		}
	}

	return router
}

// onboardingExempt lists route prefixes reachable before a tenant finishes
// setup, on top of the configured public prefixes.
var onboardingExempt = []string{
	"/api/v1/tenants/me",
	"/api/v1/tenants/onboarding",
	"/api/v1/admin",
}

// apiSchema enumerates the API surface for the public schema endpoint.
func apiSchema() []handlers.RouteSchema {
	return []handlers.RouteSchema{
		{Method: "POST", Path: "/auth/login", Public: true},
		{Method: "POST", Path: "/auth/register", Public: true},
		{Method: "POST", Path: "/auth/token/refresh", Public: true},
		{Method: "POST", Path: "/auth/token/blacklist", Public: true},
		{Method: "POST", Path: "/auth/password/reset", Public: true},
		{Method: "POST", Path: "/auth/password/reset/confirm", Public: true},
		{Method: "POST", Path: "/auth/email/verify", Public: true},
		{Method: "GET", Path: "/api/v1/tenants/me"},
		{Method: "GET", Path: "/api/v1/tenants/onboarding/status"},
		{Method: "POST", Path: "/api/v1/tenants/onboarding/advance", Permission: authz.PermTenantManage},
		{Method: "GET", Path: "/api/v1/invoices", Permission: authz.PermInvoiceRead},
		{Method: "GET", Path: "/api/v1/invoices/:id", Permission: authz.PermInvoiceRead},
		{Method: "POST", Path: "/api/v1/invoices", Permission: authz.PermInvoiceWrite},
		{Method: "PUT", Path: "/api/v1/invoices/:id", Permission: authz.PermInvoiceWrite},
		{Method: "DELETE", Path: "/api/v1/invoices/:id", Permission: authz.PermInvoiceWrite},
		{Method: "POST", Path: "/api/v1/invoices/:id/approve", Permission: authz.PermInvoiceApprove},
		{Method: "POST", Path: "/api/v1/invoices/:id/void", Permission: authz.PermInvoiceApprove},
		{Method: "POST", Path: "/api/v1/invoices/:id/export", Permission: authz.PermInvoiceExport},
		{Method: "GET", Path: "/api/v1/users", Permission: authz.PermUserManage},
		{Method: "GET", Path: "/api/v1/users/:id", Permission: authz.PermUserManage},
		{Method: "PUT", Path: "/api/v1/users/:id/role", Permission: authz.PermRoleAssign},
		{Method: "GET", Path: "/api/v1/audit", Permission: authz.PermAuditRead},
		{Method: "GET", Path: "/api/v1/audit/verify", Permission: authz.PermAuditRead},
		{Method: "POST", Path: "/api/v1/admin/tenants", Permission: authz.PermPlatformManage},
		{Method: "GET", Path: "/api/v1/admin/tenants", Permission: authz.PermPlatformManage},
		{Method: "GET", Path: "/api/v1/admin/tenants/:id", Permission: authz.PermPlatformManage},
		{Method: "PUT", Path: "/api/v1/admin/tenants/:id/active", Permission: authz.PermPlatformManage},
		{Method: "POST", Path: "/api/v1/admin/tenants/:id/domains", Permission: authz.PermPlatformManage},
	}
}
