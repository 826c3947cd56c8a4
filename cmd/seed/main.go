// Package main provides a CLI tool for bootstrapping a fresh deployment:
// the platform tenant, its operator account and an optional demo tenant.
// The tool is idempotent; rerunning it never duplicates data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ledgercore/internal/config"
	"ledgercore/internal/core/id"
	"ledgercore/internal/core/reqctx"
	"ledgercore/internal/core/tenant"
	"ledgercore/internal/domain/auth"
	"ledgercore/internal/domain/authz"
	"ledgercore/internal/infrastructure/storage/postgres"
	"ledgercore/internal/infrastructure/storage/postgres/auth_repo"
	"ledgercore/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("configuration error", "error", err)
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool, cfg.EnableRLS)
	registry := tenant.NewPostgresRegistry(pool.Pool)
	// The audit trail starts once the server handles requests; bootstrap
	// writes run without an auditor.
	users := auth_repo.NewUserRepo(txManager, nil)

	adminEmail := getEnv("SEED_ADMIN_EMAIL", "admin@ledgercore.local")
	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPassword == "" {
		log.Fatal("SEED_ADMIN_PASSWORD environment variable is required")
	}

	platform, err := ensureTenant(ctx, registry, tenant.CreateInput{
		Slug:        "platform",
		DisplayName: "Platform Operations",
		Plan:        tenant.PlanEnterprise,
	}, log)
	if err != nil {
		log.Fatalw("failed to ensure platform tenant", "error", err)
	}

	if err := ensureOnboarded(ctx, registry, platform); err != nil {
		log.Fatalw("failed to complete platform onboarding", "error", err)
	}

	if err := ensureUser(ctx, users, platform, adminEmail, adminPassword, authz.RolePlatformAdmin, log); err != nil {
		log.Fatalw("failed to ensure platform admin", "error", err)
	}

	if err := loadPresets(ctx, txManager, log); err != nil {
		log.Fatalw("failed to load presets", "error", err)
	}

	if getEnv("SEED_DEMO", "false") == "true" {
		if err := seedDemoTenant(ctx, registry, users, log); err != nil {
			log.Fatalw("failed to seed demo tenant", "error", err)
		}
	}

	log.Info("seed completed")
}

// ensureTenant creates the tenant unless one with the slug already exists,
// in which case the existing one is returned.
func ensureTenant(ctx context.Context, registry tenant.Registry, input tenant.CreateInput, log *logger.Logger) (*tenant.Tenant, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	existing, err := registry.GetBySlug(ctx, input.Slug)
	if err == nil {
		log.Infow("tenant already exists", "slug", input.Slug, "tenant_id", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, tenant.ErrTenantNotFound) {
		return nil, err
	}

	t := tenant.NewFromInput(input)
	if err := registry.Create(ctx, t); err != nil {
		return nil, err
	}
	log.Infow("tenant created", "slug", t.Slug, "tenant_id", t.ID)
	return t, nil
}

func ensureOnboarded(ctx context.Context, registry tenant.Registry, t *tenant.Tenant) error {
	for !t.Onboarded() {
		next := tenant.OnboardingInProgress
		if t.OnboardingStatus == tenant.OnboardingInProgress {
			next = tenant.OnboardingCompleted
		}
		if err := registry.AdvanceOnboarding(ctx, t.ID, next); err != nil {
			return err
		}
		t.OnboardingStatus = next
	}
	return nil
}

// ensureUser creates the account inside the tenant's scope unless the
// email is already taken there.
func ensureUser(ctx context.Context, users *auth_repo.UserRepo, t *tenant.Tenant, email, password string, role authz.Role, log *logger.Logger) error {
	scoped, cancel := reqctx.OpenScope(ctx, &reqctx.Context{TenantID: t.ID})
	defer cancel()

	exists, err := users.Exists(scoped, email)
	if err != nil {
		return err
	}
	if exists {
		log.Infow("user already exists", "email", email, "tenant_id", t.ID)
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u := auth.NewUser(t.ID, email, string(hash), role)
	now := time.Now()
	u.EmailVerified = true
	u.EmailVerifiedAt = &now

	if err := users.Create(scoped, u); err != nil {
		return err
	}
	log.Infow("user created", "email", u.Email, "role", role, "tenant_id", t.ID)
	return nil
}

func seedDemoTenant(ctx context.Context, registry tenant.Registry, users *auth_repo.UserRepo, log *logger.Logger) error {
	demo, err := ensureTenant(ctx, registry, tenant.CreateInput{
		Slug:        "acme",
		DisplayName: "Acme Accounting",
		Plan:        tenant.PlanStandard,
	}, log)
	if err != nil {
		return err
	}

	if err := ensureOnboarded(ctx, registry, demo); err != nil {
		return err
	}

	if err := ensureDomain(ctx, registry, demo, "acme.ledgercore.local"); err != nil {
		return err
	}

	accounts := []struct {
		email string
		role  authz.Role
	}{
		{"owner@acme.test", authz.RoleTenantAdmin},
		{"cfo@acme.test", authz.RoleCFO},
		{"books@acme.test", authz.RoleAccountant},
		{"clerk@acme.test", authz.RoleStaff},
	}
	for _, a := range accounts {
		if err := ensureUser(ctx, users, demo, a.email, "changeme-"+a.email, a.role, log); err != nil {
			return err
		}
	}
	return nil
}

func ensureDomain(ctx context.Context, registry tenant.Registry, t *tenant.Tenant, hostname string) error {
	if existing, err := registry.GetByHostname(ctx, hostname); err == nil && existing.ID == t.ID {
		return nil
	}
	return registry.AddDomain(ctx, &tenant.Domain{
		ID:        id.New().String(),
		TenantID:  t.ID,
		Hostname:  hostname,
		IsPrimary: true,
		CreatedAt: time.Now(),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
