package app

import (
	"context"
	"fmt"

	"github.com/guidgatekeeper/ggk/config"
	"github.com/guidgatekeeper/ggk/handlers"
	"github.com/guidgatekeeper/ggk/middleware"
	"github.com/guidgatekeeper/ggk/repositories"
	"github.com/guidgatekeeper/ggk/repositories/postgres"
	"github.com/guidgatekeeper/ggk/repositories/sqlite"
	"github.com/guidgatekeeper/ggk/services/accounts"
	"github.com/guidgatekeeper/ggk/services/policy"
	"github.com/guidgatekeeper/ggk/services/rules"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	Store  handlers.HealthChecker

	// Repositories
	Rules    repositories.RuleRepository
	Accounts repositories.AccountRepository

	// Services
	RuleService    *rules.RuleService
	AccountService *accounts.AccountService

	// Middleware
	AuthMiddleware *middleware.AuthMiddleware

	closeStore func() error
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	deps.initServices(cfg)
	deps.AuthMiddleware = middleware.NewAuthMiddleware(cfg.Auth.AdminKey, logger)

	logger.Info("all dependencies initialized successfully",
		zap.String("storage_driver", cfg.Storage.Driver))
	return deps, nil
}

// initStorage initializes the storage backend selected by STORAGE_DRIVER
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewDB(cfg.Storage.Database, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := db.InitSchema(ctx); err != nil {
			db.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		d.Store = db
		d.Rules = postgres.NewRuleRepository(db, d.Logger)
		d.Accounts = postgres.NewAccountRepository(db, d.Logger)
		d.closeStore = db.Close

	case config.DriverSQLite:
		store, err := sqlite.NewStore(cfg.Storage.SQLitePath, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		d.Store = store
		d.Rules = store.Rules()
		d.Accounts = store.Accounts()
		d.closeStore = store.Close

	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	return nil
}

// initServices wires the service layer on top of the repositories
func (d *Dependencies) initServices(cfg *config.Config) {
	d.AccountService = accounts.NewAccountService(d.Accounts, accounts.Limits{
		MaxRules:             cfg.Quotas.DefaultMaxRules,
		MaxMonthlyRuleChecks: cfg.Quotas.DefaultMaxMonthlyRuleChecks,
	}, d.Logger)

	evaluator := policy.NewEvaluator(d.Logger)
	d.RuleService = rules.NewRuleService(d.Rules, d.AccountService, evaluator, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.closeStore != nil {
		if err := d.closeStore(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		} else {
			d.Logger.Info("store closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
