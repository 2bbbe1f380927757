package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guidgatekeeper/ggk/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema.
// The rules table mirrors the key-value layout: (api_key, rule_id)
// composite primary key plus a secondary index on rule_id alone for
// lookup without knowing the owner.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Rules table
		CREATE TABLE IF NOT EXISTS rules (
			api_key VARCHAR(255) NOT NULL,
			rule_id UUID NOT NULL,
			rule_api VARCHAR(255) NOT NULL,
			user_rules JSONB NOT NULL,
			rule_enabled BOOLEAN NOT NULL DEFAULT true,
			date_created TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			date_modified TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (api_key, rule_id)
		);

		-- Accounts table (one accounting record per owner identity)
		CREATE TABLE IF NOT EXISTS accounts (
			api_key VARCHAR(255) PRIMARY KEY,
			email VARCHAR(255) NOT NULL DEFAULT '',
			first_name VARCHAR(255) NOT NULL DEFAULT '',
			last_name VARCHAR(255) NOT NULL DEFAULT '',
			account_type VARCHAR(50) NOT NULL DEFAULT 'free',
			api_key_enabled BOOLEAN NOT NULL DEFAULT true,
			max_rules INTEGER NOT NULL DEFAULT 0,
			current_rules INTEGER NOT NULL DEFAULT 0,
			max_monthly_rule_checks INTEGER NOT NULL DEFAULT 0,
			current_monthly_rule_checks INTEGER NOT NULL DEFAULT 0,
			date_created TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			date_modified TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Secondary index: rule lookup by rule_id alone
		CREATE INDEX IF NOT EXISTS idx_rules_rule_id ON rules(rule_id);
		CREATE INDEX IF NOT EXISTS idx_rules_date_created ON rules(rule_id, date_created DESC);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
