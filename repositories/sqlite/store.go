// Package sqlite provides an embedded store for single-node and
// development deployments. Selected with STORAGE_DRIVER=sqlite; use
// ":memory:" as the path for an in-memory database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/guidgatekeeper/ggk/models"
	"github.com/guidgatekeeper/ggk/repositories"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Compile-time interface checks.
var (
	_ repositories.RuleRepository    = (*RuleStore)(nil)
	_ repositories.AccountRepository = (*AccountStore)(nil)
)

// Store owns the SQLite connection; Rules() and Accounts() expose the two
// repository views over it.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore opens (or creates) a SQLite database at the given path and
// initialises the schema.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// modernc.org/sqlite serialises writes through a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rules (
			api_key       TEXT NOT NULL,
			rule_id       TEXT NOT NULL,
			rule_api      TEXT NOT NULL,
			user_rules    TEXT NOT NULL,
			rule_enabled  INTEGER NOT NULL DEFAULT 1,
			date_created  TIMESTAMP NOT NULL,
			date_modified TIMESTAMP NOT NULL,
			PRIMARY KEY (api_key, rule_id)
		);
		CREATE INDEX IF NOT EXISTS idx_rules_rule_id ON rules(rule_id);
		CREATE TABLE IF NOT EXISTS accounts (
			api_key                     TEXT PRIMARY KEY,
			email                       TEXT NOT NULL DEFAULT '',
			first_name                  TEXT NOT NULL DEFAULT '',
			last_name                   TEXT NOT NULL DEFAULT '',
			account_type                TEXT NOT NULL DEFAULT 'free',
			api_key_enabled             INTEGER NOT NULL DEFAULT 1,
			max_rules                   INTEGER NOT NULL DEFAULT 0,
			current_rules               INTEGER NOT NULL DEFAULT 0,
			max_monthly_rule_checks     INTEGER NOT NULL DEFAULT 0,
			current_monthly_rule_checks INTEGER NOT NULL DEFAULT 0,
			date_created                TIMESTAMP NOT NULL,
			date_modified               TIMESTAMP NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Rules returns the rule repository view.
func (s *Store) Rules() *RuleStore {
	return &RuleStore{s: s}
}

// Accounts returns the account repository view.
func (s *Store) Accounts() *AccountStore {
	return &AccountStore{s: s}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database answers queries.
func (s *Store) HealthCheck(ctx context.Context) error {
	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("sqlite health check failed: %w", err)
	}
	return nil
}

// RuleStore implements repositories.RuleRepository on SQLite.
type RuleStore struct {
	s *Store
}

// Put upserts a rule under its (api_key, rule_id) key.
func (r *RuleStore) Put(ctx context.Context, rule *models.Rule) error {
	userRules, err := json.Marshal(rule.UserRules)
	if err != nil {
		return fmt.Errorf("failed to marshal user rules: %w", err)
	}

	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO rules (api_key, rule_id, rule_api, user_rules, rule_enabled, date_created, date_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (api_key, rule_id) DO UPDATE
		SET rule_api = excluded.rule_api,
		    user_rules = excluded.user_rules,
		    rule_enabled = excluded.rule_enabled,
		    date_modified = excluded.date_modified`,
		rule.APIKey, rule.RuleID, rule.RuleAPI, string(userRules),
		rule.RuleEnabled, rule.DateCreated, rule.DateModified,
	)
	if err != nil {
		return fmt.Errorf("failed to put rule: %w", err)
	}
	return nil
}

// GetByOwnerAndID retrieves a rule by its primary key.
func (r *RuleStore) GetByOwnerAndID(ctx context.Context, apiKey, ruleID string) (*models.Rule, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT api_key, rule_id, rule_api, user_rules, rule_enabled, date_created, date_modified
		FROM rules WHERE api_key = ? AND rule_id = ?`, apiKey, ruleID)
	return scanRule(row)
}

// GetByID retrieves a rule by rule_id alone, most recently created first.
func (r *RuleStore) GetByID(ctx context.Context, ruleID string) (*models.Rule, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT api_key, rule_id, rule_api, user_rules, rule_enabled, date_created, date_modified
		FROM rules WHERE rule_id = ?
		ORDER BY date_created DESC LIMIT 1`, ruleID)
	return scanRule(row)
}

// ListByOwner retrieves all rules owned by apiKey.
func (r *RuleStore) ListByOwner(ctx context.Context, apiKey string) ([]*models.Rule, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT api_key, rule_id, rule_api, user_rules, rule_enabled, date_created, date_modified
		FROM rules WHERE api_key = ?
		ORDER BY date_created DESC`, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}
	return rules, nil
}

// Delete removes a rule by its primary key.
func (r *RuleStore) Delete(ctx context.Context, apiKey, ruleID string) error {
	result, err := r.s.db.ExecContext(ctx,
		`DELETE FROM rules WHERE api_key = ? AND rule_id = ?`, apiKey, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// AccountStore implements repositories.AccountRepository on SQLite.
type AccountStore struct {
	s *Store
}

// Get retrieves an account by apiKey.
func (a *AccountStore) Get(ctx context.Context, apiKey string) (*models.Account, error) {
	account := &models.Account{}
	err := a.s.db.QueryRowContext(ctx, `
		SELECT api_key, email, first_name, last_name, account_type, api_key_enabled,
		       max_rules, current_rules, max_monthly_rule_checks, current_monthly_rule_checks,
		       date_created, date_modified
		FROM accounts WHERE api_key = ?`, apiKey).Scan(
		&account.APIKey, &account.Email, &account.FirstName, &account.LastName,
		&account.AccountType, &account.APIKeyEnabled,
		&account.MaxRules, &account.CurrentRules,
		&account.MaxMonthlyRuleChecks, &account.CurrentMonthlyRuleChecks,
		&account.DateCreated, &account.DateModified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// Put upserts an account.
func (a *AccountStore) Put(ctx context.Context, account *models.Account) error {
	_, err := a.s.db.ExecContext(ctx, `
		INSERT INTO accounts (api_key, email, first_name, last_name, account_type, api_key_enabled,
		                      max_rules, current_rules, max_monthly_rule_checks, current_monthly_rule_checks,
		                      date_created, date_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (api_key) DO UPDATE
		SET email = excluded.email,
		    first_name = excluded.first_name,
		    last_name = excluded.last_name,
		    account_type = excluded.account_type,
		    api_key_enabled = excluded.api_key_enabled,
		    max_rules = excluded.max_rules,
		    max_monthly_rule_checks = excluded.max_monthly_rule_checks,
		    date_modified = excluded.date_modified`,
		account.APIKey, account.Email, account.FirstName, account.LastName,
		account.AccountType, account.APIKeyEnabled,
		account.MaxRules, account.CurrentRules,
		account.MaxMonthlyRuleChecks, account.CurrentMonthlyRuleChecks,
		account.DateCreated, account.DateModified,
	)
	if err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}
	return nil
}

// Delete removes an account.
func (a *AccountStore) Delete(ctx context.Context, apiKey string) error {
	result, err := a.s.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE api_key = ?`, apiKey)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// AddRuleCount atomically adds delta to the rule counter, guarded so the
// value never goes below zero.
func (a *AccountStore) AddRuleCount(ctx context.Context, apiKey string, delta int) error {
	return a.addCounter(ctx, "current_rules", apiKey, delta)
}

// AddCheckCount atomically adds delta to the monthly check counter.
func (a *AccountStore) AddCheckCount(ctx context.Context, apiKey string, delta int) error {
	return a.addCounter(ctx, "current_monthly_rule_checks", apiKey, delta)
}

func (a *AccountStore) addCounter(ctx context.Context, column, apiKey string, delta int) error {
	query := fmt.Sprintf(`
		UPDATE accounts
		SET %[1]s = %[1]s + ?, date_modified = ?
		WHERE api_key = ? AND %[1]s + ? >= 0`, column)

	result, err := a.s.db.ExecContext(ctx, query, delta, time.Now().UTC(), apiKey, delta)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the account is missing or the floor guard rejected the
		// decrement; distinguish the two for the caller.
		if _, err := a.Get(ctx, apiKey); err != nil {
			return err
		}
		return repositories.ErrCounterUnderflow
	}
	return nil
}

func scanRule(row interface {
	Scan(dest ...interface{}) error
}) (*models.Rule, error) {
	rule := &models.Rule{}
	var userRules string

	err := row.Scan(
		&rule.APIKey, &rule.RuleID, &rule.RuleAPI, &userRules,
		&rule.RuleEnabled, &rule.DateCreated, &rule.DateModified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	if err := json.Unmarshal([]byte(userRules), &rule.UserRules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user rules: %w", err)
	}
	return rule, nil
}
