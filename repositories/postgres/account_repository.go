package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/guidgatekeeper/ggk/models"
	"github.com/guidgatekeeper/ggk/repositories"
	"go.uber.org/zap"
)

// AccountRepository implements the repositories.AccountRepository interface
type AccountRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB, logger *zap.Logger) repositories.AccountRepository {
	return &AccountRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an account by apiKey
func (r *AccountRepository) Get(ctx context.Context, apiKey string) (*models.Account, error) {
	query := `
		SELECT api_key, email, first_name, last_name, account_type, api_key_enabled,
		       max_rules, current_rules, max_monthly_rule_checks, current_monthly_rule_checks,
		       date_created, date_modified
		FROM accounts
		WHERE api_key = $1
	`

	account := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, apiKey).Scan(
		&account.APIKey,
		&account.Email,
		&account.FirstName,
		&account.LastName,
		&account.AccountType,
		&account.APIKeyEnabled,
		&account.MaxRules,
		&account.CurrentRules,
		&account.MaxMonthlyRuleChecks,
		&account.CurrentMonthlyRuleChecks,
		&account.DateCreated,
		&account.DateModified,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// Put upserts an account
func (r *AccountRepository) Put(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (api_key, email, first_name, last_name, account_type, api_key_enabled,
		                      max_rules, current_rules, max_monthly_rule_checks, current_monthly_rule_checks,
		                      date_created, date_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (api_key) DO UPDATE
		SET email = EXCLUDED.email,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    account_type = EXCLUDED.account_type,
		    api_key_enabled = EXCLUDED.api_key_enabled,
		    max_rules = EXCLUDED.max_rules,
		    max_monthly_rule_checks = EXCLUDED.max_monthly_rule_checks,
		    date_modified = EXCLUDED.date_modified
	`

	_, err := r.db.ExecContext(ctx, query,
		account.APIKey,
		account.Email,
		account.FirstName,
		account.LastName,
		account.AccountType,
		account.APIKeyEnabled,
		account.MaxRules,
		account.CurrentRules,
		account.MaxMonthlyRuleChecks,
		account.CurrentMonthlyRuleChecks,
		account.DateCreated,
		account.DateModified,
	)

	if err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}

	r.logger.Debug("account stored")
	return nil
}

// Delete removes an account
func (r *AccountRepository) Delete(ctx context.Context, apiKey string) error {
	query := `DELETE FROM accounts WHERE api_key = $1`

	result, err := r.db.ExecContext(ctx, query, apiKey)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return repositories.ErrNotFound
	}

	r.logger.Debug("account deleted")
	return nil
}

// AddRuleCount atomically adds delta to the rule counter. The guarded
// UPDATE keeps the counter from going negative without a read-modify-write
// cycle; an update that matches no row because of the floor reports
// ErrCounterUnderflow.
func (r *AccountRepository) AddRuleCount(ctx context.Context, apiKey string, delta int) error {
	return r.addCounter(ctx, "current_rules", apiKey, delta)
}

// AddCheckCount atomically adds delta to the monthly rule check counter
// with the same floor-at-zero guard.
func (r *AccountRepository) AddCheckCount(ctx context.Context, apiKey string, delta int) error {
	return r.addCounter(ctx, "current_monthly_rule_checks", apiKey, delta)
}

func (r *AccountRepository) addCounter(ctx context.Context, column, apiKey string, delta int) error {
	query := fmt.Sprintf(`
		UPDATE accounts
		SET %[1]s = %[1]s + $2,
		    date_modified = CURRENT_TIMESTAMP
		WHERE api_key = $1 AND %[1]s + $2 >= 0
	`, column)

	result, err := r.db.ExecContext(ctx, query, apiKey, delta)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Either the account is missing or the floor guard rejected the
		// decrement; distinguish the two for the caller.
		if _, err := r.Get(ctx, apiKey); err != nil {
			return err
		}
		return repositories.ErrCounterUnderflow
	}

	return nil
}
