package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/guidgatekeeper/ggk/models"
	"github.com/guidgatekeeper/ggk/repositories"
	"go.uber.org/zap"
)

// RuleRepository implements the repositories.RuleRepository interface
type RuleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *DB, logger *zap.Logger) repositories.RuleRepository {
	return &RuleRepository{
		db:     db,
		logger: logger,
	}
}

// Put upserts a rule under its (api_key, rule_id) key
func (r *RuleRepository) Put(ctx context.Context, rule *models.Rule) error {
	userRules, err := json.Marshal(rule.UserRules)
	if err != nil {
		return fmt.Errorf("failed to marshal user rules: %w", err)
	}

	query := `
		INSERT INTO rules (api_key, rule_id, rule_api, user_rules, rule_enabled, date_created, date_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (api_key, rule_id) DO UPDATE
		SET rule_api = EXCLUDED.rule_api,
		    user_rules = EXCLUDED.user_rules,
		    rule_enabled = EXCLUDED.rule_enabled,
		    date_modified = EXCLUDED.date_modified
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.APIKey,
		rule.RuleID,
		rule.RuleAPI,
		userRules,
		rule.RuleEnabled,
		rule.DateCreated,
		rule.DateModified,
	)

	if err != nil {
		return fmt.Errorf("failed to put rule: %w", err)
	}

	r.logger.Debug("rule stored", zap.String("rule_id", rule.RuleID))
	return nil
}

// GetByOwnerAndID retrieves a rule by its primary key
func (r *RuleRepository) GetByOwnerAndID(ctx context.Context, apiKey, ruleID string) (*models.Rule, error) {
	query := `
		SELECT api_key, rule_id, rule_api, user_rules, rule_enabled, date_created, date_modified
		FROM rules
		WHERE api_key = $1 AND rule_id = $2
	`

	return r.scanRule(r.db.QueryRowContext(ctx, query, apiKey, ruleID))
}

// GetByID retrieves a rule by rule_id alone via the secondary index.
// Should duplicates exist the most recently created row wins.
func (r *RuleRepository) GetByID(ctx context.Context, ruleID string) (*models.Rule, error) {
	query := `
		SELECT api_key, rule_id, rule_api, user_rules, rule_enabled, date_created, date_modified
		FROM rules
		WHERE rule_id = $1
		ORDER BY date_created DESC
		LIMIT 1
	`

	return r.scanRule(r.db.QueryRowContext(ctx, query, ruleID))
}

// ListByOwner retrieves all rules owned by apiKey
func (r *RuleRepository) ListByOwner(ctx context.Context, apiKey string) ([]*models.Rule, error) {
	query := `
		SELECT api_key, rule_id, rule_api, user_rules, rule_enabled, date_created, date_modified
		FROM rules
		WHERE api_key = $1
		ORDER BY date_created DESC
	`

	rows, err := r.db.QueryContext(ctx, query, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.Rule
	for rows.Next() {
		rule, err := r.scanRule(rows)
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

// Delete removes a rule by its primary key
func (r *RuleRepository) Delete(ctx context.Context, apiKey, ruleID string) error {
	query := `DELETE FROM rules WHERE api_key = $1 AND rule_id = $2`

	result, err := r.db.ExecContext(ctx, query, apiKey, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return repositories.ErrNotFound
	}

	r.logger.Debug("rule deleted", zap.String("rule_id", ruleID))
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRule scans one rule row, unmarshalling the user_rules JSON column
func (r *RuleRepository) scanRule(row rowScanner) (*models.Rule, error) {
	rule := &models.Rule{}
	var userRules []byte

	err := row.Scan(
		&rule.APIKey,
		&rule.RuleID,
		&rule.RuleAPI,
		&userRules,
		&rule.RuleEnabled,
		&rule.DateCreated,
		&rule.DateModified,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	if err := json.Unmarshal(userRules, &rule.UserRules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user rules: %w", err)
	}

	return rule, nil
}
