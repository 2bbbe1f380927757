package repositories

import (
	"context"
	"errors"

	"github.com/guidgatekeeper/ggk/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrCounterUnderflow is returned when a counter decrement would take the
// value below zero. The store leaves the counter untouched; callers treat
// this as recoverable and log it.
var ErrCounterUnderflow = errors.New("counter decrement below zero")

// RuleRepository defines the data access contract for rules.
// Rows are keyed by (apiKey, ruleId); GetByID resolves through the
// secondary index on ruleId alone.
type RuleRepository interface {
	// Put upserts a rule under its (apiKey, ruleId) key.
	Put(ctx context.Context, rule *models.Rule) error

	// GetByOwnerAndID retrieves a rule by its primary key.
	GetByOwnerAndID(ctx context.Context, apiKey, ruleID string) (*models.Rule, error)

	// GetByID retrieves a rule by ruleId alone. When the secondary index
	// holds duplicates the most recently created row wins.
	GetByID(ctx context.Context, ruleID string) (*models.Rule, error)

	// ListByOwner retrieves all rules owned by apiKey.
	ListByOwner(ctx context.Context, apiKey string) ([]*models.Rule, error)

	// Delete removes a rule by its primary key.
	Delete(ctx context.Context, apiKey, ruleID string) error
}

// AccountRepository defines the data access contract for per-owner
// accounting records.
type AccountRepository interface {
	// Get retrieves an account by apiKey.
	Get(ctx context.Context, apiKey string) (*models.Account, error)

	// Put upserts an account.
	Put(ctx context.Context, account *models.Account) error

	// Delete removes an account.
	Delete(ctx context.Context, apiKey string) error

	// AddRuleCount atomically adds delta to the owner's rule counter.
	// The update is guarded in the store so the counter never goes
	// negative; a decrement that would underflow is a no-op returning
	// ErrCounterUnderflow.
	AddRuleCount(ctx context.Context, apiKey string, delta int) error

	// AddCheckCount atomically adds delta to the owner's monthly rule
	// check counter, with the same floor-at-zero guard.
	AddCheckCount(ctx context.Context, apiKey string, delta int) error
}
