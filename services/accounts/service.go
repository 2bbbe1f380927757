package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/guidgatekeeper/ggk/models"
	"github.com/guidgatekeeper/ggk/repositories"
	"github.com/guidgatekeeper/ggk/services"
	"go.uber.org/zap"
)

// Limits carries the default quotas applied to lazily created accounts.
type Limits struct {
	MaxRules             int
	MaxMonthlyRuleChecks int
}

// UpdateAccountRequest represents a partial update of an account record.
// At least one field must be set.
type UpdateAccountRequest struct {
	Email                *string             `json:"email,omitempty" validate:"omitempty,email"`
	FirstName            *string             `json:"firstName,omitempty"`
	LastName             *string             `json:"lastName,omitempty"`
	AccountType          *models.AccountType `json:"accountType,omitempty" validate:"omitempty,oneof=free paid"`
	APIKeyEnabled        *bool               `json:"apiKeyEnabled,omitempty"`
	MaxRules             *int                `json:"maxRules,omitempty" validate:"omitempty,gte=0"`
	MaxMonthlyRuleChecks *int                `json:"maxMonthlyRuleChecks,omitempty" validate:"omitempty,gte=0"`
}

// AccountService handles per-owner accounting records
type AccountService struct {
	accountRepo repositories.AccountRepository
	limits      Limits
	logger      *zap.Logger
}

// NewAccountService creates a new AccountService instance
func NewAccountService(accountRepo repositories.AccountRepository, limits Limits, logger *zap.Logger) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		limits:      limits,
		logger:      logger,
	}
}

// Get retrieves an account record by apiKey.
func (s *AccountService) Get(ctx context.Context, apiKey string) (*models.Account, error) {
	account, err := s.accountRepo.Get(ctx, apiKey)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrAccountNotFound
		}
		return nil, services.WrapStorage("failed to get account", err)
	}
	return account, nil
}

// GetOrCreate returns the owner's account record, creating it with the
// configured default limits on first use.
func (s *AccountService) GetOrCreate(ctx context.Context, apiKey string) (*models.Account, error) {
	account, err := s.accountRepo.Get(ctx, apiKey)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, services.WrapStorage("failed to get account", err)
	}

	account = models.NewAccount(apiKey, s.limits.MaxRules, s.limits.MaxMonthlyRuleChecks)
	if err := s.accountRepo.Put(ctx, account); err != nil {
		return nil, services.WrapStorage("failed to create account", err)
	}

	s.logger.Info("account created",
		zap.Int("max_rules", account.MaxRules),
		zap.Int("max_monthly_rule_checks", account.MaxMonthlyRuleChecks))

	return account, nil
}

// Update applies a partial update to an account record.
func (s *AccountService) Update(ctx context.Context, apiKey string, req UpdateAccountRequest) (*models.Account, error) {
	if req.Email == nil && req.FirstName == nil && req.LastName == nil &&
		req.AccountType == nil && req.APIKeyEnabled == nil &&
		req.MaxRules == nil && req.MaxMonthlyRuleChecks == nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"at least one field is required", nil)
	}

	account, err := s.Get(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		account.Email = *req.Email
	}
	if req.FirstName != nil {
		account.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		account.LastName = *req.LastName
	}
	if req.AccountType != nil {
		account.AccountType = *req.AccountType
	}
	if req.APIKeyEnabled != nil {
		account.APIKeyEnabled = *req.APIKeyEnabled
	}
	if req.MaxRules != nil {
		account.MaxRules = *req.MaxRules
	}
	if req.MaxMonthlyRuleChecks != nil {
		account.MaxMonthlyRuleChecks = *req.MaxMonthlyRuleChecks
	}
	account.DateModified = time.Now().UTC()

	if err := s.accountRepo.Put(ctx, account); err != nil {
		return nil, services.WrapStorage("failed to update account", err)
	}

	s.logger.Info("account updated")
	return account, nil
}

// Delete removes an account record.
func (s *AccountService) Delete(ctx context.Context, apiKey string) error {
	if err := s.accountRepo.Delete(ctx, apiKey); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrAccountNotFound
		}
		return services.WrapStorage("failed to delete account", err)
	}
	s.logger.Info("account deleted")
	return nil
}

// AddRuleCount adjusts the owner's rule counter. Callers treat failures
// as best-effort; the repository guards the counter against underflow.
func (s *AccountService) AddRuleCount(ctx context.Context, apiKey string, delta int) error {
	return s.accountRepo.AddRuleCount(ctx, apiKey, delta)
}

// AddCheckCount adjusts the owner's monthly rule check counter.
func (s *AccountService) AddCheckCount(ctx context.Context, apiKey string, delta int) error {
	return s.accountRepo.AddCheckCount(ctx, apiKey, delta)
}

// EnforceCheckQuota rejects further rule checks once the owner's monthly
// maximum is used up. A missing account record means no quota applies.
func (s *AccountService) EnforceCheckQuota(ctx context.Context, apiKey string) error {
	account, err := s.accountRepo.Get(ctx, apiKey)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return services.WrapStorage("failed to get account", err)
	}
	if account.CheckQuotaReached() {
		return services.NewDomainError(services.ErrorTypeQuota, "monthly rule check limit reached", nil).
			WithDetail("maxMonthlyRuleChecks", account.MaxMonthlyRuleChecks)
	}
	return nil
}
