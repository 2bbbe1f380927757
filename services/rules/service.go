package rules

import (
	"context"
	"errors"
	"time"

	"github.com/guidgatekeeper/ggk/models"
	"github.com/guidgatekeeper/ggk/repositories"
	"github.com/guidgatekeeper/ggk/services"
	"github.com/guidgatekeeper/ggk/services/accounts"
	"github.com/guidgatekeeper/ggk/services/policy"
	"go.uber.org/zap"
)

// CreateRuleRequest represents a request to create a rule
type CreateRuleRequest struct {
	RuleAPI   string            `json:"ruleAPI" validate:"required"`
	UserRules []models.UserRule `json:"userRules" validate:"required,min=1"`
}

// UpdateRuleRequest represents a partial update of a rule. At least one
// field must be set; UserRules, when present, replaces the stored
// sequence wholesale.
type UpdateRuleRequest struct {
	RuleAPI     *string           `json:"ruleAPI,omitempty"`
	UserRules   []models.UserRule `json:"userRules,omitempty"`
	RuleEnabled *bool             `json:"ruleEnabled,omitempty"`
}

// CheckRequest represents an access-check request against one rule
type CheckRequest struct {
	UserID string `json:"userID" validate:"required"`
	URL    string `json:"url" validate:"required"`
	Method string `json:"method" validate:"required"`
}

// RuleService handles rule CRUD and access checks
type RuleService struct {
	ruleRepo  repositories.RuleRepository
	accounts  *accounts.AccountService
	evaluator *policy.Evaluator
	logger    *zap.Logger
}

// NewRuleService creates a new RuleService instance
func NewRuleService(ruleRepo repositories.RuleRepository, accountSvc *accounts.AccountService, evaluator *policy.Evaluator, logger *zap.Logger) *RuleService {
	return &RuleService{
		ruleRepo:  ruleRepo,
		accounts:  accountSvc,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Create validates and stores a new rule for the owner, lazily creating
// the owner's account record and enforcing its rule quota. The rule
// counter increment is best-effort: its failure is logged, never
// propagated.
func (s *RuleService) Create(ctx context.Context, apiKey string, req CreateRuleRequest) (*models.Rule, error) {
	if err := policy.ValidateUserRules(req.UserRules); err != nil {
		return nil, services.WrapError(services.ErrorTypeValidation, err.Error(), err)
	}

	account, err := s.accounts.GetOrCreate(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if !account.APIKeyEnabled {
		return nil, services.ErrAPIKeyDisabled
	}
	if account.RuleQuotaReached() {
		return nil, services.NewDomainError(services.ErrorTypeQuota, "rule limit reached", nil).
			WithDetail("maxRules", account.MaxRules).
			WithDetail("currentRules", account.CurrentRules)
	}

	rule := models.NewRule(apiKey, req.RuleAPI, req.UserRules)
	if err := s.ruleRepo.Put(ctx, rule); err != nil {
		return nil, services.WrapStorage("failed to store rule", err)
	}

	if err := s.accounts.AddRuleCount(ctx, apiKey, 1); err != nil {
		s.logger.Warn("rule counter increment failed",
			zap.String("rule_id", rule.RuleID),
			zap.Error(err))
	}

	s.logger.Info("rule created",
		zap.String("rule_id", rule.RuleID),
		zap.String("rule_api", rule.RuleAPI),
		zap.Int("user_rules", len(rule.UserRules)))

	return rule, nil
}

// Get retrieves a rule. Owners resolve through the primary key; admins
// fall back to the secondary index so they can look up any rule by id.
func (s *RuleService) Get(ctx context.Context, apiKey string, isAdmin bool, ruleID string) (*models.Rule, error) {
	rule, err := s.ruleRepo.GetByOwnerAndID(ctx, apiKey, ruleID)
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, services.WrapStorage("failed to get rule", err)
	}
	if !isAdmin {
		return nil, services.ErrRuleNotFound
	}
	return s.getByID(ctx, ruleID)
}

// List retrieves all rules owned by apiKey.
func (s *RuleService) List(ctx context.Context, apiKey string) ([]*models.Rule, error) {
	rules, err := s.ruleRepo.ListByOwner(ctx, apiKey)
	if err != nil {
		return nil, services.WrapStorage("failed to list rules", err)
	}
	return rules, nil
}

// Update applies a partial update to a rule. Mutation is last-writer-wins
// at the store; DateModified always reflects the latest write.
func (s *RuleService) Update(ctx context.Context, apiKey string, isAdmin bool, ruleID string, req UpdateRuleRequest) (*models.Rule, error) {
	if req.RuleAPI == nil && req.UserRules == nil && req.RuleEnabled == nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"at least one of ruleAPI, userRules or ruleEnabled is required", nil)
	}
	if req.UserRules != nil {
		if err := policy.ValidateUserRules(req.UserRules); err != nil {
			return nil, services.WrapError(services.ErrorTypeValidation, err.Error(), err)
		}
	}

	rule, err := s.Get(ctx, apiKey, isAdmin, ruleID)
	if err != nil {
		return nil, err
	}

	if req.RuleAPI != nil {
		rule.RuleAPI = *req.RuleAPI
	}
	if req.UserRules != nil {
		rule.UserRules = req.UserRules
	}
	if req.RuleEnabled != nil {
		rule.RuleEnabled = *req.RuleEnabled
	}
	rule.DateModified = time.Now().UTC()

	if err := s.ruleRepo.Put(ctx, rule); err != nil {
		return nil, services.WrapStorage("failed to update rule", err)
	}

	s.logger.Info("rule updated", zap.String("rule_id", rule.RuleID))
	return rule, nil
}

// Delete removes a rule and decrements the owner's rule counter. The
// decrement is best-effort and saturates at zero; underflow is logged
// and never fails the delete.
func (s *RuleService) Delete(ctx context.Context, apiKey string, isAdmin bool, ruleID string) error {
	rule, err := s.Get(ctx, apiKey, isAdmin, ruleID)
	if err != nil {
		return err
	}

	if err := s.ruleRepo.Delete(ctx, rule.APIKey, rule.RuleID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrRuleNotFound
		}
		return services.WrapStorage("failed to delete rule", err)
	}

	if err := s.accounts.AddRuleCount(ctx, rule.APIKey, -1); err != nil {
		if errors.Is(err, repositories.ErrCounterUnderflow) {
			s.logger.Warn("rule counter underflow",
				zap.String("rule_id", rule.RuleID))
		} else {
			s.logger.Warn("rule counter decrement failed",
				zap.String("rule_id", rule.RuleID),
				zap.Error(err))
		}
	}

	s.logger.Info("rule deleted", zap.String("rule_id", rule.RuleID))
	return nil
}

// CheckAccess loads the rule through the secondary index and evaluates
// the request against it. No identity is required: the rule id itself is
// the capability. The owner's monthly check counter is bumped
// best-effort after a hard check against its monthly maximum.
func (s *RuleService) CheckAccess(ctx context.Context, ruleID string, req CheckRequest) (*policy.Decision, error) {
	rule, err := s.getByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.EnforceCheckQuota(ctx, rule.APIKey); err != nil {
		return nil, err
	}

	decision, err := s.evaluator.Evaluate(rule, req.UserID, req.URL, req.Method)
	if err != nil {
		if errors.Is(err, policy.ErrMalformedURL) {
			return nil, services.WrapError(services.ErrorTypeValidation, "invalid url", err)
		}
		return nil, services.WrapInternal("rule evaluation failed", err)
	}

	if err := s.accounts.AddCheckCount(ctx, rule.APIKey, 1); err != nil {
		s.logger.Warn("check counter increment failed",
			zap.String("rule_id", ruleID),
			zap.Error(err))
	}

	return decision, nil
}

// getByID resolves a rule through the secondary index, mapping repository
// errors to domain errors.
func (s *RuleService) getByID(ctx context.Context, ruleID string) (*models.Rule, error) {
	rule, err := s.ruleRepo.GetByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrRuleNotFound
		}
		return nil, services.WrapStorage("failed to get rule", err)
	}
	return rule, nil
}
