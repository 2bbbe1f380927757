package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/guidgatekeeper/ggk/middleware"
	"github.com/guidgatekeeper/ggk/models"
	"github.com/guidgatekeeper/ggk/services/accounts"
	"github.com/guidgatekeeper/ggk/utils"
	"go.uber.org/zap"
)

// AccountResponse represents an account in API responses
type AccountResponse struct {
	APIKey                   string             `json:"apiKey"`
	Email                    string             `json:"email,omitempty"`
	FirstName                string             `json:"firstName,omitempty"`
	LastName                 string             `json:"lastName,omitempty"`
	AccountType              models.AccountType `json:"accountType"`
	APIKeyEnabled            bool               `json:"apiKeyEnabled"`
	MaxRules                 int                `json:"maxRules"`
	CurrentRules             int                `json:"currentRules"`
	MaxMonthlyRuleChecks     int                `json:"maxMonthlyRuleChecks"`
	CurrentMonthlyRuleChecks int                `json:"currentMonthlyRuleChecks"`
	DateCreated              string             `json:"dateCreated"`
	DateModified             string             `json:"dateModified"`
}

// AccountEnvelope wraps an account record for the admin user endpoints
type AccountEnvelope struct {
	User AccountResponse `json:"user"`
}

// AccountHandler handles admin account management requests
type AccountHandler struct {
	accountService *accounts.AccountService
	logger         *zap.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accountService *accounts.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// HandleGetAccount handles GET /users/{apiKey}
func (h *AccountHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apiKey := chi.URLParam(r, "apiKey")

	account, err := h.accountService.Get(ctx, apiKey)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, AccountEnvelope{User: accountToResponse(account)})
}

// HandleUpdateAccount handles PUT /users/{apiKey}
func (h *AccountHandler) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	apiKey := chi.URLParam(r, "apiKey")

	var req accounts.UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	account, err := h.accountService.Update(ctx, apiKey, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("account updated",
		zap.String("request_id", requestID))

	_ = utils.WriteOK(w, AccountEnvelope{User: accountToResponse(account)})
}

// HandleDeleteAccount handles DELETE /users/{apiKey}
func (h *AccountHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	apiKey := chi.URLParam(r, "apiKey")

	if err := h.accountService.Delete(ctx, apiKey); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("account deleted",
		zap.String("request_id", requestID))

	utils.WriteNoContent(w)
}

// accountToResponse converts an Account model to an AccountResponse
func accountToResponse(a *models.Account) AccountResponse {
	return AccountResponse{
		APIKey:                   a.APIKey,
		Email:                    a.Email,
		FirstName:                a.FirstName,
		LastName:                 a.LastName,
		AccountType:              a.AccountType,
		APIKeyEnabled:            a.APIKeyEnabled,
		MaxRules:                 a.MaxRules,
		CurrentRules:             a.CurrentRules,
		MaxMonthlyRuleChecks:     a.MaxMonthlyRuleChecks,
		CurrentMonthlyRuleChecks: a.CurrentMonthlyRuleChecks,
		DateCreated:              a.DateCreated.Format(time.RFC3339),
		DateModified:             a.DateModified.Format(time.RFC3339),
	}
}
