package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/guidgatekeeper/ggk/middleware"
	"github.com/guidgatekeeper/ggk/models"
	"github.com/guidgatekeeper/ggk/services/rules"
	"github.com/guidgatekeeper/ggk/utils"
	"go.uber.org/zap"
)

// RuleResponse represents a rule in API responses
type RuleResponse struct {
	RuleID       string            `json:"ruleId"`
	RuleAPI      string            `json:"ruleAPI"`
	UserRules    []models.UserRule `json:"userRules"`
	RuleEnabled  bool              `json:"ruleEnabled"`
	DateCreated  string            `json:"dateCreated"`
	DateModified string            `json:"dateModified"`
}

// RuleEnvelope wraps a single rule for GET /rules/{ruleId}
type RuleEnvelope struct {
	Rule RuleResponse `json:"rule"`
}

// RuleListEnvelope wraps the owner's rules for GET /rules
type RuleListEnvelope struct {
	Rules []RuleResponse `json:"rules"`
}

// RuleMutationResponse acknowledges create, update and delete operations
type RuleMutationResponse struct {
	Message string `json:"message"`
	RuleID  string `json:"ruleId"`
}

// RuleHandler handles rule-related HTTP requests
type RuleHandler struct {
	ruleService *rules.RuleService
	logger      *zap.Logger
}

// NewRuleHandler creates a new RuleHandler
func NewRuleHandler(ruleService *rules.RuleService, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{
		ruleService: ruleService,
		logger:      logger,
	}
}

// HandleCreateRule handles POST /rules
func (h *RuleHandler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	apiKey := middleware.GetAPIKeyFromContext(ctx)

	var req rules.CreateRuleRequest
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

	rule, err := h.ruleService.Create(ctx, apiKey, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("rule created",
		zap.String("request_id", requestID),
		zap.String("rule_id", rule.RuleID))

	_ = utils.WriteCreated(w, RuleMutationResponse{
		Message: "Rule created successfully",
		RuleID:  rule.RuleID,
	})
}

// HandleListRules handles GET /rules
func (h *RuleHandler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	apiKey := middleware.GetAPIKeyFromContext(ctx)

	ruleList, err := h.ruleService.List(ctx, apiKey)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	responses := make([]RuleResponse, len(ruleList))
	for i, rule := range ruleList {
		responses[i] = ruleToResponse(rule)
	}

	h.logger.Debug("listed rules",
		zap.String("request_id", requestID),
		zap.Int("count", len(responses)))

	_ = utils.WriteOK(w, RuleListEnvelope{Rules: responses})
}

// HandleGetRule handles GET /rules/{ruleId}
func (h *RuleHandler) HandleGetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apiKey := middleware.GetAPIKeyFromContext(ctx)
	isAdmin := middleware.IsAdminFromContext(ctx)
	ruleID := chi.URLParam(r, "ruleId")

	rule, err := h.ruleService.Get(ctx, apiKey, isAdmin, ruleID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, RuleEnvelope{Rule: ruleToResponse(rule)})
}

// HandleUpdateRule handles PUT /rules/{ruleId}
func (h *RuleHandler) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	apiKey := middleware.GetAPIKeyFromContext(ctx)
	isAdmin := middleware.IsAdminFromContext(ctx)
	ruleID := chi.URLParam(r, "ruleId")

	var req rules.UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	rule, err := h.ruleService.Update(ctx, apiKey, isAdmin, ruleID, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("rule updated",
		zap.String("request_id", requestID),
		zap.String("rule_id", rule.RuleID))

	_ = utils.WriteOK(w, RuleMutationResponse{
		Message: "Rule updated successfully",
		RuleID:  rule.RuleID,
	})
}

// HandleDeleteRule handles DELETE /rules/{ruleId}
func (h *RuleHandler) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	apiKey := middleware.GetAPIKeyFromContext(ctx)
	isAdmin := middleware.IsAdminFromContext(ctx)
	ruleID := chi.URLParam(r, "ruleId")

	if err := h.ruleService.Delete(ctx, apiKey, isAdmin, ruleID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("rule deleted",
		zap.String("request_id", requestID),
		zap.String("rule_id", ruleID))

	_ = utils.WriteOK(w, RuleMutationResponse{
		Message: "Rule deleted successfully",
		RuleID:  ruleID,
	})
}

// ruleToResponse converts a Rule model to a RuleResponse
func ruleToResponse(rule *models.Rule) RuleResponse {
	return RuleResponse{
		RuleID:       rule.RuleID,
		RuleAPI:      rule.RuleAPI,
		UserRules:    rule.UserRules,
		RuleEnabled:  rule.RuleEnabled,
		DateCreated:  rule.DateCreated.Format(time.RFC3339),
		DateModified: rule.DateModified.Format(time.RFC3339),
	}
}
