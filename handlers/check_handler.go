package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/guidgatekeeper/ggk/middleware"
	"github.com/guidgatekeeper/ggk/services/rules"
	"github.com/guidgatekeeper/ggk/utils"
	"go.uber.org/zap"
)

// CheckResponse is the payload for access-check results. Allowed checks
// answer 200, denied checks answer 401 with the same shape; callers
// distinguish the two by status code or by the message field.
type CheckResponse struct {
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"`
	RuleID    string `json:"ruleId"`
	UserID    string `json:"userID"`
	URL       string `json:"url"`
	Host      string `json:"host,omitempty"`
	Path      string `json:"path,omitempty"`
	Method    string `json:"method"`
	AccessVia string `json:"accessVia,omitempty"`
}

const (
	messageAllowed = "Access allowed"
	messageDenied  = "Access denied"
)

// CheckHandler handles access-check HTTP requests
type CheckHandler struct {
	ruleService *rules.RuleService
	logger      *zap.Logger
}

// NewCheckHandler creates a new CheckHandler
func NewCheckHandler(ruleService *rules.RuleService, logger *zap.Logger) *CheckHandler {
	return &CheckHandler{
		ruleService: ruleService,
		logger:      logger,
	}
}

// HandleIsAllowed handles POST /rules/{ruleId}/isAllowed. The endpoint
// requires no identity header; holding the rule id is the capability.
func (h *CheckHandler) HandleIsAllowed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	ruleID := chi.URLParam(r, "ruleId")

	var req rules.CheckRequest
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

	decision, err := h.ruleService.CheckAccess(ctx, ruleID, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	resp := CheckResponse{
		RuleID:    decision.RuleID,
		UserID:    decision.UserID,
		URL:       decision.URL,
		Host:      decision.Host,
		Path:      decision.Path,
		Method:    decision.Method,
		AccessVia: decision.AccessVia,
	}

	if decision.Allowed {
		resp.Message = messageAllowed
		h.logger.Debug("access allowed",
			zap.String("request_id", requestID),
			zap.String("rule_id", ruleID),
			zap.String("user_id", decision.UserID))
		_ = utils.WriteOK(w, resp)
		return
	}

	resp.Message = messageDenied
	resp.Reason = decision.Reason
	h.logger.Debug("access denied",
		zap.String("request_id", requestID),
		zap.String("rule_id", ruleID),
		zap.String("user_id", decision.UserID),
		zap.String("reason", decision.Reason))
	_ = utils.WriteJSON(w, http.StatusUnauthorized, resp)
}
