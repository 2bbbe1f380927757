package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/guidgatekeeper/ggk/models"
	"github.com/guidgatekeeper/ggk/repositories/sqlite"
	"github.com/guidgatekeeper/ggk/services/accounts"
	"github.com/guidgatekeeper/ggk/services/policy"
	"github.com/guidgatekeeper/ggk/services/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newCheckFixture wires the full service stack over an in-memory store
// and returns a router with the isAllowed endpoint mounted.
func newCheckFixture(t *testing.T) (*chi.Mux, *rules.RuleService) {
	t.Helper()
	logger := zap.NewNop()

	store, err := sqlite.NewStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	accountSvc := accounts.NewAccountService(store.Accounts(),
		accounts.Limits{MaxRules: 100, MaxMonthlyRuleChecks: 100000}, logger)
	ruleSvc := rules.NewRuleService(store.Rules(), accountSvc, policy.NewEvaluator(logger), logger)

	handler := NewCheckHandler(ruleSvc, logger)
	r := chi.NewRouter()
	r.Post("/rules/{ruleId}/isAllowed", handler.HandleIsAllowed)
	return r, ruleSvc
}

func seedRule(t *testing.T, svc *rules.RuleService) *models.Rule {
	t.Helper()
	rule, err := svc.Create(context.Background(), "owner-key", rules.CreateRuleRequest{
		RuleAPI: "api.example.com",
		UserRules: []models.UserRule{
			{UserID: "alice", PathRules: []models.PathRule{
				{Methods: "GET", PathPattern: "/admin/", Effect: models.EffectDisallowed},
			}},
		},
	})
	require.NoError(t, err)
	return rule
}

func postCheck(t *testing.T, router *chi.Mux, ruleID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/rules/"+ruleID+"/isAllowed", &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleIsAllowed_Allowed(t *testing.T) {
	router, svc := newCheckFixture(t)
	rule := seedRule(t, svc)

	rec := postCheck(t, router, rule.RuleID, rules.CheckRequest{
		UserID: "alice",
		URL:    "https://api.example.com/public/data",
		Method: "GET",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Access allowed", resp.Message)
	assert.Empty(t, resp.Reason)
	assert.Equal(t, rule.RuleID, resp.RuleID)
	assert.Equal(t, "alice", resp.UserID)
	assert.Equal(t, "api.example.com", resp.Host)
	assert.Equal(t, "/public/data", resp.Path)
	assert.Equal(t, "GET", resp.Method)
}

func TestHandleIsAllowed_Denied(t *testing.T) {
	router, svc := newCheckFixture(t)
	rule := seedRule(t, svc)

	rec := postCheck(t, router, rule.RuleID, rules.CheckRequest{
		UserID: "alice",
		URL:    "https://api.example.com/admin/users",
		Method: "GET",
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp CheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Access denied", resp.Message)
	assert.NotEmpty(t, resp.Reason)
}

func TestHandleIsAllowed_UnknownUserIsDenied(t *testing.T) {
	router, svc := newCheckFixture(t)
	rule := seedRule(t, svc)

	rec := postCheck(t, router, rule.RuleID, rules.CheckRequest{
		UserID: "mallory",
		URL:    "https://api.example.com/public/data",
		Method: "GET",
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp CheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Access denied", resp.Message)
}

func TestHandleIsAllowed_UnknownRule(t *testing.T) {
	router, _ := newCheckFixture(t)

	rec := postCheck(t, router, "no-such-rule", rules.CheckRequest{
		UserID: "alice",
		URL:    "https://api.example.com/public/data",
		Method: "GET",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleIsAllowed_MalformedURLIsBadRequest(t *testing.T) {
	router, svc := newCheckFixture(t)
	rule := seedRule(t, svc)

	rec := postCheck(t, router, rule.RuleID, rules.CheckRequest{
		UserID: "alice",
		URL:    "/relative/path",
		Method: "GET",
	})

	// A request the evaluator cannot parse is a caller error, never a
	// policy deny.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIsAllowed_MissingFields(t *testing.T) {
	router, svc := newCheckFixture(t)
	rule := seedRule(t, svc)

	rec := postCheck(t, router, rule.RuleID, map[string]string{"userID": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIsAllowed_InvalidJSONBody(t *testing.T) {
	router, svc := newCheckFixture(t)
	rule := seedRule(t, svc)

	req := httptest.NewRequest(http.MethodPost,
		"/rules/"+rule.RuleID+"/isAllowed", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
