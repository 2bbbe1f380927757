package postgres

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/guidgatekeeper/ggk/models"
	"github.com/guidgatekeeper/ggk/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockRuleRepo(t *testing.T) (repositories.RuleRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	wrapped := &DB{DB: db, logger: zap.NewNop()}
	return NewRuleRepository(wrapped, zap.NewNop()), mock
}

func sampleRule() *models.Rule {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Rule{
		APIKey:  "owner-key",
		RuleID:  "7d3f9b9e-4a64-4d6e-9111-0a1b2c3d4e5f",
		RuleAPI: "api.example.com",
		UserRules: []models.UserRule{
			{UserID: "alice", PathRules: []models.PathRule{
				{Methods: "GET", PathPattern: "/api/", Effect: models.EffectAllowed},
			}},
		},
		RuleEnabled:  true,
		DateCreated:  now,
		DateModified: now,
	}
}

func ruleRows(rule *models.Rule) *sqlmock.Rows {
	userRules, _ := json.Marshal(rule.UserRules)
	return sqlmock.NewRows([]string{
		"api_key", "rule_id", "rule_api", "user_rules", "rule_enabled", "date_created", "date_modified",
	}).AddRow(rule.APIKey, rule.RuleID, rule.RuleAPI, userRules, rule.RuleEnabled, rule.DateCreated, rule.DateModified)
}

func TestRuleRepository_Put(t *testing.T) {
	repo, mock := newMockRuleRepo(t)
	rule := sampleRule()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rules")).
		WithArgs(rule.APIKey, rule.RuleID, rule.RuleAPI, sqlmock.AnyArg(),
			rule.RuleEnabled, rule.DateCreated, rule.DateModified).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Put(context.Background(), rule)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepository_GetByOwnerAndID(t *testing.T) {
	repo, mock := newMockRuleRepo(t)
	rule := sampleRule()

	mock.ExpectQuery("SELECT (.+) FROM rules").
		WithArgs(rule.APIKey, rule.RuleID).
		WillReturnRows(ruleRows(rule))

	got, err := repo.GetByOwnerAndID(context.Background(), rule.APIKey, rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, rule.RuleID, got.RuleID)
	assert.Equal(t, rule.UserRules, got.UserRules)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepository_GetByOwnerAndID_NotFound(t *testing.T) {
	repo, mock := newMockRuleRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM rules").
		WithArgs("owner-key", "missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"api_key", "rule_id", "rule_api", "user_rules", "rule_enabled", "date_created", "date_modified",
		}))

	_, err := repo.GetByOwnerAndID(context.Background(), "owner-key", "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRuleRepository_GetByID_OrdersByDateCreated(t *testing.T) {
	repo, mock := newMockRuleRepo(t)
	rule := sampleRule()

	mock.ExpectQuery("SELECT (.+) FROM rules WHERE rule_id = (.+) ORDER BY date_created DESC").
		WithArgs(rule.RuleID).
		WillReturnRows(ruleRows(rule))

	got, err := repo.GetByID(context.Background(), rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, rule.APIKey, got.APIKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepository_ListByOwner(t *testing.T) {
	repo, mock := newMockRuleRepo(t)
	rule := sampleRule()
	other := sampleRule()
	other.RuleID = "aaaaaaaa-0000-0000-0000-000000000000"

	userRules, _ := json.Marshal(rule.UserRules)
	rows := sqlmock.NewRows([]string{
		"api_key", "rule_id", "rule_api", "user_rules", "rule_enabled", "date_created", "date_modified",
	}).
		AddRow(rule.APIKey, rule.RuleID, rule.RuleAPI, userRules, rule.RuleEnabled, rule.DateCreated, rule.DateModified).
		AddRow(other.APIKey, other.RuleID, other.RuleAPI, userRules, other.RuleEnabled, other.DateCreated, other.DateModified)

	mock.ExpectQuery("SELECT (.+) FROM rules WHERE api_key = (.+) ORDER BY date_created DESC").
		WithArgs(rule.APIKey).
		WillReturnRows(rows)

	got, err := repo.ListByOwner(context.Background(), rule.APIKey)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rule.RuleID, got[0].RuleID)
	assert.Equal(t, other.RuleID, got[1].RuleID)
}

func TestRuleRepository_Delete(t *testing.T) {
	repo, mock := newMockRuleRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rules")).
		WithArgs("owner-key", "rule-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "owner-key", "rule-1")
	assert.NoError(t, err)
}

func TestRuleRepository_Delete_NotFound(t *testing.T) {
	repo, mock := newMockRuleRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rules")).
		WithArgs("owner-key", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "owner-key", "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
