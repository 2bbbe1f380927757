package sqlite

import (
	"context"
	"testing"

	"github.com/guidgatekeeper/ggk/models"
	"github.com/guidgatekeeper/ggk/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newStoredRule(apiKey string) *models.Rule {
	return models.NewRule(apiKey, "api.example.com", []models.UserRule{
		{UserID: "alice", PathRules: []models.PathRule{
			{Methods: "GET,POST", PathPattern: "/api/", QueryPattern: `v=2`, Effect: models.EffectAllowed},
		}},
		{UserID: "*"},
	})
}

func TestStore_HealthCheck(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))
}

func TestRuleStore_PutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	rules := store.Rules()
	ctx := context.Background()

	rule := newStoredRule("owner-key")
	require.NoError(t, rules.Put(ctx, rule))

	got, err := rules.GetByOwnerAndID(ctx, "owner-key", rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, rule.RuleAPI, got.RuleAPI)
	// Nested user rules survive storage byte for byte.
	assert.Equal(t, rule.UserRules, got.UserRules)
	assert.True(t, got.RuleEnabled)
}

func TestRuleStore_PutIsAnUpsert(t *testing.T) {
	store := newTestStore(t)
	rules := store.Rules()
	ctx := context.Background()

	rule := newStoredRule("owner-key")
	require.NoError(t, rules.Put(ctx, rule))

	rule.RuleAPI = "api2.example.com"
	rule.RuleEnabled = false
	require.NoError(t, rules.Put(ctx, rule))

	got, err := rules.GetByOwnerAndID(ctx, "owner-key", rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, "api2.example.com", got.RuleAPI)
	assert.False(t, got.RuleEnabled)

	list, err := rules.ListByOwner(ctx, "owner-key")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRuleStore_GetByID(t *testing.T) {
	store := newTestStore(t)
	rules := store.Rules()
	ctx := context.Background()

	rule := newStoredRule("owner-key")
	require.NoError(t, rules.Put(ctx, rule))

	got, err := rules.GetByID(ctx, rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, "owner-key", got.APIKey)

	_, err = rules.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRuleStore_ListByOwnerIsScoped(t *testing.T) {
	store := newTestStore(t)
	rules := store.Rules()
	ctx := context.Background()

	require.NoError(t, rules.Put(ctx, newStoredRule("owner-a")))
	require.NoError(t, rules.Put(ctx, newStoredRule("owner-a")))
	require.NoError(t, rules.Put(ctx, newStoredRule("owner-b")))

	list, err := rules.ListByOwner(ctx, "owner-a")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = rules.ListByOwner(ctx, "owner-c")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRuleStore_Delete(t *testing.T) {
	store := newTestStore(t)
	rules := store.Rules()
	ctx := context.Background()

	rule := newStoredRule("owner-key")
	require.NoError(t, rules.Put(ctx, rule))
	require.NoError(t, rules.Delete(ctx, "owner-key", rule.RuleID))

	_, err := rules.GetByOwnerAndID(ctx, "owner-key", rule.RuleID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	assert.ErrorIs(t, rules.Delete(ctx, "owner-key", rule.RuleID), repositories.ErrNotFound)
}

func TestAccountStore_PutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	accounts := store.Accounts()
	ctx := context.Background()

	account := models.NewAccount("owner-key", 100, 100000)
	account.Email = "owner@example.com"
	require.NoError(t, accounts.Put(ctx, account))

	got, err := accounts.Get(ctx, "owner-key")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", got.Email)
	assert.Equal(t, 100, got.MaxRules)
	assert.True(t, got.APIKeyEnabled)

	_, err = accounts.Get(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestAccountStore_UpsertPreservesCounters(t *testing.T) {
	store := newTestStore(t)
	accounts := store.Accounts()
	ctx := context.Background()

	account := models.NewAccount("owner-key", 100, 100000)
	require.NoError(t, accounts.Put(ctx, account))
	require.NoError(t, accounts.AddRuleCount(ctx, "owner-key", 3))

	// A second Put with stale counter values must not clobber the live
	// counters; only profile fields and limits are replaced.
	account.Email = "owner@example.com"
	account.CurrentRules = 0
	require.NoError(t, accounts.Put(ctx, account))

	got, err := accounts.Get(ctx, "owner-key")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", got.Email)
	assert.Equal(t, 3, got.CurrentRules)
}

func TestAccountStore_CounterIncrementAndDecrement(t *testing.T) {
	store := newTestStore(t)
	accounts := store.Accounts()
	ctx := context.Background()

	require.NoError(t, accounts.Put(ctx, models.NewAccount("owner-key", 100, 100000)))

	for i := 0; i < 5; i++ {
		require.NoError(t, accounts.AddRuleCount(ctx, "owner-key", 1))
	}
	got, err := accounts.Get(ctx, "owner-key")
	require.NoError(t, err)
	assert.Equal(t, 5, got.CurrentRules)

	for i := 0; i < 5; i++ {
		require.NoError(t, accounts.AddRuleCount(ctx, "owner-key", -1))
	}
	got, err = accounts.Get(ctx, "owner-key")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentRules)
}

func TestAccountStore_CounterNeverGoesNegative(t *testing.T) {
	store := newTestStore(t)
	accounts := store.Accounts()
	ctx := context.Background()

	require.NoError(t, accounts.Put(ctx, models.NewAccount("owner-key", 100, 100000)))

	err := accounts.AddRuleCount(ctx, "owner-key", -1)
	assert.ErrorIs(t, err, repositories.ErrCounterUnderflow)

	got, getErr := accounts.Get(ctx, "owner-key")
	require.NoError(t, getErr)
	assert.Equal(t, 0, got.CurrentRules)
}

func TestAccountStore_CounterOnMissingAccount(t *testing.T) {
	store := newTestStore(t)
	accounts := store.Accounts()

	err := accounts.AddCheckCount(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestAccountStore_Delete(t *testing.T) {
	store := newTestStore(t)
	accounts := store.Accounts()
	ctx := context.Background()

	require.NoError(t, accounts.Put(ctx, models.NewAccount("owner-key", 100, 100000)))
	require.NoError(t, accounts.Delete(ctx, "owner-key"))

	_, err := accounts.Get(ctx, "owner-key")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	assert.ErrorIs(t, accounts.Delete(ctx, "owner-key"), repositories.ErrNotFound)
}
