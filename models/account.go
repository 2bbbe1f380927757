package models

import "time"

// AccountType represents the billing tier of an owner identity
type AccountType string

const (
	AccountTypeFree AccountType = "free"
	AccountTypePaid AccountType = "paid"
)

// Account is the per-owner accounting record: rule count against the
// owner's maximum plus the monthly check counters. Created lazily on the
// owner's first rule creation.
type Account struct {
	APIKey                   string      `json:"apiKey" db:"api_key"`
	Email                    string      `json:"email,omitempty" db:"email"`
	FirstName                string      `json:"firstName,omitempty" db:"first_name"`
	LastName                 string      `json:"lastName,omitempty" db:"last_name"`
	AccountType              AccountType `json:"accountType" db:"account_type"`
	APIKeyEnabled            bool        `json:"apiKeyEnabled" db:"api_key_enabled"`
	MaxRules                 int         `json:"maxRules" db:"max_rules"`
	CurrentRules             int         `json:"currentRules" db:"current_rules"`
	MaxMonthlyRuleChecks     int         `json:"maxMonthlyRuleChecks" db:"max_monthly_rule_checks"`
	CurrentMonthlyRuleChecks int         `json:"currentMonthlyRuleChecks" db:"current_monthly_rule_checks"`
	DateCreated              time.Time   `json:"dateCreated" db:"date_created"`
	DateModified             time.Time   `json:"dateModified" db:"date_modified"`
}

// NewAccount creates an Account with the configured default limits.
func NewAccount(apiKey string, maxRules, maxMonthlyRuleChecks int) *Account {
	now := time.Now().UTC()
	return &Account{
		APIKey:               apiKey,
		AccountType:          AccountTypeFree,
		APIKeyEnabled:        true,
		MaxRules:             maxRules,
		MaxMonthlyRuleChecks: maxMonthlyRuleChecks,
		DateCreated:          now,
		DateModified:         now,
	}
}

// RuleQuotaReached reports whether the owner is at its rule limit.
func (a *Account) RuleQuotaReached() bool {
	return a.MaxRules > 0 && a.CurrentRules >= a.MaxRules
}

// CheckQuotaReached reports whether the owner has used up its monthly
// rule checks.
func (a *Account) CheckQuotaReached() bool {
	return a.MaxMonthlyRuleChecks > 0 && a.CurrentMonthlyRuleChecks >= a.MaxMonthlyRuleChecks
}

// TableName returns the table name for the Account model
func (Account) TableName() string {
	return "accounts"
}
