package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Effect is the outcome attached to a matching path rule.
type Effect string

const (
	EffectAllowed    Effect = "ALLOWED"
	EffectDisallowed Effect = "DISALLOWED"
)

// WildcardUserID matches any requester without an exact user rule.
const WildcardUserID = "*"

// Rule binds an API host to the per-user endpoint rules protecting it.
// Stored under the (apiKey, ruleId) composite key; ruleId alone resolves
// through the secondary index.
type Rule struct {
	APIKey       string     `json:"-" db:"api_key"`
	RuleID       string     `json:"ruleId" db:"rule_id"`
	RuleAPI      string     `json:"ruleAPI" db:"rule_api"`
	UserRules    []UserRule `json:"userRules" db:"user_rules"`
	RuleEnabled  bool       `json:"ruleEnabled" db:"rule_enabled"`
	DateCreated  time.Time  `json:"dateCreated" db:"date_created"`
	DateModified time.Time  `json:"dateModified" db:"date_modified"`
}

// UserRule scopes path rules to one user identity, or to the wildcard
// identity "*" used as fallback when no exact entry matches.
type UserRule struct {
	UserID    string     `json:"userID"`
	PathRules []PathRule `json:"pathRules"`
}

// PathRule is one matchable condition plus an effect. Exactly one of
// Path (exact match) or PathPattern (prefix match) must be set.
// QueryPattern, when non-empty, is a regular expression tested against
// the raw query string including its leading '?'.
type PathRule struct {
	Methods      string `json:"methods"`
	Path         string `json:"path,omitempty"`
	PathPattern  string `json:"pathPattern,omitempty"`
	QueryPattern string `json:"queryPattern,omitempty"`
	Effect       Effect `json:"effect,omitempty"`
}

// NewRule creates a Rule with a generated ruleId and creation timestamps.
func NewRule(apiKey, ruleAPI string, userRules []UserRule) *Rule {
	now := time.Now().UTC()
	return &Rule{
		APIKey:       apiKey,
		RuleID:       uuid.NewString(),
		RuleAPI:      ruleAPI,
		UserRules:    userRules,
		RuleEnabled:  true,
		DateCreated:  now,
		DateModified: now,
	}
}

// FindUserRule returns the entry for the exact userID, or nil.
func (r *Rule) FindUserRule(userID string) *UserRule {
	for i := range r.UserRules {
		if r.UserRules[i].UserID == userID {
			return &r.UserRules[i]
		}
	}
	return nil
}

// EffectOrDefault returns the rule's effect, defaulting to ALLOWED when
// the stored rule omitted it.
func (p *PathRule) EffectOrDefault() Effect {
	if p.Effect == "" {
		return EffectAllowed
	}
	return p.Effect
}

// MethodSet splits the comma-separated methods field into an upper-cased
// lookup set.
func (p *PathRule) MethodSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, m := range strings.Split(p.Methods, ",") {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" {
			set[m] = struct{}{}
		}
	}
	return set
}

// TableName returns the table name for the Rule model
func (Rule) TableName() string {
	return "rules"
}
