package policy

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/guidgatekeeper/ggk/models"
	"go.uber.org/zap"
)

// ErrMalformedURL is returned when the checked URL cannot be parsed into
// host, path and query. A malformed URL is a client input error, never an
// ALLOW/DENY decision.
var ErrMalformedURL = errors.New("malformed url")

// Deny reasons carried on decisions.
const (
	ReasonRuleDisabled     = "rule disabled"
	ReasonHostMismatch     = "host mismatch"
	ReasonUserNotFound     = "user not found in rule"
	ReasonExplicitDisallow = "explicit disallow"
)

// AccessViaWildcard tags decisions that resolved through the wildcard
// user entry rather than an exact userID match.
const AccessViaWildcard = "wildcard"

// Decision is the result of evaluating one access-check request.
type Decision struct {
	Allowed   bool
	Reason    string
	RuleID    string
	UserID    string
	URL       string
	Host      string
	Path      string
	Method    string
	AccessVia string
}

// Evaluator decides ALLOW/DENY for access-check requests against a
// stored rule. It is stateless per call: the rule is loaded by the
// caller and all matching runs in memory.
type Evaluator struct {
	logger *zap.Logger
}

// NewEvaluator creates a new Evaluator instance
func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate runs the matching algorithm in fixed order: disabled check,
// host check, user rule selection (exact before wildcard), endpoint rule
// matching, effect resolution. Every endpoint rule is tested; a single
// DISALLOWED match denies regardless of ALLOWED matches, and an empty
// match set allows by default.
//
// A malformed URL returns ErrMalformedURL; any other error is an internal
// evaluator failure. Neither is an ALLOW/DENY decision.
func (e *Evaluator) Evaluate(rule *models.Rule, userID, rawURL, method string) (*Decision, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedURL, rawURL)
	}

	d := &Decision{
		RuleID: rule.RuleID,
		UserID: userID,
		URL:    rawURL,
		Host:   u.Host,
		Path:   u.Path,
		Method: method,
	}

	if !rule.RuleEnabled {
		return e.deny(d, ReasonRuleDisabled), nil
	}

	if u.Host != rule.RuleAPI {
		return e.deny(d, ReasonHostMismatch), nil
	}

	userRule := rule.FindUserRule(userID)
	if userRule == nil {
		userRule = rule.FindUserRule(models.WildcardUserID)
		if userRule == nil {
			return e.deny(d, ReasonUserNotFound), nil
		}
		d.AccessVia = AccessViaWildcard
	}

	// Collect every matching rule; DISALLOWED must be able to override an
	// ALLOWED match regardless of ordering, so matching never
	// short-circuits.
	disallowed := false
	matched := 0
	for i := range userRule.PathRules {
		m, err := compileRule(&userRule.PathRules[i])
		if err != nil {
			return nil, fmt.Errorf("stored rule %s has invalid pathRules[%d]: %w", rule.RuleID, i, err)
		}
		if !m.matches(method, u.Path, u.RawQuery) {
			continue
		}
		matched++
		if m.effect == models.EffectDisallowed {
			disallowed = true
		}
	}

	if disallowed {
		return e.deny(d, ReasonExplicitDisallow), nil
	}

	// No applicable rule is permissive: paths outside the rule set stay
	// reachable.
	d.Allowed = true

	e.logger.Debug("access allowed",
		zap.String("rule_id", d.RuleID),
		zap.String("user_id", d.UserID),
		zap.String("path", d.Path),
		zap.String("method", d.Method),
		zap.Int("matched_rules", matched),
		zap.String("access_via", d.AccessVia))

	return d, nil
}

func (e *Evaluator) deny(d *Decision, reason string) *Decision {
	d.Allowed = false
	d.Reason = reason

	e.logger.Debug("access denied",
		zap.String("rule_id", d.RuleID),
		zap.String("user_id", d.UserID),
		zap.String("path", d.Path),
		zap.String("method", d.Method),
		zap.String("reason", reason))

	return d
}
