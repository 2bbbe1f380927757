package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/guidgatekeeper/ggk/models"
)

// pathMatcher is the compiled form of a rule's path condition: either an
// exact path or a literal prefix.
type pathMatcher interface {
	matches(path string) bool
}

type exactPath string

func (p exactPath) matches(path string) bool {
	return string(p) == path
}

type prefixPath string

func (p prefixPath) matches(path string) bool {
	return strings.HasPrefix(path, string(p))
}

// matcher is a compiled PathRule: method set, path condition, optional
// query constraint and the rule's effect.
type matcher struct {
	methods map[string]struct{}
	path    pathMatcher
	query   *regexp.Regexp
	effect  models.Effect
}

// compileRule compiles a single PathRule. A rule with no method tokens,
// with neither path nor pathPattern, with both, with an unknown effect or
// with an invalid query regexp is rejected.
func compileRule(pr *models.PathRule) (*matcher, error) {
	m := &matcher{
		methods: pr.MethodSet(),
		effect:  pr.EffectOrDefault(),
	}

	if len(m.methods) == 0 {
		return nil, fmt.Errorf("methods must not be empty")
	}

	switch {
	case pr.Path != "" && pr.PathPattern != "":
		return nil, fmt.Errorf("path and pathPattern are mutually exclusive")
	case pr.Path != "":
		m.path = exactPath(pr.Path)
	case pr.PathPattern != "":
		// A trailing '*' is cosmetic; the pattern is a literal prefix.
		m.path = prefixPath(strings.TrimSuffix(pr.PathPattern, "*"))
	default:
		return nil, fmt.Errorf("either path or pathPattern is required")
	}

	if pr.QueryPattern != "" {
		re, err := regexp.Compile(pr.QueryPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid queryPattern %q: %w", pr.QueryPattern, err)
		}
		m.query = re
	}

	if m.effect != models.EffectAllowed && m.effect != models.EffectDisallowed {
		return nil, fmt.Errorf("unknown effect %q", m.effect)
	}

	return m, nil
}

// matches reports whether the compiled rule applies to the request.
// Method, path and query must all match.
func (m *matcher) matches(method, path, rawQuery string) bool {
	if _, ok := m.methods[strings.ToUpper(method)]; !ok {
		return false
	}
	if !m.path.matches(path) {
		return false
	}
	if m.query != nil {
		query := ""
		if rawQuery != "" {
			query = "?" + rawQuery
		}
		if !m.query.MatchString(query) {
			return false
		}
	}
	return true
}

// ValidateUserRules compiles every path rule in the given user rules and
// returns the first compilation error. The rules service runs this at
// create and update time so malformed rules never reach the store.
func ValidateUserRules(userRules []models.UserRule) error {
	for i := range userRules {
		ur := &userRules[i]
		if ur.UserID == "" {
			return fmt.Errorf("userRules[%d]: userID is required", i)
		}
		for j := range ur.PathRules {
			if _, err := compileRule(&ur.PathRules[j]); err != nil {
				return fmt.Errorf("userRules[%d].pathRules[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}
