package policy

import (
	"testing"

	"github.com/guidgatekeeper/ggk/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRule_PathPatternIsAPrefix(t *testing.T) {
	m, err := compileRule(&models.PathRule{
		Methods:     "GET",
		PathPattern: "/api/v1/users/*",
	})
	require.NoError(t, err)

	assert.True(t, m.matches("GET", "/api/v1/users/123", ""))
	assert.True(t, m.matches("GET", "/api/v1/users/123/orders", ""))
	assert.False(t, m.matches("GET", "/api/v1/use", ""))
}

func TestCompileRule_ExactPath(t *testing.T) {
	m, err := compileRule(&models.PathRule{
		Methods: "GET",
		Path:    "/api/v1/users",
	})
	require.NoError(t, err)

	assert.True(t, m.matches("GET", "/api/v1/users", ""))
	assert.False(t, m.matches("GET", "/api/v1/users/123", ""))
	assert.False(t, m.matches("GET", "/api/v1", ""))
}

func TestCompileRule_QueryPatternSeesLeadingQuestionMark(t *testing.T) {
	m, err := compileRule(&models.PathRule{
		Methods:      "GET",
		Path:         "/search",
		QueryPattern: `^\?q=`,
	})
	require.NoError(t, err)

	assert.True(t, m.matches("GET", "/search", "q=foo"))
	assert.False(t, m.matches("GET", "/search", "page=2&q=foo"))
	assert.False(t, m.matches("GET", "/search", ""))
}

func TestCompileRule_EffectDefaultsToAllowed(t *testing.T) {
	m, err := compileRule(&models.PathRule{
		Methods: "GET",
		Path:    "/data",
	})
	require.NoError(t, err)
	assert.Equal(t, models.EffectAllowed, m.effect)
}

func TestCompileRule_Rejections(t *testing.T) {
	cases := []struct {
		name string
		rule models.PathRule
	}{
		{"empty methods", models.PathRule{Path: "/data"}},
		{"whitespace methods", models.PathRule{Methods: " , ", Path: "/data"}},
		{"no path condition", models.PathRule{Methods: "GET"}},
		{"both path conditions", models.PathRule{Methods: "GET", Path: "/a", PathPattern: "/b"}},
		{"bad query regexp", models.PathRule{Methods: "GET", Path: "/a", QueryPattern: "("}},
		{"unknown effect", models.PathRule{Methods: "GET", Path: "/a", Effect: "MAYBE"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := compileRule(&tc.rule)
			assert.Error(t, err)
		})
	}
}

func TestValidateUserRules(t *testing.T) {
	valid := []models.UserRule{
		{UserID: "alice", PathRules: []models.PathRule{
			{Methods: "GET,POST", PathPattern: "/api/"},
		}},
		{UserID: "*"},
	}
	assert.NoError(t, ValidateUserRules(valid))

	missingUser := []models.UserRule{
		{UserID: "", PathRules: []models.PathRule{{Methods: "GET", Path: "/a"}}},
	}
	assert.Error(t, ValidateUserRules(missingUser))

	badRule := []models.UserRule{
		{UserID: "alice", PathRules: []models.PathRule{{Methods: "GET"}}},
	}
	assert.Error(t, ValidateUserRules(badRule))
}
