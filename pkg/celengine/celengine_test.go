package celengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckComparesDoubles(t *testing.T) {
	ok, err := Check("score >= 0.8", map[string]interface{}{"score": 0.92})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Check("score >= 0.8", map[string]interface{}{"score": 0.5})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEnvCacheKeysOnTypes(t *testing.T) {
	a, err := GetOrBuildEnv(map[string]interface{}{"score": 0.1})
	require.NoError(t, err)
	b, err := GetOrBuildEnv(map[string]interface{}{"score": 0.7})
	require.NoError(t, err)
	require.Same(t, a, b)

	c, err := GetOrBuildEnv(map[string]interface{}{"score": "high"})
	require.NoError(t, err)
	require.NotSame(t, a, c)
}

func TestCheckMixedAttributes(t *testing.T) {
	attrs := map[string]interface{}{
		"score":     0.85,
		"platforms": []string{"twitter", "linkedin"},
		"approved":  true,
	}
	ok, err := Check(`approved && score > 0.8 && "linkedin" in platforms`, attrs)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateRejectsNonBool(t *testing.T) {
	_, err := Check("score + 1.0", map[string]interface{}{"score": 0.5})
	require.Error(t, err)
}

func TestValidateExpression(t *testing.T) {
	env, err := GetOrBuildEnv(map[string]interface{}{"score": 0.0})
	require.NoError(t, err)
	require.NoError(t, ValidateExpression(env, "score >= 0.8"))
	require.Error(t, ValidateExpression(env, "unknown_var > 1"))
}
