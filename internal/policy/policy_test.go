package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnforcer_CompilationError(t *testing.T) {
	_, err := NewEnforcer([]RuleConfig{
		{Name: "ok", Expression: "attempt < 2"},
		{Name: "broken", Expression: "http_status =="},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"broken"`)
}

func TestEnforcer_Evaluate_EmptyRuleSetNeverRetries(t *testing.T) {
	e, err := NewEnforcer(nil)
	require.NoError(t, err)
	d := e.Evaluate(map[string]interface{}{ParamAttempt: float64(1)})
	assert.False(t, d.AllowRetry)
	assert.Empty(t, d.Reason)
}

func TestEnforcer_Evaluate_FirstMatchWins(t *testing.T) {
	e, err := NewEnforcer([]RuleConfig{
		{Name: "first", Expression: "attempt < 3"},
		{Name: "second", Expression: "attempt < 10"},
	})
	require.NoError(t, err)

	d := e.Evaluate(map[string]interface{}{ParamAttempt: float64(1)})
	assert.True(t, d.AllowRetry)
	assert.Equal(t, "first", d.Reason)

	d = e.Evaluate(map[string]interface{}{ParamAttempt: float64(5)})
	assert.True(t, d.AllowRetry)
	assert.Equal(t, "second", d.Reason)
}

func TestEnforcer_Evaluate_MissingParameterSkipsRule(t *testing.T) {
	e, err := NewEnforcer([]RuleConfig{
		{Name: "needs-missing-param", Expression: "nonexistent > 1"},
		{Name: "fallback", Expression: "recoverable == true"},
	})
	require.NoError(t, err)

	d := e.Evaluate(map[string]interface{}{ParamRecoverable: true})
	assert.True(t, d.AllowRetry)
	assert.Equal(t, "fallback", d.Reason, "erroring rule must be skipped, not abort evaluation")
}

func TestDefaultRules_RetryOnceOn503(t *testing.T) {
	e := DefaultEnforcer()

	params := func(op string, attempt, status float64) map[string]interface{} {
		return map[string]interface{}{
			ParamOperation:   op,
			ParamAttempt:     attempt,
			ParamHTTPStatus:  status,
			ParamErrorCode:   "YAPPY-998",
			ParamRecoverable: false,
		}
	}

	assert.True(t, e.Evaluate(params("create_charge", 1, 503)).AllowRetry)
	assert.False(t, e.Evaluate(params("create_charge", 2, 503)).AllowRetry, "only one retry")
	assert.False(t, e.Evaluate(params("create_charge", 1, 500)).AllowRetry, "503 only")
	assert.False(t, e.Evaluate(params("open_session", 1, 503)).AllowRetry, "charge creation only")
}
