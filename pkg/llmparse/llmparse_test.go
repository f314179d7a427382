package llmparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decision struct {
	NextAction string  `json:"next_action"`
	Confidence float64 `json:"tp_confidence"`
}

func TestExtractJSON_FencedBlock(t *testing.T) {
	resp := "Here is my decision:\n```json\n{\"next_action\": \"ENRICH\", \"tp_confidence\": 0.7}\n```\nLet me know if you need anything else."
	var d decision
	require.True(t, ExtractJSON(resp, &d))
	assert.Equal(t, "ENRICH", d.NextAction)
	assert.Equal(t, 0.7, d.Confidence)
}

func TestExtractJSON_BalancedBracesWithoutFence(t *testing.T) {
	resp := `Sure, the object is {"next_action": "VERDICT", "tp_confidence": 0.9} and that's final.`
	var d decision
	require.True(t, ExtractJSON(resp, &d))
	assert.Equal(t, "VERDICT", d.NextAction)
}

func TestExtractJSON_NestedBraces(t *testing.T) {
	resp := `{"next_action": "CLOSE", "tp_confidence": 0.2, "nested": {"a": 1}}`
	var d decision
	require.True(t, ExtractJSON(resp, &d))
	assert.Equal(t, "CLOSE", d.NextAction)
}

func TestExtractJSON_WholeResponseFallback(t *testing.T) {
	resp := `{"next_action": "INVESTIGATE", "tp_confidence": 0.5}`
	var d decision
	require.True(t, ExtractJSON(resp, &d))
	assert.Equal(t, "INVESTIGATE", d.NextAction)
}

func TestExtractJSON_RawControlCharsInsideString(t *testing.T) {
	resp := "{\"next_action\": \"ENRICH\", \"tp_confidence\": 0.4, \"action_reasoning\": \"line one\nline two\"}"
	var out map[string]any
	require.True(t, ExtractJSON(resp, &out))
	assert.Equal(t, "ENRICH", out["next_action"])
}

func TestExtractJSON_TotalFailureReturnsFalse(t *testing.T) {
	var d decision
	assert.False(t, ExtractJSON("not json at all, sorry", &d))
}

func TestSanitizeControlChars_LeavesBracesOutsideStringsAlone(t *testing.T) {
	in := `{"a": "x\ny"}`
	got := sanitizeControlChars(in)
	assert.Equal(t, in, got) // already-escaped \n stays untouched
}
