package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contextutils "ieltsprep/internal/utils"
)

func TestExtractJSON_FencedBlock(t *testing.T) {
	input := "Here is your test:\n```json\n{\"passage\": \"text\"}\n```\nLet me know if you need changes."
	out, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `{"passage": "text"}`, out)
}

func TestExtractJSON_FenceWithoutLanguageTag(t *testing.T) {
	input := "```\n[1, 2, 3]\n```"
	out, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.Equal(t, "[1, 2, 3]", out)
}

func TestExtractJSON_FencePreferredOverEarlierBrace(t *testing.T) {
	// Prose before the fence contains a brace; the fenced block must win.
	input := "The schema {like this} is shown below.\n```json\n{\"questions\": []}\n```"
	out, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `{"questions": []}`, out)
}

func TestExtractJSON_BareObjectWithProse(t *testing.T) {
	input := `Sure! {"title": "Coral Reefs", "body": "a { inside string }"} hope that helps`
	out, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
	assert.Equal(t, `{"title": "Coral Reefs", "body": "a { inside string }"}`, out)
}

func TestExtractJSON_EscapedQuoteInString(t *testing.T) {
	input := `prefix {"text": "she said \"hello {\" loudly"} suffix`
	out, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
}

func TestExtractJSON_BareArray(t *testing.T) {
	// The array opens first, so the nested objects are not top-level spans.
	input := `answer follows [ {"q": 1}, {"q": 2} ] done`
	out, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `[ {"q": 1}, {"q": 2} ]`, out)
}

func TestExtractJSON_ArrayOnly(t *testing.T) {
	input := `ready: ["A", "B", "C"]`
	out, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `["A", "B", "C"]`, out)
}

func TestExtractJSON_WholeStringIsJSON(t *testing.T) {
	input := "  {\"ok\": true}  "
	out, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
}

func TestExtractJSON_RoundTripThroughFences(t *testing.T) {
	cases := []string{
		`{"a": 1, "b": [1, 2, {"c": "d"}]}`,
		`[{"question_number": 1, "correct_answer": "TRUE"}]`,
		`{"nested": {"deep": {"deeper": []}}}`,
	}
	for _, valid := range cases {
		wrapped := "```json\n" + valid + "\n```"
		out, err := ExtractJSON(wrapped)
		require.NoError(t, err)
		assert.Equal(t, valid, out)
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("I am sorry, I cannot generate that content.")
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeModelParse, contextutils.GetErrorCode(err))
}

func TestExtractJSON_UnbalancedBraces(t *testing.T) {
	_, err := ExtractJSON(`broken {"a": 1`)
	require.Error(t, err)
}
