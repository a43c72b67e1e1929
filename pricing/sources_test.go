package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const liteLLMSample = `{
	"claude-opus-4-20250514": {
		"input_cost_per_token": 0.000015,
		"output_cost_per_token": 0.000075,
		"cache_creation_input_token_cost": 0.00001875,
		"cache_read_input_token_cost": 0.0000015
	},
	"us.anthropic.claude-sonnet-4-20250514-v1:0": {
		"input_cost_per_token": 0.000003,
		"output_cost_per_token": 0.000015
	},
	"text-embedding-3-small": {
		"output_vector_size": 1536
	}
}`

func TestParseLiteLLM(t *testing.T) {
	table, err := parseLiteLLM([]byte(liteLLMSample))
	require.NoError(t, err)

	p, ok := table["claude-opus-4-20250514"]
	require.True(t, ok)
	assert.InDelta(t, 0.000015, p.InputCostPerToken, 1e-12)
	assert.InDelta(t, 0.000075, p.OutputCostPerToken, 1e-12)
	require.NotNil(t, p.CacheCreationCostPerToken)
	assert.InDelta(t, 0.00001875, *p.CacheCreationCostPerToken, 1e-12)
	require.NotNil(t, p.CacheReadCostPerToken)
	assert.InDelta(t, 0.0000015, *p.CacheReadCostPerToken, 1e-12)

	// Entries without token pricing are skipped.
	_, ok = table["text-embedding-3-small"]
	assert.False(t, ok)
}

func TestParseLiteLLMNormalizedVariants(t *testing.T) {
	table, err := parseLiteLLM([]byte(liteLLMSample))
	require.NoError(t, err)

	// The bedrock-style key gains a prefix-stripped variant and a fully
	// normalized one matching the tool-reported name.
	for _, key := range []string{
		"us.anthropic.claude-sonnet-4-20250514-v1:0",
		"claude-sonnet-4-20250514-v1:0",
		"claude-sonnet-4-20250514",
	} {
		p, ok := table[key]
		require.True(t, ok, "missing key %s", key)
		assert.InDelta(t, 0.000003, p.InputCostPerToken, 1e-12)
	}
}

func TestParseOpenRouter(t *testing.T) {
	sample := `{"data": [
		{"id": "anthropic/claude-opus-4", "pricing": {"prompt": "0.000015", "completion": "0.000075", "input_cache_read": "0.0000015", "input_cache_write": "0.00001875"}},
		{"id": "openai/gpt-5", "pricing": {"prompt": "0.00000125", "completion": "0.00001"}},
		{"id": "broken/model", "pricing": {"prompt": "free", "completion": "0"}}
	]}`

	table, err := parseOpenRouter([]byte(sample))
	require.NoError(t, err)

	p, ok := table["anthropic/claude-opus-4"]
	require.True(t, ok)
	assert.InDelta(t, 0.000015, p.InputCostPerToken, 1e-12)
	require.NotNil(t, p.CacheReadCostPerToken)

	// Short form registered alongside the full ID.
	short, ok := table["claude-opus-4"]
	require.True(t, ok)
	assert.Equal(t, p.InputCostPerToken, short.InputCostPerToken)

	gpt, ok := table["gpt-5"]
	require.True(t, ok)
	assert.Nil(t, gpt.CacheReadCostPerToken)

	_, ok = table["broken/model"]
	assert.False(t, ok, "unparseable prices are skipped")
}

func TestParseLLMPrices(t *testing.T) {
	sample := `{"prices": [
		{"id": "claude-opus-4", "input": 15.0, "output": 75.0, "input_cached": 1.5},
		{"id": "gpt-5", "input": 1.25, "output": 10.0},
		{"id": "incomplete", "input": 1.0}
	]}`

	table, err := parseLLMPrices([]byte(sample))
	require.NoError(t, err)

	p, ok := table["claude-opus-4"]
	require.True(t, ok)
	assert.InDelta(t, 0.000015, p.InputCostPerToken, 1e-12)
	assert.InDelta(t, 0.000075, p.OutputCostPerToken, 1e-12)
	require.NotNil(t, p.CacheReadCostPerToken)
	assert.InDelta(t, 0.0000015, *p.CacheReadCostPerToken, 1e-12)

	_, ok = table["incomplete"]
	assert.False(t, ok)
}

func TestParseInvalidPayloads(t *testing.T) {
	_, err := parseLiteLLM([]byte("not json"))
	assert.Error(t, err)
	_, err = parseOpenRouter([]byte("not json"))
	assert.Error(t, err)
	_, err = parseLLMPrices([]byte("not json"))
	assert.Error(t, err)
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		key  string
		want []string
	}{
		{"claude-opus-4-20250514", nil},
		{"anthropic.claude-opus-4-20250514-v1:0",
			[]string{"claude-opus-4-20250514-v1:0", "claude-opus-4-20250514"}},
		{"us.anthropic.claude-sonnet-4-20250514-v1:0",
			[]string{"claude-sonnet-4-20250514-v1:0", "claude-sonnet-4-20250514"}},
		{"bedrock/us-west-2/anthropic.claude-3-opus",
			[]string{"anthropic.claude-3-opus"}},
		{"openai/gpt-5", []string{"gpt-5"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeKey(tt.key), "key %s", tt.key)
	}
}

func TestStripVersionSuffix(t *testing.T) {
	assert.Equal(t, "model", stripVersionSuffix("model-v1:0"))
	assert.Equal(t, "model", stripVersionSuffix("model-v1"))
	assert.Equal(t, "model", stripVersionSuffix("model:0"))
	assert.Equal(t, "model", stripVersionSuffix("model"))
}
