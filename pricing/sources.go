package pricing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/penwyp/tokencat/models"
)

const (
	liteLLMURL    = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"
	openRouterURL = "https://api.openrouter.ai/api/v1/models"
	llmPricesURL  = "https://www.llm-prices.com/current-v1.json"
)

// source describes one remote pricing catalog.
type source struct {
	url   string
	parse func(data []byte) (map[string]models.ModelPricing, error)
}

func defaultSources() map[string]source {
	return map[string]source{
		"litellm":    {url: liteLLMURL, parse: parseLiteLLM},
		"openrouter": {url: openRouterURL, parse: parseOpenRouter},
		"llmprices":  {url: llmPricesURL, parse: parseLLMPrices},
	}
}

// liteLLMModel is the subset of LiteLLM's per-model record we consume.
// Entries without token pricing (embeddings, image models) are skipped.
type liteLLMModel struct {
	InputCostPerToken           *float64 `json:"input_cost_per_token"`
	OutputCostPerToken          *float64 `json:"output_cost_per_token"`
	CacheCreationInputTokenCost *float64 `json:"cache_creation_input_token_cost"`
	CacheReadInputTokenCost     *float64 `json:"cache_read_input_token_cost"`
}

func parseLiteLLM(data []byte) (map[string]models.ModelPricing, error) {
	var raw map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse litellm pricing data: %w", err)
	}

	table := make(map[string]models.ModelPricing)
	for key, rawModel := range raw {
		var m liteLLMModel
		if err := sonic.Unmarshal(rawModel, &m); err != nil {
			continue
		}
		if m.InputCostPerToken == nil || m.OutputCostPerToken == nil {
			continue
		}

		pricing := models.ModelPricing{
			InputCostPerToken:         *m.InputCostPerToken,
			OutputCostPerToken:        *m.OutputCostPerToken,
			CacheCreationCostPerToken: m.CacheCreationInputTokenCost,
			CacheReadCostPerToken:     m.CacheReadInputTokenCost,
		}

		table[key] = pricing

		// Register normalized variants so tool-reported model names like
		// "claude-opus-4-20250514" resolve against bedrock-style keys.
		// The original key always wins over a variant.
		for _, variant := range normalizeKey(key) {
			if _, ok := table[variant]; !ok {
				table[variant] = pricing
			}
		}
	}
	return table, nil
}

// openRouterModel mirrors OpenRouter's /api/v1/models entries; prices come
// as decimal strings.
type openRouterModel struct {
	ID      string `json:"id"`
	Pricing struct {
		Prompt          string `json:"prompt"`
		Completion      string `json:"completion"`
		InputCacheRead  string `json:"input_cache_read"`
		InputCacheWrite string `json:"input_cache_write"`
	} `json:"pricing"`
}

func parseOpenRouter(data []byte) (map[string]models.ModelPricing, error) {
	var raw struct {
		Data []openRouterModel `json:"data"`
	}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse openrouter pricing data: %w", err)
	}

	table := make(map[string]models.ModelPricing)
	for _, m := range raw.Data {
		if m.ID == "" {
			continue
		}
		input, err := strconv.ParseFloat(m.Pricing.Prompt, 64)
		if err != nil {
			continue
		}
		output, err := strconv.ParseFloat(m.Pricing.Completion, 64)
		if err != nil {
			continue
		}

		pricing := models.ModelPricing{
			InputCostPerToken:  input,
			OutputCostPerToken: output,
		}
		if v, err := strconv.ParseFloat(m.Pricing.InputCacheRead, 64); err == nil {
			pricing.CacheReadCostPerToken = &v
		}
		if v, err := strconv.ParseFloat(m.Pricing.InputCacheWrite, 64); err == nil {
			pricing.CacheCreationCostPerToken = &v
		}

		table[m.ID] = pricing

		// IDs look like "anthropic/claude-opus-4"; register the short
		// form too, keeping the full ID authoritative.
		if idx := strings.LastIndex(m.ID, "/"); idx >= 0 {
			short := m.ID[idx+1:]
			if _, ok := table[short]; !ok && short != "" {
				table[short] = pricing
			}
		}
	}
	return table, nil
}

// llmPricesEntry carries prices per million tokens.
type llmPricesEntry struct {
	ID          string   `json:"id"`
	Input       *float64 `json:"input"`
	Output      *float64 `json:"output"`
	InputCached *float64 `json:"input_cached"`
}

func parseLLMPrices(data []byte) (map[string]models.ModelPricing, error) {
	var raw struct {
		Prices []llmPricesEntry `json:"prices"`
	}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse llm-prices data: %w", err)
	}

	table := make(map[string]models.ModelPricing)
	for _, e := range raw.Prices {
		if e.ID == "" || e.Input == nil || e.Output == nil {
			continue
		}
		pricing := models.ModelPricing{
			InputCostPerToken:  *e.Input / 1_000_000,
			OutputCostPerToken: *e.Output / 1_000_000,
		}
		if e.InputCached != nil {
			v := *e.InputCached / 1_000_000
			pricing.CacheReadCostPerToken = &v
		}
		table[e.ID] = pricing
	}
	return table, nil
}

// normalizeKey generates lookup variants of a catalog key by stripping
// provider prefixes and version suffixes.
func normalizeKey(key string) []string {
	var variants []string

	stripped := stripProviderPrefix(key)
	if stripped != key {
		variants = append(variants, stripped)
	}

	withoutSuffix := stripVersionSuffix(stripped)
	if withoutSuffix != stripped {
		variants = append(variants, withoutSuffix)
	}

	return variants
}

func stripProviderPrefix(key string) string {
	// Longest prefixes first.
	prefixes := []string{
		"us.anthropic.",
		"eu.anthropic.",
		"au.anthropic.",
		"apac.anthropic.",
		"global.anthropic.",
		"anthropic.",
		"bedrock/",
		"openai/",
	}
	for _, prefix := range prefixes {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			if prefix == "bedrock/" {
				// Bedrock keys may embed a region: "bedrock/us-west-2/...".
				if idx := strings.Index(rest, "/"); idx >= 0 {
					return rest[idx+1:]
				}
			}
			return rest
		}
	}
	return key
}

func stripVersionSuffix(key string) string {
	if stripped, ok := strings.CutSuffix(key, ":0"); ok {
		if stripped2, ok := strings.CutSuffix(stripped, "-v1"); ok {
			return stripped2
		}
		return stripped
	}
	if stripped, ok := strings.CutSuffix(key, "-v1"); ok {
		return stripped
	}
	return key
}
