package models

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// ModelPricing holds per-token costs (USD) for one model.
type ModelPricing struct {
	InputCostPerToken         float64  `json:"input_cost_per_token"`
	OutputCostPerToken        float64  `json:"output_cost_per_token"`
	CacheCreationCostPerToken *float64 `json:"cache_creation_cost_per_token,omitempty"`
	CacheReadCostPerToken     *float64 `json:"cache_read_cost_per_token,omitempty"`
}

// PriceTable maps model identifiers to per-token pricing. Tables are
// fetched from a remote source and considered fresh for 24 hours.
type PriceTable struct {
	Source    string                  `json:"source"`
	FetchedAt time.Time               `json:"fetched_at"`
	Models    map[string]ModelPricing `json:"models"`

	keysOnce sync.Once
	keys     []string
}

// PriceTableTTL is how long a fetched price table stays fresh.
const PriceTableTTL = 24 * time.Hour

// Fresh reports whether the table is still within its freshness window.
func (t *PriceTable) Fresh(now time.Time) bool {
	return now.Sub(t.FetchedAt) < PriceTableTTL
}

// sortedKeys returns the table's model names in sorted order, built once
// per table. Catalogs run to thousands of entries and Lookup is called per
// record, so rebuilding the list each time would dominate aggregation.
func (t *PriceTable) sortedKeys() []string {
	t.keysOnce.Do(func() {
		t.keys = make([]string, 0, len(t.Models))
		for k := range t.Models {
			t.keys = append(t.keys, k)
		}
		sort.Strings(t.keys)
	})
	return t.keys
}

// Lookup resolves pricing for a model identifier. Provider model names vary
// in spelling, so the match cascades: exact, case-insensitive exact, then
// case-insensitive substring in either direction. Substring candidates are
// tried in sorted key order so the result is deterministic.
func (t *PriceTable) Lookup(model string) (ModelPricing, bool) {
	if p, ok := t.Models[model]; ok {
		return p, true
	}

	lower := strings.ToLower(model)
	keys := t.sortedKeys()

	for _, k := range keys {
		if strings.ToLower(k) == lower {
			return t.Models[k], true
		}
	}
	for _, k := range keys {
		kl := strings.ToLower(k)
		if strings.Contains(kl, lower) || strings.Contains(lower, kl) {
			return t.Models[k], true
		}
	}

	return ModelPricing{}, false
}

// CostForRecord computes the USD cost of one record, honoring a precomputed
// cost when present. The second return is false when the model has no
// pricing entry; such records contribute zero cost.
func (t *PriceTable) CostForRecord(r *UsageRecord) (float64, bool) {
	if r.CostUSD != nil {
		return *r.CostUSD, true
	}

	p, ok := t.Lookup(r.Model)
	if !ok {
		return 0, false
	}

	cost := float64(r.InputTokens)*p.InputCostPerToken +
		float64(r.OutputTokens)*p.OutputCostPerToken
	if p.CacheCreationCostPerToken != nil {
		cost += float64(r.CacheCreationTokens) * *p.CacheCreationCostPerToken
	}
	if p.CacheReadCostPerToken != nil {
		cost += float64(r.CacheReadTokens) * *p.CacheReadCostPerToken
	}
	return cost, true
}

// UnpricedModels returns the sorted set of model names that appear in
// records but have no pricing entry.
func (t *PriceTable) UnpricedModels(records []UsageRecord) []string {
	seen := make(map[string]bool)
	var missing []string
	for i := range records {
		r := &records[i]
		if r.CostUSD != nil || seen[r.Model] {
			continue
		}
		seen[r.Model] = true
		if _, ok := t.Lookup(r.Model); !ok {
			missing = append(missing, r.Model)
		}
	}
	sort.Strings(missing)
	return missing
}
