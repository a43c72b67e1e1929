package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/penwyp/tokencat/models"
)

// GroupBy selects how records are bucketed into report rows.
type GroupBy string

const (
	GroupDaily   GroupBy = "daily"
	GroupMonthly GroupBy = "monthly"
	GroupSession GroupBy = "session"
	GroupModel   GroupBy = "model"
)

// ModelDetail is the per-model breakdown inside one bucket.
type ModelDetail struct {
	Model  string             `json:"model"`
	Tokens models.TokenCounts `json:"tokens"`
	// Cost is in the report currency. Priced is false when the model had
	// no pricing entry; such rows contribute zero cost.
	Cost   float64 `json:"cost"`
	Priced bool    `json:"priced"`
}

// Bucket is one aggregated report row.
type Bucket struct {
	Key      string             `json:"key"`
	Tokens   models.TokenCounts `json:"tokens"`
	Cost     float64            `json:"cost"`
	Models   []string           `json:"models,omitempty"`
	Projects []string           `json:"projects,omitempty"`
	Tools    []string           `json:"tools,omitempty"`
	Details  []ModelDetail      `json:"details,omitempty"`
}

// Report is the aggregation result rendered by the output package.
type Report struct {
	GroupBy  GroupBy             `json:"group_by"`
	Currency models.ExchangeRate `json:"currency"`
	Buckets  []Bucket            `json:"buckets"`
	Totals   Bucket              `json:"totals"`
	// UnpricedModels lists models that appeared in records but had no
	// pricing entry, sorted. Rendered as a footnote.
	UnpricedModels []string  `json:"unpriced_models,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Options configures one aggregation pass.
type Options struct {
	GroupBy GroupBy
	Filter  ReportFilter
	// Breakdown attaches per-model details to each bucket.
	Breakdown bool
	Pricing   *models.PriceTable
	Rate      models.ExchangeRate
	// Location is the timezone used for day and month bucketing.
	Location *time.Location
	Now      time.Time
}

// bucketState carries the per-key accumulators of the hot loop.
type bucketState struct {
	tokens   models.TokenCounts
	costUSD  float64
	projects map[string]bool
	tools    map[string]bool
	details  map[string]*detailState
}

type detailState struct {
	tokens  models.TokenCounts
	costUSD float64
	priced  bool
}

// Build aggregates the filtered record set into a report. Costs are
// computed in USD via the price table and converted to the target currency
// once per bucket.
func Build(records []models.UsageRecord, opts Options) (*Report, error) {
	if err := opts.Filter.Validate(); err != nil {
		return nil, err
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	filtered := opts.Filter.Apply(records)

	states := make(map[string]*bucketState)
	for i := range filtered {
		r := &filtered[i]
		key := bucketKey(r, opts.GroupBy, opts.Location)

		state, ok := states[key]
		if !ok {
			state = &bucketState{
				projects: make(map[string]bool),
				tools:    make(map[string]bool),
				details:  make(map[string]*detailState),
			}
			states[key] = state
		}

		costUSD, priced := opts.Pricing.CostForRecord(r)

		state.tokens.Add(r)
		state.costUSD += costUSD
		if r.Project != "" {
			state.projects[r.Project] = true
		}
		state.tools[r.Tool] = true

		detail, ok := state.details[r.Model]
		if !ok {
			detail = &detailState{}
			state.details[r.Model] = detail
		}
		detail.tokens.Add(r)
		detail.costUSD += costUSD
		detail.priced = detail.priced || priced
	}

	report := &Report{
		GroupBy:        opts.GroupBy,
		Currency:       opts.Rate,
		Buckets:        make([]Bucket, 0, len(states)),
		UnpricedModels: opts.Pricing.UnpricedModels(filtered),
		GeneratedAt:    opts.Now,
	}

	for key, state := range states {
		bucket := Bucket{
			Key:      key,
			Tokens:   state.tokens,
			Cost:     opts.Rate.Convert(state.costUSD),
			Projects: sortedKeys(state.projects),
			Tools:    sortedKeys(state.tools),
		}

		details := make([]ModelDetail, 0, len(state.details))
		for model, d := range state.details {
			details = append(details, ModelDetail{
				Model:  model,
				Tokens: d.tokens,
				Cost:   opts.Rate.Convert(d.costUSD),
				Priced: d.priced,
			})
		}
		sort.Slice(details, func(i, j int) bool {
			if details[i].Cost != details[j].Cost {
				return details[i].Cost > details[j].Cost
			}
			return details[i].Model < details[j].Model
		})

		bucket.Models = make([]string, len(details))
		for i, d := range details {
			bucket.Models[i] = ShortModelName(d.Model)
		}
		if opts.Breakdown {
			bucket.Details = details
		}

		report.Totals.Tokens.Input += bucket.Tokens.Input
		report.Totals.Tokens.Output += bucket.Tokens.Output
		report.Totals.Tokens.CacheCreation += bucket.Tokens.CacheCreation
		report.Totals.Tokens.CacheRead += bucket.Tokens.CacheRead
		report.Totals.Cost += bucket.Cost

		report.Buckets = append(report.Buckets, bucket)
	}
	report.Totals.Key = "Total"

	sortBuckets(report.Buckets, opts.GroupBy)
	return report, nil
}

// bucketKey maps a record to its report row key.
func bucketKey(r *models.UsageRecord, groupBy GroupBy, loc *time.Location) string {
	switch groupBy {
	case GroupMonthly:
		return r.Timestamp.In(loc).Format("2006-01")
	case GroupSession:
		return fmt.Sprintf("%s | %s", r.Project, r.SessionID)
	case GroupModel:
		return r.Model
	default:
		return r.Timestamp.In(loc).Format("2006-01-02")
	}
}

// sortBuckets orders rows for display: time keys ascending, session and
// model keys by cost descending with lexicographic ties.
func sortBuckets(buckets []Bucket, groupBy GroupBy) {
	switch groupBy {
	case GroupSession, GroupModel:
		sort.Slice(buckets, func(i, j int) bool {
			if buckets[i].Cost != buckets[j].Cost {
				return buckets[i].Cost > buckets[j].Cost
			}
			return buckets[i].Key < buckets[j].Key
		})
	default:
		sort.Slice(buckets, func(i, j int) bool {
			return buckets[i].Key < buckets[j].Key
		})
	}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ShortModelName shortens a model identifier for display:
// "claude-sonnet-4-5-20250929" becomes "sonnet-4-5".
func ShortModelName(model string) string {
	s := strings.TrimPrefix(model, "claude-")
	if len(s) > 9 && s[len(s)-9] == '-' && allDigits(s[len(s)-8:]) {
		return s[:len(s)-9]
	}
	return s
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
