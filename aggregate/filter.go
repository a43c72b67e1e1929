package aggregate

import (
	"strings"
	"time"

	"github.com/penwyp/tokencat/models"
)

// ReportFilter narrows the record set before aggregation. Zero values
// mean "no constraint".
type ReportFilter struct {
	// From and To bound the record timestamp, both inclusive.
	From *time.Time
	To   *time.Time
	// Project matches records whose project contains this substring,
	// case-insensitively.
	Project string
	// Tool matches the tool identifier exactly.
	Tool string
}

// Validate rejects contradictory filters. An inverted date range is a
// caller mistake and is reported verbatim, never silently swapped.
func (f *ReportFilter) Validate() error {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return models.NewUsageError("invalid date range: from %s is after to %s",
			f.From.Format("2006-01-02"), f.To.Format("2006-01-02"))
	}
	return nil
}

// Apply returns the records passing every constraint.
func (f *ReportFilter) Apply(records []models.UsageRecord) []models.UsageRecord {
	if f.From == nil && f.To == nil && f.Project == "" && f.Tool == "" {
		return records
	}

	project := strings.ToLower(f.Project)
	filtered := make([]models.UsageRecord, 0, len(records))
	for _, r := range records {
		if f.From != nil && r.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && r.Timestamp.After(*f.To) {
			continue
		}
		if project != "" && !strings.Contains(strings.ToLower(r.Project), project) {
			continue
		}
		if f.Tool != "" && r.Tool != f.Tool {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}
