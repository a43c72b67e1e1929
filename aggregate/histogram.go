package aggregate

import (
	"fmt"
	"time"

	"github.com/penwyp/tokencat/models"
)

// HistogramPeriod selects the time window and bucket width of a histogram.
type HistogramPeriod string

const (
	Period1D HistogramPeriod = "1d" // 48 buckets of 30 minutes
	Period1W HistogramPeriod = "1w" // 28 buckets of 6 hours
	Period1M HistogramPeriod = "1m" // 30 buckets of 1 day
)

// HistogramBucket is one bar of the chart. Label is empty for buckets that
// do not start on a labeled boundary.
type HistogramBucket struct {
	Start  time.Time `json:"start"`
	Label  string    `json:"label"`
	Tokens int64     `json:"tokens"`
}

// Histogram is a fixed-width token timeline. The bucket count is constant
// per period regardless of when it is built.
type Histogram struct {
	Period   HistogramPeriod   `json:"period"`
	Relative bool              `json:"relative"`
	Start    time.Time         `json:"start"`
	End      time.Time         `json:"end"`
	Buckets  []HistogramBucket `json:"buckets"`
}

// Title returns the chart heading for the period.
func (h *Histogram) Title() string {
	switch h.Period {
	case Period1W:
		return "Token usage, last 7 days (6-hour buckets)"
	case Period1M:
		return "Token usage, last 30 days (daily buckets)"
	default:
		return "Token usage, last 24 hours (30-min buckets)"
	}
}

func periodShape(period HistogramPeriod) (count int, width time.Duration, err error) {
	switch period {
	case Period1D:
		return 48, 30 * time.Minute, nil
	case Period1W:
		return 28, 6 * time.Hour, nil
	case Period1M:
		return 30, 24 * time.Hour, nil
	default:
		return 0, 0, models.NewUsageError("unknown histogram period %q (expected 1d, 1w, or 1m)", period)
	}
}

// BuildHistogram buckets records over the period ending at now. In clock
// mode the window end is snapped forward to the next hour (1d) or the next
// midnight (1w, 1m) so bucket boundaries land on round clock times; in
// relative mode the window is exactly [now-window, now]. Either way the
// bucket count is fixed, and records outside the window are dropped.
func BuildHistogram(records []models.UsageRecord, period HistogramPeriod, relative bool, now time.Time, loc *time.Location) (*Histogram, error) {
	count, width, err := periodShape(period)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	var end time.Time
	if relative {
		end = now
	} else if period == Period1D {
		end = snapUpToHour(now)
	} else {
		end = snapUpToMidnight(now)
	}
	start := end.Add(-time.Duration(count) * width)

	h := &Histogram{
		Period:   period,
		Relative: relative,
		Start:    start,
		End:      end,
		Buckets:  make([]HistogramBucket, count),
	}
	for i := range h.Buckets {
		bucketStart := start.Add(time.Duration(i) * width)
		h.Buckets[i].Start = bucketStart
		h.Buckets[i].Label = bucketLabel(bucketStart, period, i)
	}

	for i := range records {
		r := &records[i]
		ts := r.Timestamp.In(loc)
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		idx := int(ts.Sub(start) / width)
		if idx >= 0 && idx < count {
			h.Buckets[idx].Tokens += r.TotalTokens()
		}
	}
	return h, nil
}

// bucketLabel labels round boundaries only: hours for 1d, day names at
// midnight for 1w, day-of-month for 1m.
func bucketLabel(t time.Time, period HistogramPeriod, idx int) string {
	switch period {
	case Period1W:
		if t.Hour() == 0 && t.Minute() == 0 {
			return t.Format("Mon")
		}
		return ""
	case Period1M:
		if t.Day() == 1 || idx == 0 {
			return t.Format("Jan 2")
		}
		return fmt.Sprintf("%d", t.Day())
	default:
		if t.Minute() == 0 {
			return t.Format("15")
		}
		return ""
	}
}

// snapUpToHour rounds forward to the next whole hour; a time already on
// the hour is unchanged.
func snapUpToHour(t time.Time) time.Time {
	snapped := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	if snapped.Before(t) {
		snapped = snapped.Add(time.Hour)
	}
	return snapped
}

// snapUpToMidnight rounds forward to the next midnight; a time already at
// midnight is unchanged.
func snapUpToMidnight(t time.Time) time.Time {
	snapped := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if snapped.Before(t) {
		snapped = snapped.AddDate(0, 0, 1)
	}
	return snapped
}
