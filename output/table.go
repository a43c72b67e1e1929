package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/penwyp/tokencat/aggregate"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	totalsStyle   = lipgloss.NewStyle().Bold(true)
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	footnoteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	separatorChar = "─"
)

// TableRenderer writes reports as an aligned text table.
type TableRenderer struct {
	w io.Writer
}

// NewTableRenderer creates a table renderer writing to w.
func NewTableRenderer(w io.Writer) *TableRenderer {
	return &TableRenderer{w: w}
}

func (r *TableRenderer) Render(report *aggregate.Report) error {
	_, err := io.WriteString(r.w, FormatReport(report))
	return err
}

// keyHeader names the first column per grouping.
func keyHeader(groupBy aggregate.GroupBy) string {
	switch groupBy {
	case aggregate.GroupMonthly:
		return "Month"
	case aggregate.GroupSession:
		return "Session"
	case aggregate.GroupModel:
		return "Model"
	default:
		return "Date"
	}
}

// FormatReport renders a report to a string. It is shared by the table
// renderer and the watch TUI.
func FormatReport(report *aggregate.Report) string {
	headers := []string{keyHeader(report.GroupBy), "Models", "Input", "Output", "Cache Create", "Cache Read", "Cost"}

	rows := make([][]string, 0, len(report.Buckets)+1)
	for _, b := range report.Buckets {
		rows = append(rows, bucketRow(&b, report))
	}
	rows = append(rows, []string{
		report.Totals.Key,
		"",
		formatCount(report.Totals.Tokens.Input),
		formatCount(report.Totals.Tokens.Output),
		formatCount(report.Totals.Tokens.CacheCreation),
		formatCount(report.Totals.Tokens.CacheRead),
		formatCost(report, report.Totals.Cost),
	})

	widths := columnWidths(headers, rows)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(formatRow(headers, widths)))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat(separatorChar, totalWidth(widths)))
	sb.WriteString("\n")

	for i, b := range report.Buckets {
		sb.WriteString(formatRow(rows[i], widths))
		sb.WriteString("\n")
		for _, d := range b.Details {
			detail := formatRow([]string{
				"  " + aggregate.ShortModelName(d.Model),
				"",
				formatCount(d.Tokens.Input),
				formatCount(d.Tokens.Output),
				formatCount(d.Tokens.CacheCreation),
				formatCount(d.Tokens.CacheRead),
				detailCost(report, d),
			}, widths)
			sb.WriteString(detailStyle.Render(detail))
			sb.WriteString("\n")
		}
	}

	sb.WriteString(strings.Repeat(separatorChar, totalWidth(widths)))
	sb.WriteString("\n")
	sb.WriteString(totalsStyle.Render(formatRow(rows[len(rows)-1], widths)))
	sb.WriteString("\n")

	if len(report.UnpricedModels) > 0 {
		note := fmt.Sprintf("No pricing found for: %s (counted as zero cost)",
			strings.Join(report.UnpricedModels, ", "))
		sb.WriteString(footnoteStyle.Render(note))
		sb.WriteString("\n")
	}
	return sb.String()
}

func bucketRow(b *aggregate.Bucket, report *aggregate.Report) []string {
	return []string{
		b.Key,
		strings.Join(b.Models, ", "),
		formatCount(b.Tokens.Input),
		formatCount(b.Tokens.Output),
		formatCount(b.Tokens.CacheCreation),
		formatCount(b.Tokens.CacheRead),
		formatCost(report, b.Cost),
	}
}

func detailCost(report *aggregate.Report, d aggregate.ModelDetail) string {
	if !d.Priced {
		return "N/A"
	}
	return formatCost(report, d.Cost)
}

func formatCost(report *aggregate.Report, cost float64) string {
	symbol := report.Currency.Symbol
	if symbol == "" {
		symbol = "$"
	}
	return fmt.Sprintf("%s%.2f", symbol, cost)
}

// formatCount renders a token count with thousands separators.
func formatCount(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		sb.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}

func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	return widths
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i <= 1 {
			// Key and model columns are left-aligned, numbers right.
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		} else {
			parts[i] = fmt.Sprintf("%*s", widths[i], cell)
		}
	}
	return strings.TrimRight(strings.Join(parts, "  "), " ")
}

func totalWidth(widths []int) int {
	total := 2 * (len(widths) - 1)
	for _, w := range widths {
		total += w
	}
	return total
}
