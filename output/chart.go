package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/penwyp/tokencat/aggregate"
)

const (
	chartBarWidth = 50
	barChar       = "▇"
)

var (
	barStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	chartTitleStyle = lipgloss.NewStyle().Bold(true)
	axisStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderHistogram writes a histogram as a horizontal unicode bar chart,
// one row per bucket with the bucket label on the axis.
func RenderHistogram(w io.Writer, h *aggregate.Histogram) error {
	var max int64
	labelWidth := 0
	for _, b := range h.Buckets {
		if b.Tokens > max {
			max = b.Tokens
		}
		if len(b.Label) > labelWidth {
			labelWidth = len(b.Label)
		}
	}

	var sb strings.Builder
	sb.WriteString(chartTitleStyle.Render(h.Title()))
	sb.WriteString("\n")

	if max == 0 {
		sb.WriteString("No usage in this window.\n")
		_, err := io.WriteString(w, sb.String())
		return err
	}

	for _, b := range h.Buckets {
		width := int(b.Tokens * chartBarWidth / max)
		if b.Tokens > 0 && width == 0 {
			width = 1
		}

		sb.WriteString(axisStyle.Render(fmt.Sprintf("%*s │", labelWidth, b.Label)))
		sb.WriteString(barStyle.Render(strings.Repeat(barChar, width)))
		if b.Tokens > 0 {
			sb.WriteString(fmt.Sprintf(" %s", formatCount(b.Tokens)))
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
