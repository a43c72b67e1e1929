package output

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"

	"github.com/penwyp/tokencat/aggregate"
)

// JSONRenderer writes reports as indented JSON for scripting.
type JSONRenderer struct {
	w io.Writer
}

// NewJSONRenderer creates a JSON renderer writing to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{w: w}
}

func (r *JSONRenderer) Render(report *aggregate.Report) error {
	data, err := sonic.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// RenderHistogramJSON writes a histogram as indented JSON.
func RenderHistogramJSON(w io.Writer, h *aggregate.Histogram) error {
	data, err := sonic.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal histogram: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
