package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/penwyp/tokencat/aggregate"
	"github.com/penwyp/tokencat/internal"
	"github.com/penwyp/tokencat/models"
	"github.com/penwyp/tokencat/output"
)

var (
	plotRelative bool
	plotFormat   string
)

var plotCmd = &cobra.Command{
	Use:   "plot [1d|1w|1m]",
	Short: "Plot token usage over time as a bar chart",
	Long: `Plot token usage as a histogram: 1d uses 48 thirty-minute buckets,
1w uses 28 six-hour buckets, and 1m uses 30 daily buckets.

By default bucket boundaries align to the clock (whole hours for 1d,
midnights for 1w and 1m); --relative anchors the window to the current
moment instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		period := aggregate.Period1D
		if len(args) == 1 {
			period = aggregate.HistogramPeriod(args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		app, err := internal.NewApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		h, err := app.Histogram(cmd.Context(), period, plotRelative)
		if err != nil {
			return err
		}

		switch plotFormat {
		case "chart", "":
			return output.RenderHistogram(os.Stdout, h)
		case "json":
			return output.RenderHistogramJSON(os.Stdout, h)
		default:
			return models.NewUsageError("unknown output format %q (expected chart or json)", plotFormat)
		}
	},
}

func init() {
	plotCmd.Flags().BoolVar(&plotRelative, "relative", false, "anchor the window to now instead of the clock")
	plotCmd.Flags().StringVar(&plotFormat, "format", "chart", "output format (chart, json)")
	rootCmd.AddCommand(plotCmd)
}
