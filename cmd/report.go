package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/penwyp/tokencat/aggregate"
	"github.com/penwyp/tokencat/config"
	"github.com/penwyp/tokencat/internal"
	"github.com/penwyp/tokencat/models"
	"github.com/penwyp/tokencat/output"
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Token usage grouped by day",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd, aggregate.GroupDaily)
	},
}

var monthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Token usage grouped by month",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd, aggregate.GroupMonthly)
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Token usage grouped by session, costliest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd, aggregate.GroupSession)
	},
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Token usage grouped by model, costliest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd, aggregate.GroupModel)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{dailyCmd, monthlyCmd, sessionCmd, modelCmd} {
		addReportFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
	addReportFlags(rootCmd)
}

func runReport(cmd *cobra.Command, groupBy aggregate.GroupBy) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	filter, err := buildFilter(cfg)
	if err != nil {
		return err
	}

	app, err := internal.NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Report(cmd.Context(), internal.ReportOptions{
		GroupBy:   groupBy,
		Filter:    filter,
		Breakdown: flagBreakdown,
	})
	if err != nil {
		return err
	}

	renderer, err := reportRenderer()
	if err != nil {
		return err
	}
	return renderer.Render(report)
}

// buildFilter parses the date flags in the configured timezone. --from is
// the start of its day, --to the end of its day, both inclusive.
func buildFilter(cfg *config.Config) (aggregate.ReportFilter, error) {
	filter := aggregate.ReportFilter{
		Project: flagProject,
		Tool:    flagTool,
	}
	loc := cfg.Location()

	if flagFrom != "" {
		from, err := time.ParseInLocation("2006-01-02", flagFrom, loc)
		if err != nil {
			return filter, models.NewUsageError("invalid --from date %q (expected YYYY-MM-DD)", flagFrom)
		}
		filter.From = &from
	}
	if flagTo != "" {
		to, err := time.ParseInLocation("2006-01-02", flagTo, loc)
		if err != nil {
			return filter, models.NewUsageError("invalid --to date %q (expected YYYY-MM-DD)", flagTo)
		}
		end := to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.To = &end
	}
	return filter, filter.Validate()
}

type reportOutput interface {
	Render(report *aggregate.Report) error
}

func reportRenderer() (reportOutput, error) {
	switch flagFormat {
	case "table", "":
		return output.NewTableRenderer(os.Stdout), nil
	case "json":
		return output.NewJSONRenderer(os.Stdout), nil
	default:
		return nil, models.NewUsageError("unknown output format %q (expected table or json)", flagFormat)
	}
}
