package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/penwyp/tokencat/aggregate"
	"github.com/penwyp/tokencat/fileio"
	"github.com/penwyp/tokencat/internal"
	"github.com/penwyp/tokencat/monitor"
	"github.com/penwyp/tokencat/output"
)

var (
	watchPlain    bool
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live-updating usage report",
	Long: `Watch the provider log directories and refresh the report when they
change. Write bursts are debounced: the refresh runs once the logs go
quiet, and a periodic safety refresh covers missed filesystem events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if watchInterval > 0 {
			cfg.Watch.QuietInterval = watchInterval
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

		watcher, err := fileio.NewWatcher(app.WatchRoots())
		if err != nil {
			return err
		}

		refresh := app.RefreshFunc(internal.ReportOptions{
			GroupBy:   aggregate.GroupDaily,
			Filter:    filter,
			Breakdown: flagBreakdown,
		})

		if watchPlain {
			return runPlainWatch(cmd.Context(), watcher, refresh, cfg.Watch.QuietInterval, cfg.Watch.MaxInterval)
		}
		return runTUIWatch(watcher, refresh, cfg.Watch.QuietInterval, cfg.Watch.MaxInterval)
	},
}

func init() {
	addReportFlags(watchCmd)
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "print refreshed reports instead of the TUI")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "debounce quiet interval (e.g. 2s)")
	rootCmd.AddCommand(watchCmd)
}

// runPlainWatch streams each refreshed report to stdout until interrupted.
func runPlainWatch(ctx context.Context, watcher *fileio.Watcher, refresh monitor.RefreshFunc, quiet, maxInterval time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := monitor.New(watcher, refresh, output.NewPlainRenderer(os.Stdout), quiet, maxInterval)
	return loop.Run(ctx)
}

// runTUIWatch drives the bubbletea UI; the monitor loop feeds it and is
// torn down when the user quits.
func runTUIWatch(watcher *fileio.Watcher, refresh monitor.RefreshFunc, quiet, maxInterval time.Duration) error {
	program := tea.NewProgram(output.NewWatchModel())

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() {
		loop := monitor.New(watcher, refresh, output.NewTUIRenderer(program), quiet, maxInterval)
		loopDone <- loop.Run(ctx)
	}()

	_, err := program.Run()
	cancel()
	<-loopDone
	return err
}
