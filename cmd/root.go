package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/penwyp/tokencat/config"
	"github.com/penwyp/tokencat/logging"
)

var (
	cfgFile string

	// Report flags shared by the grouping subcommands and watch.
	flagFrom      string
	flagTo        string
	flagProject   string
	flagTool      string
	flagBreakdown bool
	flagFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "tokencat",
	Short: "Token usage and cost tracker for AI coding tools",
	Long: `tokencat aggregates token usage and costs across AI coding assistants
(Claude Code, Codex CLI, Gemini CLI) from their local session logs.

Parsed logs are cached per file, so repeated runs only reparse what
changed. Reports can be grouped by day, month, session, or model, plotted
as a histogram, or watched live.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Bare invocation behaves like the daily report.
		return runReport(cmd, "daily")
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tokencat.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "log file (default is stderr)")
	rootCmd.PersistentFlags().String("cache-dir", "", "cache directory (default is ~/.cache/tokencat)")
	rootCmd.PersistentFlags().String("cache-backend", "", "cache backend (blob, sqlite)")
	rootCmd.PersistentFlags().String("fingerprint", "", "change detection (mtime, hash)")
	rootCmd.PersistentFlags().String("pricing-source", "", "pricing source (litellm, openrouter, llmprices)")
	rootCmd.PersistentFlags().String("currency", "", "display currency (ISO 4217 code)")
	rootCmd.PersistentFlags().Bool("offline", false, "never fetch; use cached pricing and rates only")
	rootCmd.PersistentFlags().StringSlice("extra-root", nil, "additional log directories to scan")
	rootCmd.PersistentFlags().String("timezone", "", "timezone for day and month bucketing")

	bindFlags(rootCmd.PersistentFlags())
}

// bindFlags wires persistent flags into viper so flag values override the
// config file and environment.
func bindFlags(fs *pflag.FlagSet) {
	bindings := map[string]string{
		"app.log_level":       "log-level",
		"app.log_file":        "log-file",
		"app.timezone":        "timezone",
		"cache.dir":           "cache-dir",
		"cache.backend":       "cache-backend",
		"cache.fingerprint":   "fingerprint",
		"data.pricing_source": "pricing-source",
		"data.currency":       "currency",
		"data.offline":        "offline",
		"data.extra_roots":    "extra-root",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to bind %s flag: %v\n", flag, err)
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tokencat")
	}

	viper.SetEnvPrefix("TOKENCAT")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		logging.LogDebugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

func setDefaults() {
	defaults := config.DefaultConfig()

	viper.SetDefault("app.log_level", defaults.App.LogLevel)
	viper.SetDefault("app.log_file", defaults.App.LogFile)
	viper.SetDefault("app.timezone", defaults.App.Timezone)

	viper.SetDefault("cache.dir", defaults.Cache.Dir)
	viper.SetDefault("cache.backend", defaults.Cache.Backend)
	viper.SetDefault("cache.fingerprint", defaults.Cache.Fingerprint)

	viper.SetDefault("data.pricing_source", defaults.Data.PricingSource)
	viper.SetDefault("data.currency", defaults.Data.Currency)
	viper.SetDefault("data.offline", defaults.Data.Offline)
	viper.SetDefault("data.extra_roots", []string{})

	viper.SetDefault("performance.worker_count", defaults.Performance.WorkerCount)
	viper.SetDefault("performance.max_file_size", defaults.Performance.MaxFileSize)

	viper.SetDefault("watch.quiet_interval", defaults.Watch.QuietInterval)
	viper.SetDefault("watch.max_interval", defaults.Watch.MaxInterval)
}

// loadConfig materializes the effective configuration from defaults,
// config file, environment, and flags, and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = config.DefaultCacheDir()
	}

	logging.InitGlobalLogger(cfg.App.LogLevel, cfg.App.LogFile)
	return cfg, nil
}

// addReportFlags registers the filter and output flags on a command.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagFrom, "from", "", "start date (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&flagTo, "to", "", "end date (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&flagProject, "project", "", "filter by project name substring")
	cmd.Flags().StringVar(&flagTool, "tool", "", "filter by tool (claude, codex, gemini)")
	cmd.Flags().BoolVar(&flagBreakdown, "breakdown", false, "show per-model breakdown rows")
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, json)")
}
