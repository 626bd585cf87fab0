package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information - set via ldflags during build
	// Example: go build -ldflags "-X github.com/mitchzink/snowflake-exporter/cmd.Version=1.2.3"
	Version = "dev"

	// signalContext is set by main() before Cobra initialization
	// This ensures signal handling is set up before any library can interfere
	signalContext context.Context

	cfgFile          string
	debug            bool
	logFormat        string
	sfAccount        string
	sfUser           string
	sfRole           string
	sfWarehouse      string
	sfPassword       string
	sfBrowserAuth    bool
	s3Endpoint       string
	s3Bucket         string
	s3AccessKey      string
	s3SecretKey      string
	s3Region         string
	table            string
	dateColumn       string
	startDate        string
	endDate          string
	groupBy          string
	filenamePrefix   string
	outputDir        string
	cleanOutputDir   bool
	workers          int
	dryRun           bool
	outputFormat     string
	compression      string
	compressionLevel int
	bundle           bool

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true).
			Underline(true)

	logger *slog.Logger
)

// SetSignalContext stores the signal-aware context created in main()
// This must be called before Execute() to ensure proper signal handling
func SetSignalContext(ctx context.Context) {
	signalContext = ctx
}

// textOnlyHandler is a custom slog handler that outputs human-readable text
// without key=value pairs, suitable for interactive terminal usage
type textOnlyHandler struct {
	opts   slog.HandlerOptions
	writer io.Writer
}

func newTextOnlyHandler(w io.Writer, opts *slog.HandlerOptions) *textOnlyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &textOnlyHandler{
		opts:   *opts,
		writer: w,
	}
}

func (h *textOnlyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *textOnlyHandler) Handle(_ context.Context, r slog.Record) error {
	// Format: YYYY-MM-DD HH:MM:SS LEVEL message
	timestamp := r.Time.Format("2006-01-02 15:04:05")
	level := r.Level.String()

	_, err := fmt.Fprintf(h.writer, "%s %s %s\n", timestamp, level, r.Message)
	return err
}

func (h *textOnlyHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	// Attributes are ignored in text-only mode
	return h
}

func (h *textOnlyHandler) WithGroup(_ string) slog.Handler {
	return h
}

// initLogger initializes the slog logger based on debug flag and log format
func initLogger(isDebug bool, format string) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if isDebug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "logfmt":
		// logfmt uses slog.TextHandler which outputs key=value pairs
		handler = slog.NewTextHandler(os.Stdout, opts)
	default: // "text" or anything else
		handler = newTextOnlyHandler(os.Stdout, opts)
	}

	logger = slog.New(handler)
}

var rootCmd = &cobra.Command{
	Use:     "snowflake-exporter",
	Version: Version,
	Short:   "❄  Export Snowflake table data to delimited files",
	Long: titleStyle.Render("Snowflake Exporter") + `

A CLI tool to export Snowflake table data to local files or S3-compatible storage.
Splits a date range into day/month/year intervals, fetches them in parallel over a
shared connection, serializes to pipe-delimited CSV or JSONL, optionally compresses
with zstd/lz4/gzip, and can bundle everything into a single zip archive.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// Show help when no subcommand is specified
		cmd.Help()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export table data to delimited files",
	Long:  `Export table data to delimited files. Fetches rows per date interval, serializes, compresses, and writes artifacts to the output directory or S3.`,
	Run: func(_ *cobra.Command, _ []string) {
		runExport()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(exportCmd)

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.snowflake-exporter.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, logfmt, json)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "plan intervals and print queries without executing them")

	// Export-specific flags
	exportCmd.Flags().StringVar(&sfAccount, "account", "", "Snowflake account identifier (required)")
	exportCmd.Flags().StringVar(&sfUser, "user", "", "Snowflake user (required)")
	exportCmd.Flags().StringVar(&sfRole, "role", "", "Snowflake role")
	exportCmd.Flags().StringVar(&sfWarehouse, "warehouse", "", "Snowflake warehouse (required)")
	exportCmd.Flags().StringVar(&sfPassword, "password", "", "Snowflake password")
	exportCmd.Flags().BoolVar(&sfBrowserAuth, "external-browser", false, "authenticate via external browser SSO instead of password")

	exportCmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL")
	exportCmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket name")
	exportCmd.Flags().StringVar(&s3AccessKey, "s3-access-key", "", "S3 access key")
	exportCmd.Flags().StringVar(&s3SecretKey, "s3-secret-key", "", "S3 secret key")
	exportCmd.Flags().StringVar(&s3Region, "s3-region", "auto", "S3 region")

	exportCmd.Flags().StringVar(&table, "table", "", "fully qualified table name, database.schema.table (required)")
	exportCmd.Flags().StringVar(&dateColumn, "date-column", "", "date column used to bound each interval query (required)")
	exportCmd.Flags().StringVar(&startDate, "start-date", "", "start date (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&endDate, "end-date", time.Now().Format("2006-01-02"), "end date, inclusive (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&groupBy, "group-by", "day", "interval granularity: none, day, month, year")
	exportCmd.Flags().StringVar(&filenamePrefix, "prefix", "exported_data", "artifact filename prefix")
	exportCmd.Flags().StringVar(&outputDir, "output-dir", "csv", "directory for exported artifacts")
	exportCmd.Flags().BoolVar(&cleanOutputDir, "clean", false, "delete the output directory before writing")
	exportCmd.Flags().IntVar(&workers, "workers", 4, "number of parallel fetch workers")
	exportCmd.Flags().StringVar(&outputFormat, "output-format", "csv", "output format: csv, jsonl")
	exportCmd.Flags().StringVar(&compression, "compression", "none", "compression type: zstd, lz4, gzip, none")
	exportCmd.Flags().IntVar(&compressionLevel, "compression-level", 3, "compression level (zstd: 1-22, lz4/gzip: 1-9, none: 0)")
	exportCmd.Flags().BoolVar(&bundle, "bundle", false, "bundle all artifacts into a single zip archive")

	// Note: We don't use MarkFlagRequired because it checks before viper loads the config file.
	// Instead, validation happens in config.Validate() which runs after all config sources are loaded.

	// Bind persistent flags
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))

	// Bind export flags
	_ = viper.BindPFlag("snowflake.account", exportCmd.Flags().Lookup("account"))
	_ = viper.BindPFlag("snowflake.user", exportCmd.Flags().Lookup("user"))
	_ = viper.BindPFlag("snowflake.role", exportCmd.Flags().Lookup("role"))
	_ = viper.BindPFlag("snowflake.warehouse", exportCmd.Flags().Lookup("warehouse"))
	_ = viper.BindPFlag("snowflake.password", exportCmd.Flags().Lookup("password"))
	_ = viper.BindPFlag("snowflake.external_browser", exportCmd.Flags().Lookup("external-browser"))
	_ = viper.BindPFlag("s3.endpoint", exportCmd.Flags().Lookup("s3-endpoint"))
	_ = viper.BindPFlag("s3.bucket", exportCmd.Flags().Lookup("s3-bucket"))
	_ = viper.BindPFlag("s3.access_key", exportCmd.Flags().Lookup("s3-access-key"))
	_ = viper.BindPFlag("s3.secret_key", exportCmd.Flags().Lookup("s3-secret-key"))
	_ = viper.BindPFlag("s3.region", exportCmd.Flags().Lookup("s3-region"))
	_ = viper.BindPFlag("table", exportCmd.Flags().Lookup("table"))
	_ = viper.BindPFlag("date_column", exportCmd.Flags().Lookup("date-column"))
	_ = viper.BindPFlag("start_date", exportCmd.Flags().Lookup("start-date"))
	_ = viper.BindPFlag("end_date", exportCmd.Flags().Lookup("end-date"))
	_ = viper.BindPFlag("group_by", exportCmd.Flags().Lookup("group-by"))
	_ = viper.BindPFlag("prefix", exportCmd.Flags().Lookup("prefix"))
	_ = viper.BindPFlag("output_dir", exportCmd.Flags().Lookup("output-dir"))
	_ = viper.BindPFlag("clean", exportCmd.Flags().Lookup("clean"))
	_ = viper.BindPFlag("workers", exportCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("output_format", exportCmd.Flags().Lookup("output-format"))
	_ = viper.BindPFlag("compression", exportCmd.Flags().Lookup("compression"))
	_ = viper.BindPFlag("compression_level", exportCmd.Flags().Lookup("compression-level"))
	_ = viper.BindPFlag("bundle", exportCmd.Flags().Lookup("bundle"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".snowflake-exporter")
	}

	viper.SetEnvPrefix("SNOWFLAKE_EXPORT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && debug {
		if logger == nil {
			initLogger(debug, logFormat)
		}
		logger.Debug(fmt.Sprintf("📄 Using config file: %s", viper.ConfigFileUsed()))
	}
}

func configFromViper() *Config {
	return &Config{
		Debug:     viper.GetBool("debug"),
		LogFormat: viper.GetString("log_format"),
		DryRun:    viper.GetBool("dry_run"),
		Workers:   viper.GetInt("workers"),
		Snowflake: SnowflakeConfig{
			Account:         viper.GetString("snowflake.account"),
			User:            viper.GetString("snowflake.user"),
			Role:            viper.GetString("snowflake.role"),
			Warehouse:       viper.GetString("snowflake.warehouse"),
			Password:        viper.GetString("snowflake.password"),
			ExternalBrowser: viper.GetBool("snowflake.external_browser"),
		},
		S3: S3Config{
			Endpoint:  viper.GetString("s3.endpoint"),
			Bucket:    viper.GetString("s3.bucket"),
			AccessKey: viper.GetString("s3.access_key"),
			SecretKey: viper.GetString("s3.secret_key"),
			Region:    viper.GetString("s3.region"),
		},
		Table:            viper.GetString("table"),
		DateColumn:       viper.GetString("date_column"),
		StartDate:        viper.GetString("start_date"),
		EndDate:          viper.GetString("end_date"),
		GroupBy:          viper.GetString("group_by"),
		Prefix:           viper.GetString("prefix"),
		OutputDir:        viper.GetString("output_dir"),
		CleanOutputDir:   viper.GetBool("clean"),
		OutputFormat:     viper.GetString("output_format"),
		Compression:      viper.GetString("compression"),
		CompressionLevel: viper.GetInt("compression_level"),
		Bundle:           viper.GetBool("bundle"),
	}
}

func runExport() {
	// Panic recovery to catch any unexpected crashes
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n❌ PANIC: %v\n", r)
			os.Exit(1)
		}
	}()

	config := configFromViper()

	initLogger(config.Debug, config.LogFormat)

	logger.Info("")
	logger.Info(fmt.Sprintf("🚀 Snowflake Exporter v%s", Version))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	logger.Debug("Validating configuration...")
	if err := config.Validate(); err != nil {
		logger.Error(fmt.Sprintf("❌ Configuration error: %s", err.Error()))
		os.Exit(1)
	}
	logger.Debug("Configuration validated successfully")

	// Check for updates in background (non-blocking)
	updateCheckDone := make(chan struct{})
	go func() {
		defer close(updateCheckDone)
		result := checkForUpdates(context.Background(), Version)

		if result.UpdateAvailable {
			logger.Info("")
			logger.Info(fmt.Sprintf("💡 %s", formatUpdateMessage(result)))
		} else if result.Error != nil && config.Debug {
			logger.Debug(fmt.Sprintf("Version check failed: %v", result.Error))
		}
	}()

	// Give version check a short time to complete, but don't block startup
	select {
	case <-updateCheckDone:
	case <-time.After(2 * time.Second):
		logger.Debug("Version check taking longer than expected, continuing...")
	}

	// Use the signal context created in main() before Cobra initialization
	ctx := signalContext
	if ctx == nil {
		// Fallback if SetSignalContext wasn't called (shouldn't happen)
		logger.Warn("Signal context not set, creating fallback...")
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
	}

	if err := WritePIDFile(); err != nil {
		logger.Debug(fmt.Sprintf("Failed to write PID file: %v", err))
	}
	taskInfo := newTaskInfo(config)
	if err := WriteTaskInfo(taskInfo); err != nil {
		logger.Debug(fmt.Sprintf("Failed to write task info: %v", err))
	}
	defer func() {
		_ = RemovePIDFile()
		_ = RemoveTaskFile()
	}()

	// Force-exit if graceful shutdown takes too long
	exited := make(chan struct{})
	go func() {
		<-ctx.Done()
		logger.Info("")
		logger.Info("⚠️  Interrupt signal received, shutting down...")

		select {
		case <-exited:
			return
		case <-time.After(2 * time.Second):
			logger.Error("⚠️  Graceful shutdown timed out, forcing exit...")
			os.Exit(130)
		}
	}()

	logger.Debug("Creating exporter...")
	exporter := NewExporter(config, logger)

	var err error
	if config.Debug || config.DryRun || config.LogFormat != "text" {
		// Plain logging keeps output machine-readable and debuggable
		exporter.SetObserver(newTaskObserver(taskInfo, &logObserver{logger: logger}))
		err = exporter.Run(ctx)
	} else {
		err = runWithTUI(ctx, exporter, config, taskInfo)
	}
	close(exited)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("")
			logger.Info("⚠️  Export cancelled by user")
			os.Exit(130)
		}
		logger.Error(fmt.Sprintf("❌ Export failed: %s", err.Error()))
		os.Exit(1)
	}

	logger.Info("")
	logger.Info("✅ Export completed successfully!")
}
