package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/KaramelBytes/vizloom/internal/ai"
	cfgpkg "github.com/KaramelBytes/vizloom/internal/config"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	noColor bool
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration; cfgErr is set when loading failed.
	cfg    *cfgpkg.Global
	cfgErr error

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "vizloom",
	Short: "vizloom: ask a language model about a dataset and draw its answers",
	Long: `vizloom summarizes a CSV/XLSX dataset into a prompt, sends it to a hosted
or local model, and prints the answer or runs the returned Go code to draw charts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.vizloom/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable ANSI styling in terminal output")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		cfg, cfgErr = nil, err
		logger = newLogger("info")
		// Non-fatal: config show/set and models still work
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg, cfgErr = c, nil
	logger = newLogger(cfg.LogLevel)

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}

	if cfg.ModelsAutoSync {
		url := cfg.ModelsCatalogURL
		if url == "" && cfg.ModelsProvider != "" {
			url = providerURL(cfg.ModelsProvider)
		}
		if url != "" {
			m, err := ai.FetchCatalog(context.Background(), url)
			if err != nil {
				logger.Warn("models auto-sync failed", zap.String("url", url), zap.Error(err))
			} else {
				ai.ApplyCatalog(m, cfg.ModelsMerge)
				logger.Debug("models catalog synced", zap.String("url", url), zap.Int("models", len(m)))
			}
		}
	}
}

// newLogger builds the production JSON logger on stderr. --debug wins over
// log_level; an unknown level falls back to info.
func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			lvl = zapcore.InfoLevel
		}
	}
	if debug {
		lvl = zapcore.DebugLevel
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	l, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// requireConfig returns the loaded configuration, or the load error.
func requireConfig() (*cfgpkg.Global, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	if cfg == nil {
		c, err := cfgpkg.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
