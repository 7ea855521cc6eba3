// Package cli implements the command-line interface for RVC.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kilupskalvis/rvc/internal/config"
	"github.com/kilupskalvis/rvc/internal/core"
	"github.com/kilupskalvis/rvc/internal/metrics"
	"github.com/kilupskalvis/rvc/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config  *config.Config
	Store   *store.Store
	Repo    *store.Repository
	Logger  *slog.Logger
	Metrics *prometheus.Registry
}

// Close releases resources held by cmdContext and flushes metrics when requested
func (c *cmdContext) Close() {
	if c.Metrics != nil && metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, c.Metrics); err != nil {
			c.Logger.Warn("failed to write metrics", "path", metricsFile, "error", err)
		}
	}
	if c.Store != nil {
		c.Store.Close()
	}
}

var (
	configPath  string
	logLevel    string
	metricsFile string
)

// loadConfig loads the --config file or the nearest rvc.toml / rvc.yaml
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// initContext initializes config, logger and store
func initContext() *cmdContext {
	cfg, err := loadConfig()
	if err != nil {
		exitError("%v", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		exitError("%v", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		exitError("failed to open store: %v", err)
	}

	return &cmdContext{Config: cfg, Store: st, Logger: logger}
}

// initRepoContext initializes config and store, runs migrations and builds
// the versioning engine and repository. provision creates or extends the
// tables of every configured record type.
func initRepoContext(provision bool) *cmdContext {
	c := initContext()

	if err := c.Store.RunMigrations(); err != nil {
		c.Close()
		exitError("failed to run migrations: %v", err)
	}

	types, err := c.Config.RecordTypes()
	if err != nil {
		c.Close()
		exitError("%v", err)
	}
	reg, err := core.NewRegistry(types...)
	if err != nil {
		c.Close()
		exitError("%v", err)
	}
	policy, err := store.ParseCommitPolicy(c.Config.CommitPolicy)
	if err != nil {
		c.Close()
		exitError("%v", err)
	}

	c.Metrics = prometheus.NewRegistry()
	engine := core.NewEngine(reg,
		core.WithLogger(c.Logger),
		core.WithMetrics(metrics.New(c.Metrics)),
	)
	c.Repo = store.NewRepository(c.Store, engine, policy, c.Logger)

	if provision {
		if err := c.Repo.Provision(context.Background()); err != nil {
			c.Close()
			exitError("failed to provision tables: %v", err)
		}
	}
	return c
}

// newLogger builds the slog logger described by the logging config
func newLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), nil
}

var rootCmd = &cobra.Command{
	Use:   "rvc",
	Short: "Record Version Control",
	Long: `RVC (Record Version Control) keeps an automatic, append-only version
history of relational records. Every insert and update of a configured
record type writes a snapshot of its versioned fields to a history table.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to rvc.toml or rvc.yaml (default: search upwards)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file on exit")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(checkCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
