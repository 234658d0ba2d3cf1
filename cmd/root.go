package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/brensch/dumpstats/internal/config"
	"github.com/brensch/dumpstats/internal/db"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/spf13/cobra"
)

// needsDB marks commands that use the event log database.
const needsDB = "needs-db"

var (
	// Persistent flags, bound in init()
	cfgFile   string
	logFormat string
	logLevel  string
	logOutput string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dumpstats",
	Short: "Compute statistics over Wikidata JSON dumps.",
	Long: `dumpstats locates a Wikidata JSON dump (data directory, mounted dump
shares, then remote mirrors), streams every entity through a set of processors
and writes their counters and lists to <data-dir>/<date>/.

The primary command is 'run'. A DuckDB database records resolution and run
events; 'state' shows them, 'save' exports them and 'inspect' compares counters
across runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --- 1. Initialize Logger ---
		w, err := openLogOutput(logOutput)
		if err != nil {
			return err
		}
		rootLogger = newLogger(w)
		slog.SetDefault(rootLogger)
		rootLogger.Debug("Logger initialized", "level", logLevel, "format", logFormat, "output", logOutput)

		// --- 2. Load config: defaults, file, env, flags ---
		appConfig, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		rootLogger.Debug("Configuration loaded", slog.Any("config", appConfig))

		if cmd.Annotations[needsDB] != "true" {
			return nil
		}

		// --- 3. Initialize DuckDB Connection & Schema ---
		if info, err := os.Stat(appConfig.DataDir); err != nil || !info.IsDir() {
			return fmt.Errorf("data directory %s does not exist", appConfig.DataDir)
		}
		if appConfig.DbPath != ":memory:" {
			dbDir := filepath.Dir(appConfig.DbPath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
		rootLogger.Debug("Initializing DuckDB connection", "path", appConfig.DbPath)
		dsn := appConfig.DbPath
		if dsn == ":memory:" {
			dsn = ""
		}
		dbConn, err = sql.Open("duckdb", dsn)
		if err != nil {
			return fmt.Errorf("failed to open duckdb database (%s): %w", appConfig.DbPath, err)
		}
		pingCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", appConfig.DbPath, err)
		}
		if err := db.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		rootLogger.Debug("Database schema initialized successfully.")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			rootLogger.Debug("Closing DuckDB connection.")
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly", "error", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and runs it. It is
// called by main.main().
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(processorsCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(saveCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.dumpstats.yaml or $HOME/.dumpstats.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory holding dumps and results (default ./data)")
	rootCmd.PersistentFlags().String("db-path", "", "Path to DuckDB state database file, :memory: for in-memory (default <data-dir>/"+config.DBFileName+")")
	rootCmd.PersistentFlags().String("project", "", "Dump project name (default "+config.DefaultProject+")")
	rootCmd.PersistentFlags().String("cache-dir", "", "Directory for cached reference datasets (default the run output directory)")
	rootCmd.PersistentFlags().Bool("allow-stale", false, "Use an expired reference dataset when refreshing it fails")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.3.0"
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openLogOutput resolves stderr, stdout or a file path to append to. The
// file is left open for the life of the process.
func openLogOutput(dest string) (io.Writer, error) {
	switch strings.ToLower(dest) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	f, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", dest, err)
	}
	return f, nil
}

func newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(logLevel)}
	if logFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getDB() *sql.DB {
	return dbConn
}

func getConfig() (*config.Config, error) {
	if appConfig == nil {
		return nil, errors.New("configuration not loaded")
	}
	return appConfig, nil
}
