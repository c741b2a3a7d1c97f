// Package cli provides the command-line interface for the portfolio tracker.
package cli

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"portfolio-tracker/internal/backup"
	"portfolio-tracker/internal/config"
	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/store"
	"portfolio-tracker/internal/validation"
)

// Version information
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

const skipConfig = "skip-config"

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Store     store.DataStore
	Validator *validation.InputValidator
	Backups   *backup.Manager

	now func() time.Time
}

// NewApp creates an App. Configuration and storage are loaded when a
// command runs.
func NewApp(logger zerolog.Logger) *App {
	return &App{
		Logger:    logger,
		Validator: validation.NewInputValidator(),
		now:       time.Now,
	}
}

// SetClock replaces the clock used for default dates and validation.
func (a *App) SetClock(now func() time.Time) {
	a.now = now
	a.Validator = a.Validator.WithClock(now)
}

// Close releases the data store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

// load reads the configuration selected by the global flags and sets up
// logging.
func (a *App) load(cmd *cobra.Command) error {
	configDir, _ := cmd.Flags().GetString("config")
	dbPath, _ := cmd.Flags().GetString("db")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	a.Config = cfg

	a.Logger = logging.NewLoggerWithConfig(logging.LogConfig{
		Level:      cfg.Logging.Level,
		Console:    debug,
		File:       cfg.Logging.File,
		FilePath:   cfg.Logging.Path,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
	})
	if debug {
		logging.SetDebugLevel()
	}
	return nil
}

// openStore opens the database on first use.
func (a *App) openStore() (store.DataStore, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	s, err := store.NewSQLiteStore(a.Config.Database.Path, store.WithLogger(a.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", a.Config.Database.Path, err)
	}
	a.Store = s
	a.Backups = backup.NewManager(s, a.Config.Backup.Dir, a.Config.Backup.RetentionDays, a.Logger)
	a.Backups.SetClock(a.now)
	a.Logger.Debug().Str("path", a.Config.Database.Path).Msg("SQLite store initialized")
	return s, nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Track holdings, dividends and price alerts",
		Long: `Portfolio Tracker keeps a personal investment portfolio in a local SQLite
database: assets, dividends, manual prices, buy/sell transactions and price
alerts.

Use 'portfolio watch' to evaluate alerts periodically and send notifications.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return app.load(cmd)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/portfolio-tracker)")
	rootCmd.PersistentFlags().String("db", "", "database file (overrides config)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newAssetCmd(app))
	rootCmd.AddCommand(newDividendCmd(app))
	rootCmd.AddCommand(newAlertCmd(app))
	rootCmd.AddCommand(newPriceCmd(app))
	rootCmd.AddCommand(newTransactionCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newBackupCmd(app))
	rootCmd.AddCommand(newDBCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Portfolio Tracker v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View the application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.ConfigFile(app.Config.Dir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path, "dir": app.Config.Dir})
			}
			output.Println(path)
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Storage")
	output.Printf("  Database:         %s\n", cfg.Database.Path)
	output.Printf("  Default currency: %s\n", cfg.Portfolio.DefaultCurrency)
	output.Println()

	output.Bold("Alerts")
	output.Printf("  Enabled:          %s\n", FormatBool(cfg.Alerts.Enabled))
	output.Printf("  Schedule:         %s\n", cfg.Alerts.Schedule)
	output.Println()

	output.Bold("Backups")
	output.Printf("  Enabled:          %s\n", FormatBool(cfg.Backup.Enabled))
	output.Printf("  Directory:        %s\n", cfg.Backup.Dir)
	output.Printf("  Schedule:         %s\n", cfg.Backup.Schedule)
	output.Printf("  Retention:        %d days\n", cfg.Backup.RetentionDays)
	output.Printf("  Before delete:    %s\n", FormatBool(cfg.Backup.BeforeDelete))
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:          %s\n", FormatBool(cfg.Notifications.Enabled))
	output.Printf("  Desktop:          %s\n", FormatBool(cfg.Notifications.Desktop.Enabled))
	output.Printf("  Webhook:          %s\n", FormatBool(cfg.Notifications.Webhook.Enabled))
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:            %s\n", cfg.Logging.Level)
	if cfg.Logging.File {
		output.Printf("  File:             %s\n", cfg.Logging.Path)
	}
}

// confirm asks a yes/no question on the command's input. Anything other
// than y or yes declines.
func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// errAborted is returned when the user declines a confirmation.
var errAborted = apperrors.New("aborted")

// defaultCurrency returns the currency to use when a flag is empty.
func (a *App) defaultCurrency(flag, fallback string) (string, error) {
	if strings.TrimSpace(flag) != "" {
		return a.Validator.Currency(flag)
	}
	if fallback != "" {
		return fallback, nil
	}
	return a.Config.Portfolio.DefaultCurrency, nil
}

// backupPath shortens a backup path for display.
func backupPath(path string) string {
	return filepath.Base(path)
}
