// Command locatorctl is the operator CLI for the seismic locator: schema
// migration, single cycles, synthetic events and origin inspection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/couchcryptid/seismic-locator/internal/adapter/store"
	"github.com/couchcryptid/seismic-locator/internal/config"
	"github.com/couchcryptid/seismic-locator/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "locatorctl",
	Short: "Operate the seismic event locator",
	Long: `locatorctl works against the same store as the locator service.
Store settings come from the service environment (STORE_DRIVER, DATABASE_URL,
SQLITE_PATH, ...) and can be overridden with flags or LOCATOR_* variables.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("driver", "", "store driver: postgres or sqlite")
	flags.String("database-url", "", "postgres connection string")
	flags.String("sqlite-path", "", "sqlite database file")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	for _, name := range []string{"driver", "database-url", "sqlite-path", "log-level"} {
		viper.BindPFlag(name, flags.Lookup(name)) //nolint:errcheck // flag exists
	}
}

func initConfig() {
	viper.SetEnvPrefix("LOCATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the service configuration and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("driver"); v != "" {
		cfg.StoreDriver = v
	}
	if v := viper.GetString("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := viper.GetString("sqlite-path"); v != "" {
		cfg.SQLitePath = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	// Operator output goes to the terminal.
	cfg.LogFormat = "text"
	return cfg, cfg.Validate()
}

// openStore loads configuration and opens the backend. Callers close it.
func openStore(ctx context.Context) (*config.Config, store.Backend, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := observability.NewLogger(cfg)
	b, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, b, logger, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
