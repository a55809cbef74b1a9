package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/colorlens/colorlens/internal/config"
	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// LogLevel is adjusted from the log-level setting before each command runs.
var LogLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:           "colorlens",
	Short:         "Colorize images with a remote colorization service",
	Long:          `Uploads images to a colorization service, tracks progress and results, and keeps a local ledger of attempts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "config load failed")
		}
		level, err := config.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		LogLevel.Set(level)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("service-origin", "", "Colorization service origin, e.g. http://localhost:8000")
	rootCmd.PersistentFlags().Duration("http-timeout", 2*time.Minute, "Timeout for one request to the service")
	rootCmd.PersistentFlags().String("sqlite-path", ".colorlens/ledger.db", "SQLite ledger path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".colorlens/fsm", "FSM state directory")
	rootCmd.PersistentFlags().String("work-dir", ".colorlens/results", "Directory for downloaded results")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region for s3:// result locators")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("fsm-max-retries", 3, "Max FSM retries per workflow state")

	viper.BindPFlag("service-origin", rootCmd.PersistentFlags().Lookup("service-origin"))
	viper.BindPFlag("http-timeout", rootCmd.PersistentFlags().Lookup("http-timeout"))
	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("work-dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("fsm-max-retries", rootCmd.PersistentFlags().Lookup("fsm-max-retries"))
}

// loadConfig loads and validates configuration. Commands that talk to the
// service pass needOrigin.
func loadConfig(needOrigin bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	if needOrigin {
		if err := cfg.RequireOrigin(); err != nil {
			return nil, errors.Wrap(err, "config invalid")
		}
	}
	return cfg, nil
}
