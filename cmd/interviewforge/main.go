package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"interviewforge/internal/config"
	"interviewforge/internal/logging"
)

var Version = "dev"

var (
	logLevel string
	devLog   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "interviewforge",
		Short:         "Budgeted context assembly and multi-call generation for stakeholder interviews",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&devLog, "dev", false, "human-readable console logs")

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(usageCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the environment config and the process logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log, err := logging.New(level, devLog || cfg.Env == "dev")
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
