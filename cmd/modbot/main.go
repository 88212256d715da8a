// Command modbot runs the community moderation assistant.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-mod-assistant/internal/config"
	"github.com/tbourn/go-mod-assistant/internal/sysutil"
)

var version = "dev"

var (
	logLevel  string
	logPretty bool
	dataDir   string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "modbot",
		Short:         "Community moderation assistant",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logPretty, "pretty", false, "human-readable console logs")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override DATA_DIR")

	root.AddCommand(serveCmd())
	root.AddCommand(consoleCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(leaderboardCmd())
	return root
}

// loadConfig reads the environment, applies the persistent flags and sets
// up the global logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logPretty {
		cfg.LogPretty = true
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
		if _, set := os.LookupEnv("DB_PATH"); !set {
			cfg.DBPath = filepath.Join(dataDir, "audit.db")
		}
	}
	sysutil.ConfigureLogger(os.Stderr, cfg.LogPretty)
	sysutil.SetLogLevel(cfg.LogLevel)
	return cfg, nil
}
