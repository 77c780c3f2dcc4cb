// Package cli implements the cittadino command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cittadino-app/cittadino/internal/daemon"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cittadino",
	Short: "Civic education quiz service",
	Long: `cittadino serves the daily civic-education quiz, tracks XP, levels,
streaks, achievements and weekly challenges, and exposes them over HTTP.

Configuration is read from cittadino.toml (see --config). Secrets such as
DATABASE_URL, REDIS_URL and speech API keys come from the environment or a
.env file in the working directory.`,
	SilenceUsage: true,
}

func init() {
	def := os.Getenv("CITTADINO_CONFIG")
	if def == "" {
		def = "cittadino.toml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", def, "Path to the TOML configuration file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (daemon.Config, error) {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// openDaemon assembles the services without serving HTTP. Callers must Close.
func openDaemon(ctx context.Context) (*daemon.Daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return daemon.New(ctx, cfg)
}
