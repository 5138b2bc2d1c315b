package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ArxivIntel/internal/app"
	"ArxivIntel/internal/config"
	"ArxivIntel/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "arxivintel",
	Short: "Competitive-intelligence monitor for arXiv papers",
	Long: "arxivintel watches feeds that mention arXiv papers, scores them for\n" +
		"relevance to generative music on licensed data, and emails digests.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (default $ARXIV_INTEL_CONFIG)")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// openApp loads configuration and wires the application for one command.
func openApp(ctx context.Context) (*app.Application, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format))
}
