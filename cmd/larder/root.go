package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/larder/internal/api"
	"github.com/jackzampolin/larder/internal/config"
	"github.com/jackzampolin/larder/internal/home"
	"github.com/jackzampolin/larder/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "larder",
	Short: "Recipe ingestion and normalization pipeline",
	Long: `Larder turns recipe photos, PDFs and pasted text into structured,
unit-converted recipes.

The pipeline includes:
  - Text extraction with OCR for images and chunked PDF extraction
  - OCR cleanup and ingredient/instruction structuring
  - Recipe classification (sourdough, yeasted, quickbread, ...)
  - Unit conversion with baker's percentages and hydration
  - One recovery attempt for recipes that fail to parse`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ~/.larder/config.yaml or ./config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "larder home directory (default: ~/.larder)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or table",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// newLogger returns a text logger at the --log-level.
func newLogger(w *os.File) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// getHome resolves the --home directory.
func getHome() (*home.Dir, error) {
	return home.New(homeDir)
}

// loadConfig reads --config, or the home config when it exists.
func loadConfig(h *home.Dir) (*config.Manager, error) {
	path := cfgFile
	if path == "" && h.ConfigExists() {
		path = h.ConfigPath()
	}
	return config.NewManager(path)
}
