package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/larder/internal/server"
)

var (
	serveHost  string
	servePort  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Larder server",
	Long: `Start the Larder HTTP server.

The server holds a lock on the home directory, so only one server can use
it at a time. Saved recipes are kept in the configured store (SQLite in the
home directory by default). Config file changes are applied without a
restart unless --watch=false is given.

The server provides:
  - /health  - Basic server health check
  - /ready   - Readiness check (includes the recipe store)
  - /process - Upload a photo, PDF or text file and get a converted recipe

Examples:
  larder serve                    # Start on default port 8080
  larder serve --port 3000        # Start on custom port
  larder serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger(os.Stdout)

		h, err := getHome()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cm, err := loadConfig(h)
		if err != nil {
			return err
		}
		cm.SetLogger(logger)
		if serveWatch && cm.ConfigFile() != "" {
			cm.WatchConfig()
			logger.Info("watching config for changes", "file", cm.ConfigFile())
		}

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Home:          h,
			ConfigManager: cm,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload configuration when the config file changes")

	rootCmd.AddCommand(serveCmd)
}
