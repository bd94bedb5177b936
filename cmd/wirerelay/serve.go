package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirerelay/internal/app"
	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/log"
)

var serveOverrides struct {
	addr           string
	adminAddr      string
	history        string
	maxConnections int
}

// serveCmd runs the relay server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long:  "Accept relay connections, persist every message to the history log, and serve the admin HTTP API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := config.Load(stderrLogger("info"), configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.UpdateFrom(config.Config{
			Addr:           serveOverrides.addr,
			HistoryPath:    serveOverrides.history,
			MaxConnections: serveOverrides.maxConnections,
			LogLevel:       logLevel,
		})
		// An empty admin address is meaningful: it disables the admin server.
		if cmd.Flags().Changed("admin-addr") {
			cfg.AdminAddr = serveOverrides.adminAddr
		}

		logger := log.New(cfg.LogLevel)
		logger.Info().Str("config", path).Str("addr", cfg.Addr).Str("admin_addr", cfg.AdminAddr).Msg("starting wirerelay server")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		if err := application.Run(ctx); err != nil {
			return fmt.Errorf("server exited with error: %w", err)
		}
		logger.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveOverrides.addr, "addr", "", "Relay listen address (default from config)")
	serveCmd.Flags().StringVar(&serveOverrides.adminAddr, "admin-addr", "", "Admin HTTP listen address, empty disables it")
	serveCmd.Flags().StringVar(&serveOverrides.history, "history", "", "History log path")
	serveCmd.Flags().IntVar(&serveOverrides.maxConnections, "max-connections", 0, "Maximum concurrent connections, 0 for unbounded")
}
