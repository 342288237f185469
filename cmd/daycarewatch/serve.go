package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/daycarewatch/internal/config"
	"github.com/sawpanic/daycarewatch/internal/infrastructure/db"
	httpserver "github.com/sawpanic/daycarewatch/internal/interfaces/http"
	"github.com/sawpanic/daycarewatch/internal/pipeline"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace artifacts, health and metrics over HTTP (read-only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*g)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen host")
	cmd.Flags().IntVar(&port, "port", 8080, "Listen port")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	runner := pipeline.NewRunner(cfg, pipeline.Options{})
	defer runner.Close()

	dbm, err := db.NewManager(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbm.Close()

	deps := httpserver.Deps{
		Workspace: cfg.Workspace,
		Version:   version,
		Metrics:   runner.Metrics().Handler(),
		Sources:   runner.Clients(),
	}
	if dbm.IsEnabled() {
		deps.DB = dbm.Health()
	}
	server := httpserver.NewServer(cfg.Server, deps)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}
	log.Info().Msg("Server shutdown complete")
	return nil
}
