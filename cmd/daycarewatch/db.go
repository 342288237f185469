package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/daycarewatch/internal/config"
	"github.com/sawpanic/daycarewatch/internal/infrastructure/db"
	"github.com/sawpanic/daycarewatch/internal/pipeline"
)

func newDBCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Postgres storage of facilities and assessments",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the facilities and assessments tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(*g, func(cfg *config.Config, m *db.Manager) error {
				if err := m.Migrate(cmd.Context()); err != nil {
					return err
				}
				log.Info().Msg("Database schema is up to date")
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "load",
		Short: "Store the workspace registry and its scores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(*g, func(cfg *config.Config, m *db.Manager) error {
				return withRunner(cmd.Context(), *g, func(ctx context.Context, r *pipeline.Runner) error {
					res, err := r.LoadDB(ctx, m.Repository())
					if err != nil {
						return err
					}
					log.Info().Str("run_id", res.RunID).Int("facilities", res.Facilities).
						Int("assessments", res.Assessments).Msg("Database load complete")
					return nil
				})
			})
		},
	})
	return cmd
}

// withDB opens the configured database. Storage commands need it enabled.
func withDB(g globalFlags, fn func(*config.Config, *db.Manager) error) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return db.ErrDisabled
	}
	m, err := db.NewManager(cfg.Database)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(cfg, m)
}
