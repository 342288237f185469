package pipeline

import (
	"context"

	"github.com/sawpanic/daycarewatch/internal/config"
	"github.com/sawpanic/daycarewatch/internal/sources"
)

// Fetch downloads the registry extracts into the workspace
func (r *Runner) Fetch(ctx context.Context) error {
	return r.step(ctx, StageFetch, r.fetch)
}

func (r *Runner) fetch(ctx context.Context) error {
	if err := r.ws.Ensure(); err != nil {
		return err
	}
	hc, err := r.clients.Client(config.SourceRegistry)
	if err != nil {
		return err
	}

	c := r.ws.Console
	c.Section("DOWNLOADING CALIFORNIA LICENSING REGISTRY")
	downloads, err := sources.NewRegistry(hc, r.endpoints.Registry, r.cfg.Analysis.Concurrency).Download(ctx, r.ws.Dir)
	for _, d := range downloads {
		if d.Err != nil {
			c.Printf("  %s: failed (%v)", d.Dataset, d.Err)
			continue
		}
		c.Printf("  %s: %d records -> %s", d.Dataset, d.Rows, d.Path)
	}
	return err
}
