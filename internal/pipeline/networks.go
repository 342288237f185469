package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sawpanic/daycarewatch/internal/networks"
	"github.com/sawpanic/daycarewatch/internal/report"
	"github.com/sawpanic/daycarewatch/internal/scoring"
)

// Networks renders the owner, address and phone network maps. A map whose
// input artifact is missing is skipped; the stage fails only when none could
// be drawn.
func (r *Runner) Networks(ctx context.Context) error {
	return r.step(ctx, StageNetworks, r.networks)
}

func (r *Runner) networks(context.Context) error {
	gaz, err := networks.LoadGazetteer(r.cfg.Networks.GazetteerPath)
	if err != nil {
		return fmt.Errorf("failed to load gazetteer: %w", err)
	}
	jitter := networks.NewJitter(r.cfg.Networks.Seed)
	c := r.ws.Console
	c.Section("NETWORK MAPS")

	builders := []struct {
		input string
		build func(*report.Table) (*networks.Page, int)
	}{
		{report.FileHighRisk, func(t *report.Table) (*networks.Page, int) {
			groups := networks.OwnerGroups(indicators(t))
			return networks.OwnerPage(groups, jitter), len(groups)
		}},
		{report.FileDuplicateAddresses, func(t *report.Table) (*networks.Page, int) {
			groups := networks.AddressGroups(indicators(t))
			return networks.AddressPage(groups, jitter), len(groups)
		}},
		{report.FilePhoneFacilities, func(t *report.Table) (*networks.Page, int) {
			nets := networks.PhoneNetworks(networks.PhoneRowsFromTable(t), networks.Geocoder{Gazetteer: gaz}, jitter)
			return networks.PhonePage(nets), len(nets)
		}},
	}

	written := 0
	var missing []error
	for _, b := range builders {
		t, err := r.ws.ReadTable(b.input)
		if err != nil {
			if errors.Is(err, ErrMissingArtifact) {
				r.log.Warn().Err(err).Msg("Skipping network map")
				missing = append(missing, err)
				continue
			}
			return err
		}
		page, groups := b.build(t)
		path, err := page.WriteFile(r.ws.Dir)
		if err != nil {
			return err
		}
		written++
		c.Printf("  %s: %d networks -> %s", page.Title, groups, path)
	}
	if written == 0 {
		return errors.Join(missing...)
	}
	return nil
}

func indicators(t *report.Table) []scoring.Indicator {
	records := t.Records()
	out := make([]scoring.Indicator, len(records))
	for i, rec := range records {
		out[i] = scoring.IndicatorFromRecord(rec)
	}
	return out
}
