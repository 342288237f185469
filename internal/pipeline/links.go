package pipeline

import (
	"context"
	"time"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/links"
	"github.com/sawpanic/daycarewatch/internal/report"
)

// DefaultOpenTop is how many facilities --open walks through by default
const DefaultOpenTop = 5

const openDelay = 500 * time.Millisecond

// LinksOptions controls the links stage
type LinksOptions struct {
	Open bool // open the top facilities in the browser afterwards
	Top  int
}

// Links adds verification links to the priority list and renders the HTML report
func (r *Runner) Links(ctx context.Context, opts LinksOptions) error {
	return r.step(ctx, StageLinks, func(ctx context.Context) error {
		return r.links(ctx, opts)
	})
}

func (r *Runner) links(ctx context.Context, opts LinksOptions) error {
	priority, err := r.ws.ReadTable(report.FilePriority)
	if err != nil {
		return err
	}

	var facilities []facility.Facility
	if !priority.HasColumn(facility.ColNumber) {
		if facilities, err = r.loadFacilities(); err != nil {
			return err
		}
	}
	enriched := links.Enrich(priority, facilities)

	c := r.ws.Console
	c.Section("INVESTIGATION LINKS")
	if err := r.ws.WriteTable(report.FileInvestigationLinks, enriched); err != nil {
		return err
	}

	data := links.NewReportData(enriched, r.now())
	path := r.ws.Path(report.FileInvestigationReport)
	if err := links.WriteReport(path, data); err != nil {
		return err
	}
	c.Printf("Generated %s (%d facilities, top %d shown)", path, data.Total, len(data.Cards))

	if !opts.Open {
		return nil
	}
	top := opts.Top
	if top <= 0 {
		top = DefaultOpenTop
	}
	c.Printf("Opening investigation links for top %d facilities...", top)
	opener := &links.Opener{Browser: r.browser, In: r.in, Out: r.out, Delay: r.openDelay}
	return opener.OpenTop(ctx, enriched, top)
}
