// Package pipeline runs the screening stages against a workspace directory.
// Each stage reads the artifacts of the previous one, so stages can be re-run
// on their own.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/daycarewatch/internal/cache"
	"github.com/sawpanic/daycarewatch/internal/config"
	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/links"
	logprogress "github.com/sawpanic/daycarewatch/internal/log"
	"github.com/sawpanic/daycarewatch/internal/metrics"
	"github.com/sawpanic/daycarewatch/internal/net/client"
)

// Stage names, also used as metric labels
const (
	StageFetch      = "fetch"
	StageLowCap     = "lowcap"
	StageIndicators = "indicators"
	StageDeep       = "deep"
	StageLinks      = "links"
	StageInspect    = "inspect"
	StageCACFP      = "cacfp"
	StageNetworks   = "networks"
	StageDBLoad     = "db_load"
)

// RunStages are the stages chained by Run
var RunStages = []string{StageFetch, StageLowCap, StageIndicators, StageDeep, StageLinks}

// errNothingToDo ends a stage early without failing it
var errNothingToDo = errors.New("nothing to do")

// Endpoints override the remote URLs, mostly for tests. Empty values keep the defaults.
type Endpoints struct {
	Registry    map[facility.Dataset]string
	CCLD        string
	CACFPCounty string
	CACFPImpact string
}

// Options are the collaborators of a Runner. Zero values get defaults.
type Options struct {
	Out       io.Writer // stage summaries, defaults to stdout
	In        io.Reader // Enter between facilities when opening links
	Browser   links.Browser
	Metrics   *metrics.Registry
	Clients   *client.Manager
	Cache     cache.Cache
	Endpoints Endpoints
	Now       func() time.Time
	OpenDelay time.Duration // pause between opened links
}

// Runner executes pipeline stages for one run
type Runner struct {
	cfg       *config.Config
	ws        *Workspace
	metrics   *metrics.Registry
	clients   *client.Manager
	cache     cache.Cache
	endpoints Endpoints
	in        io.Reader
	out       io.Writer
	browser   links.Browser
	openDelay time.Duration
	now       func() time.Time
	runID     string
	log       zerolog.Logger
}

// NewRunner wires a runner from the configuration
func NewRunner(cfg *config.Config, opts Options) *Runner {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Browser == nil {
		opts.Browser = links.SystemBrowser{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OpenDelay <= 0 {
		opts.OpenDelay = openDelay
	}
	if opts.Clients == nil {
		if opts.Cache == nil {
			opts.Cache = cache.New(cfg.Cache.RedisAddr, cfg.Cache.RedisDB, cfg.Cache.Prefix)
		}
		opts.Clients = client.NewManager(cfg, client.Options{
			Cache:           opts.Cache,
			Recorder:        opts.Metrics,
			OnBreakerChange: opts.Metrics.BreakerChanged,
		})
	}

	runID := uuid.NewString()
	return &Runner{
		cfg:       cfg,
		ws:        NewWorkspace(cfg.Workspace, opts.Out),
		metrics:   opts.Metrics,
		clients:   opts.Clients,
		cache:     opts.Cache,
		endpoints: opts.Endpoints,
		in:        opts.In,
		out:       opts.Out,
		browser:   opts.Browser,
		openDelay: opts.OpenDelay,
		now:       opts.Now,
		runID:     runID,
		log:       log.With().Str("run_id", runID).Logger(),
	}
}

// RunID identifies this run in logs, the risk summary and the database
func (r *Runner) RunID() string { return r.runID }

// Workspace returns the workspace the runner writes to
func (r *Runner) Workspace() *Workspace { return r.ws }

// Metrics returns the registry the runner records into
func (r *Runner) Metrics() *metrics.Registry { return r.metrics }

// Clients returns the source clients, for health reporting
func (r *Runner) Clients() *client.Manager { return r.clients }

// Close releases the response cache
func (r *Runner) Close() error {
	if c, ok := r.cache.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// step runs fn as a named stage, timing it and recording the outcome
func (r *Runner) step(ctx context.Context, name string, fn func(context.Context) error) error {
	timer := r.metrics.StartStep(name)
	r.log.Info().Str("step", name).Msg("Stage started")

	err := fn(ctx)
	switch {
	case errors.Is(err, errNothingToDo):
		d := timer.Stop(metrics.ResultSkipped)
		r.log.Info().Str("step", name).Dur("duration", d).Msg("Stage skipped")
		return nil
	case err != nil:
		d := timer.Stop(metrics.ResultError)
		r.log.Error().Err(err).Str("step", name).Dur("duration", d).Msg("Stage failed")
		return fmt.Errorf("%s: %w", name, err)
	}
	d := timer.Stop(metrics.ResultSuccess)
	r.log.Info().Str("step", name).Dur("duration", d).Msg("Stage completed")
	return nil
}

// Stage runs one stage by name with default options
func (r *Runner) Stage(ctx context.Context, name string) error {
	switch name {
	case StageFetch:
		return r.Fetch(ctx)
	case StageLowCap:
		return r.LowCapacity(ctx)
	case StageIndicators:
		return r.Indicators(ctx)
	case StageDeep:
		return r.Deep(ctx)
	case StageLinks:
		return r.Links(ctx, LinksOptions{})
	case StageInspect:
		return r.Inspect(ctx)
	case StageCACFP:
		return r.CACFP(ctx, CACFPOptions{})
	case StageNetworks:
		return r.Networks(ctx)
	default:
		return fmt.Errorf("unknown stage %q", name)
	}
}

// Run chains the stages in order. The first failing stage aborts the run.
func (r *Runner) Run(ctx context.Context, stages []string) error {
	if len(stages) == 0 {
		stages = RunStages
	}
	r.metrics.ActiveRuns.Inc()
	defer r.metrics.ActiveRuns.Dec()

	sl := logprogress.NewStepLogger("daycarewatch", stages)
	for _, name := range stages {
		if err := ctx.Err(); err != nil {
			sl.Fail(err)
			return err
		}
		sl.StartStep(name)
		if err := r.Stage(ctx, name); err != nil {
			sl.Fail(err)
			return fmt.Errorf("run %s aborted: %w", r.runID, err)
		}
	}
	sl.Finish()
	return nil
}

// loadFacilities reads the registry extracts and records how many were loaded
func (r *Runner) loadFacilities() ([]facility.Facility, error) {
	facilities, err := r.ws.Facilities()
	if err != nil {
		return nil, err
	}
	r.metrics.FacilitiesTotal.Set(float64(len(facilities)))
	r.log.Debug().Int("facilities", len(facilities)).Str("workspace", r.ws.Dir).Msg("Loaded registry")
	return facilities, nil
}
