package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sawpanic/daycarewatch/internal/config"
	"github.com/sawpanic/daycarewatch/internal/pipeline"
)

const (
	appName = "daycarewatch"
	version = "v1.0.0"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	workspace  string
	logLevel   string
	jsonLogs   bool
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Screen California child care licensing data for fraud indicators",
		Version: version,
		Long: `daycarewatch downloads the California child care licensing registry and
runs a chain of screens over it: low capacity, fraud indicators, shared
phones, licensee patterns and geographic clustering. The results are CSV,
JSON and HTML files in the workspace directory, for manual investigation.

A flag never proves fraud. Every result needs human verification.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(g)
		},
	}
	addGlobalFlags(rootCmd.PersistentFlags(), &g)

	for _, stage := range []struct{ name, short string }{
		{pipeline.StageFetch, "Download the licensing registry extracts"},
		{pipeline.StageLowCap, "List facilities licensed for fewer children than the threshold"},
		{pipeline.StageIndicators, "Flag duplicate addresses, multi-facility licensees, COVID-era and short-lived licenses"},
		{pipeline.StageDeep, "Score shared phones, licensee patterns and ZIP clusters into the priority list"},
		{pipeline.StageInspect, "Probe inspection reports of the highest-risk facilities"},
		{pipeline.StageNetworks, "Render owner, address and phone network maps"},
	} {
		name := stage.name
		rootCmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: stage.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRunner(cmd.Context(), g, func(ctx context.Context, r *pipeline.Runner) error {
					return r.Stage(ctx, name)
				})
			},
		})
	}

	rootCmd.AddCommand(newRunCmd(&g))
	rootCmd.AddCommand(newLinksCmd(&g))
	rootCmd.AddCommand(newCACFPCmd(&g))
	rootCmd.AddCommand(newServeCmd(&g))
	rootCmd.AddCommand(newDBCmd(&g))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func addGlobalFlags(fs *pflag.FlagSet, g *globalFlags) {
	fs.StringVar(&g.configPath, "config", "daycarewatch.yaml", "Configuration file (optional)")
	fs.StringVarP(&g.workspace, "workspace", "w", "", "Workspace directory (overrides config)")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	fs.BoolVar(&g.jsonLogs, "json-logs", false, "Write logs as JSON")
}

// setupLogging writes human-readable logs on a terminal and JSON otherwise
func setupLogging(g globalFlags) error {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if g.logLevel != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(g.logLevel))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", g.logLevel, err)
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)

	if g.jsonLogs || !term.IsTerminal(int(os.Stderr.Fd())) {
		useJSONLogs()
		return nil
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	return nil
}

func useJSONLogs() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("app", appName).Logger()
}

// loadConfig reads the configuration and applies the command-line overrides
func loadConfig(g globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.workspace != "" {
		cfg.Workspace = g.workspace
	}
	if g.logLevel == "" && cfg.Log.Level != "" {
		if l, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
			zerolog.SetGlobalLevel(l)
		}
	}
	if cfg.Log.JSON && !g.jsonLogs {
		useJSONLogs()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withRunner builds a runner from the configuration and closes it afterwards
func withRunner(ctx context.Context, g globalFlags, fn func(context.Context, *pipeline.Runner) error) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	r := pipeline.NewRunner(cfg, pipeline.Options{})
	defer func() {
		if err := r.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close response cache")
		}
	}()
	log.Debug().Str("run_id", r.RunID()).Str("workspace", cfg.Workspace).Msg("Runner ready")
	return fn(ctx, r)
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var stages []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run fetch, lowcap, indicators, deep and links in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), *g, func(ctx context.Context, r *pipeline.Runner) error {
				return r.Run(ctx, stages)
			})
		},
	}
	cmd.Flags().StringSliceVar(&stages, "stages", nil, "Stages to run (default "+strings.Join(pipeline.RunStages, ",")+")")
	return cmd
}

func newLinksCmd(g *globalFlags) *cobra.Command {
	var opts pipeline.LinksOptions
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Add verification links to the priority list and render the HTML report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), *g, func(ctx context.Context, r *pipeline.Runner) error {
				return r.Links(ctx, opts)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Open, "open", false, "Open the links of the top facilities in the browser")
	cmd.Flags().IntVar(&opts.Top, "top", pipeline.DefaultOpenTop, "How many facilities --open walks through")
	return cmd
}

func newCACFPCmd(g *globalFlags) *cobra.Command {
	var opts pipeline.CACFPOptions
	cmd := &cobra.Command{
		Use:   "cacfp",
		Short: "Probe the food program directory and match participants against flagged facilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), *g, func(ctx context.Context, r *pipeline.Runner) error {
				return r.CACFP(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.SitesPath, "sites", "", "CSV of participant sites (name, address, city) to match")
	cmd.Flags().BoolVar(&opts.SkipProbe, "skip-probe", false, "Skip the county directory probe")
	cmd.Flags().BoolVar(&opts.SkipImpact, "skip-impact", false, "Skip the impact report download")
	return cmd
}
