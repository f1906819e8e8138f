// procflow - process-flow explorer for event logs.
// Builds a directly-follows graph from CSV, JSON, XLSX or Parquet logs and
// lets you page through it, mine variants and split transitions by
// department, resource or any event attribute.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/logflow/procflow/pkg/config"
	"github.com/logflow/procflow/pkg/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// rootOptions holds the persistent flags and what they set up.
type rootOptions struct {
	configPath string
	verbose    bool
	trace      bool
	sql        string
	format     string
	delimiter  string
	where      []string

	manager  *config.Manager
	shutdown func(context.Context) error
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{manager: config.NewManager()}

	root := &cobra.Command{
		Use:   "procflow",
		Short: "procflow - explore process flows in event logs",
		Long: `procflow builds a directly-follows graph from an event log and lets you
explore it step by step: variants, visible frontiers and transitions split
by department, resource or any attribute path.

Inputs are CSV/TSV, JSON/JSONL, XLSX or Parquet files, s3:// objects, or any
DuckDB query via --sql.`,
		Version:            fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  opts.setup,
		PersistentPostRunE: opts.teardown,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (overrides the search path)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&opts.trace, "trace", false, "Export OpenTelemetry traces even if disabled in config")
	flags.StringVar(&opts.sql, "sql", "", "Load events from a DuckDB query instead of files")
	flags.StringVarP(&opts.format, "input-format", "i", "", "Input format (csv, jsonl, json, xlsx, parquet) - auto-detected if not specified")
	flags.StringVar(&opts.delimiter, "delimiter", "", "CSV field delimiter (use 'tab' for TSV)")
	flags.StringArrayVar(&opts.where, "where", nil, "Keep only cases with an event matching COLUMN=VALUE (repeatable, all must match)")

	root.AddCommand(newSummaryCmd(opts))
	root.AddCommand(newVariantsCmd(opts))
	root.AddCommand(newVisibleCmd(opts))
	root.AddCommand(newDecoupleCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	return root
}

// setup loads configuration, builds the logger and starts tracing.
func (o *rootOptions) setup(cmd *cobra.Command, _ []string) error {
	if err := o.manager.Load(o.configPath); err != nil {
		return err
	}
	cfg := o.manager.Get()

	level := parseLevel(cfg.Logging.Level)
	if o.verbose {
		level = log.DebugLevel
	}
	logger := newLogger(cmd.ErrOrStderr(), level)
	ctx := withLogger(cmd.Context(), logger)
	logger.Debug("config loaded", "paths", o.manager.GetPaths())

	if cfg.Telemetry.Enabled || o.trace {
		tc := telemetry.DefaultOTLPConfig(cfg.Telemetry.ServiceName)
		tc.Endpoint = cfg.Telemetry.Endpoint
		tc.InsecureTLS = cfg.Telemetry.Insecure
		tc.SamplingRatio = cfg.Telemetry.SamplingRatio
		tc.ServiceVersion = version

		shutdown, err := telemetry.Init(ctx, tc)
		if err != nil {
			logger.Warn("tracing disabled", "err", err)
		} else {
			o.shutdown = shutdown
			logger.Debug("tracing enabled", "endpoint", tc.Endpoint)
		}
	}

	cmd.SetContext(ctx)
	return nil
}

// teardown flushes pending spans.
func (o *rootOptions) teardown(cmd *cobra.Command, _ []string) error {
	if o.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.shutdown(ctx); err != nil {
		loggerFromContext(cmd.Context()).Warn("failed to flush traces", "err", err)
	}
	return nil
}
