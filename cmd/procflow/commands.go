package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/attr"
	"github.com/logflow/procflow/pkg/decouple"
	"github.com/logflow/procflow/pkg/export"
	"github.com/logflow/procflow/pkg/graph"
	"github.com/logflow/procflow/pkg/session"
	"github.com/logflow/procflow/pkg/telemetry"
	"github.com/logflow/procflow/pkg/tui"
	"github.com/logflow/procflow/pkg/variants"
	"github.com/logflow/procflow/pkg/watch"
)

func newSummaryCmd(o *rootOptions) *cobra.Command {
	var (
		showEdges bool
		node      string
		edge      string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "summary [files...]",
		Short: "Show headline counts of an event log",
		Long: `Load one or more event logs and show case, activity and transition counts.

Examples:
  procflow summary events.csv
  procflow summary --edges events.jsonl
  procflow summary --node MANAGER_APPROVAL --limit 5 events.parquet
  procflow summary --sql "SELECT * FROM read_csv_auto('events.csv')"`,
		Args: o.inputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.newSession(cmd.Context(), args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, tui.RenderSummary(s.Summary()))

			if showEdges {
				fmt.Fprintln(out, tui.Section("transitions"))
				fmt.Fprintln(out, tui.RenderEdges(s.Graph.Edges))
			}
			if node != "" {
				if !s.Graph.HasNode(node) {
					return fmt.Errorf("unknown activity: %s", node)
				}
				fmt.Fprintln(out, tui.RenderNodeVisits(node, graph.NodeVisits(s.Graph, node, limit)))
			}
			if edge != "" {
				ts := graph.EdgeTraversals(s.Graph, edge, limit)
				if ts == nil {
					return fmt.Errorf("unknown transition: %s", edge)
				}
				fmt.Fprintln(out, tui.RenderTraversals(ts))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showEdges, "edges", false, "List every transition with duration statistics")
	cmd.Flags().StringVar(&node, "node", "", "Show the cases that reached this activity")
	cmd.Flags().StringVar(&edge, "edge", "", "Show traversals of this transition (SOURCE__TARGET)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum rows for --node and --edge (0 = all)")
	return cmd
}

func newVariantsCmd(o *rootOptions) *cobra.Command {
	var happyPath bool
	cmd := &cobra.Command{
		Use:   "variants [files...]",
		Short: "List the most frequent end-to-end paths",
		Args:  o.inputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.newSession(cmd.Context(), args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(s.Variants) == 0 {
				fmt.Fprintln(out, tui.Muted("  no cases"))
				return nil
			}
			fmt.Fprintln(out, tui.Section("variants"))
			fmt.Fprintln(out, tui.RenderVariants(s.Variants, len(s.Cases)))

			if happyPath {
				ids := variants.HappyPathEdges(s.Graph, s.Variants[0])
				fmt.Fprintln(out, tui.Section("happy path"))
				for _, id := range ids.Sorted() {
					fmt.Fprintf(out, "  %s\n", id)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&happyPath, "happy-path", false, "Also list the transitions of the top variant")
	return cmd
}

// navFlags selects what part of the graph is shown.
type navFlags struct {
	step    int
	expand  []string
	variant string
}

func (n *navFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&n.step, "step", 0, "Show every transition within this many steps of START")
	cmd.Flags().StringSliceVar(&n.expand, "expand", nil, "Expand these activities (START is implied)")
	cmd.Flags().StringVar(&n.variant, "variant", "", "Show only this variant (id from `procflow variants`)")
}

// apply moves s to the requested navigation state.
func (n *navFlags) apply(cmd *cobra.Command, s *session.Session) (*session.Session, error) {
	var err error
	if cmd.Flags().Changed("step") {
		s = s.SetStep(n.step)
	}
	if len(n.expand) > 0 {
		s = s.ResetExpanded()
		for _, id := range append([]string{graph.StartNodeID}, n.expand...) {
			if s, err = s.ExpandNode(id); err != nil {
				return nil, err
			}
		}
	}
	if n.variant != "" {
		if s, err = s.SelectVariant(n.variant); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newVisibleCmd(o *rootOptions) *cobra.Command {
	var nav navFlags
	cmd := &cobra.Command{
		Use:   "visible [files...]",
		Short: "Show which transitions a navigation state reveals",
		Long: `Show the visible part of the graph.

By default only START is expanded. Use --step for a depth frontier,
--expand to open activities one by one, or --variant to follow one path.

Examples:
  procflow visible --step 2 events.csv
  procflow visible --expand APP_SUBMIT,INITIAL_REVIEW events.csv
  procflow visible --variant var-0-APP_SUBMIT>APPROVED events.csv`,
		Args: o.inputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.newSession(cmd.Context(), args)
			if err != nil {
				return err
			}
			if s, err = nav.apply(cmd, s); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderVisible(s.Visible()))
			return nil
		},
	}
	nav.register(cmd)
	return cmd
}

func newDecoupleCmd(o *rootOptions) *cobra.Command {
	var (
		layerSpecs []string
		valuesSpec string
		undoSpec   string
		resetBelow string
	)
	cmd := &cobra.Command{
		Use:   "decouple [files...]",
		Short: "Split transitions by department, resource or attribute",
		Long: `Split aggregated transitions into one edge per attribute value.

A layer is TARGET=PATH[,label=LABEL][,local]. TARGET is an activity or a
transition (SOURCE__TARGET). PATH is department, resource or a dotted
attribute path such as attributes.channel. By default a layer splits every
transition from its target onwards; ",local" splits only transitions
leaving the target. Layers apply in order and nest.

Examples:
  procflow decouple --layer APP_SUBMIT=department events.csv
  procflow decouple --layer A=department --layer B=resource,local events.csv
  procflow decouple --values A=attributes.channel events.csv`,
		Args: o.inputArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := o.newSession(ctx, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if valuesSpec != "" {
				l, err := parseLayer(valuesSpec)
				if err != nil {
					return err
				}
				values := decouple.DistinctValues(s.Cases, l.Target, l.Selector)
				fmt.Fprintf(out, "%s %s\n", tui.Section("values"), tui.Muted(fmt.Sprintf("(%d)", len(values))))
				for _, v := range values {
					fmt.Fprintf(out, "  %s\n", v)
				}
				return nil
			}

			layers, err := parseLayers(layerSpecs)
			if err != nil {
				return err
			}
			s = applyLayers(ctx, s, layers)

			if undoSpec != "" {
				node, path, ok := strings.Cut(undoSpec, "=")
				if !ok {
					return fmt.Errorf("--undo must look like NODE=PATH")
				}
				s = s.UndoDecouple(node, attr.Path(path))
			}
			if resetBelow != "" {
				s = s.ResetDownstream(resetBelow)
			}

			fmt.Fprintln(out, tui.Section("decoupled"))
			fmt.Fprintln(out, tui.RenderView(s.View))
			if s.View != nil {
				fmt.Fprintf(out, "%s %s\n", tui.Muted("  groups:"), strings.Join(s.View.GroupKeys(), ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&layerSpecs, "layer", nil, "Decouple layer TARGET=PATH[,label=LABEL][,local] (repeatable)")
	cmd.Flags().StringVar(&valuesSpec, "values", "", "List the distinct values of TARGET=PATH instead of decoupling")
	cmd.Flags().StringVar(&undoSpec, "undo", "", "After applying layers, undo NODE=PATH")
	cmd.Flags().StringVar(&resetBelow, "reset-below", "", "After applying layers, drop every layer at or below this activity")
	return cmd
}

func newExportCmd(o *rootOptions) *cobra.Command {
	var (
		format         string
		output         string
		layerSpecs     []string
		all            bool
		omitTraversals bool
		compression    string
		nav            navFlags
	)
	cmd := &cobra.Command{
		Use:   "export [files...]",
		Short: "Export the graph as JSON, DOT, SVG or a Parquet star schema",
		Long: `Export the current exploration state for other tools.

Formats:
  json     snapshot of graph, visible set, decoupled edges, layout and variants
  dot      Graphviz DOT of the visible graph
  svg      DOT rendered to SVG
  parquet  star schema (Fact_Traversals plus dimensions) written to a directory

Examples:
  procflow export --step 3 -o graph.json events.csv
  procflow export --format dot --all events.csv | dot -Tpng > graph.png
  procflow export --format parquet -o warehouse/ --layer A=department events.csv`,
		Args: o.inputArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			s, err := o.newSession(ctx, args)
			if err != nil {
				return err
			}
			if s, err = nav.apply(cmd, s); err != nil {
				return err
			}
			layers, err := parseLayers(layerSpecs)
			if err != nil {
				return err
			}
			s = applyLayers(ctx, s, layers)

			ctx, span := telemetry.Start(ctx, "export", telemetry.Attr("format", format))
			defer func() { telemetry.End(span, err) }()

			cfg := o.manager.Get()
			spacing := graph.Spacing{X: cfg.Layout.SpacingX, Y: cfg.Layout.SpacingY}

			if format == "parquet" {
				if output == "" || output == "-" {
					return fmt.Errorf("parquet export needs an output directory (-o)")
				}
				exp, err := export.NewStarSchemaExporter(output, compression)
				if err != nil {
					return err
				}
				defer exp.Close()
				res, err := exp.Export(ctx, s.Graph, s.View)
				if err != nil {
					return err
				}
				for _, f := range res.Files() {
					fmt.Fprintln(cmd.OutOrStdout(), tui.Success(f))
				}
				return nil
			}

			var data []byte
			switch format {
			case "json":
				var b strings.Builder
				snap := export.NewSnapshot(s, export.SnapshotOptions{OmitTraversals: omitTraversals, Spacing: spacing})
				if err := export.WriteJSON(&b, snap); err != nil {
					return err
				}
				data = []byte(b.String())
			case "dot", "svg":
				dot := export.ToDOT(s.Graph, s.Visible(), s.View, export.DOTOptions{
					Labels: tui.FriendlyName,
					Layout: graph.ComputeLayout(s.Graph, []string{graph.StartNodeID}, spacing),
					All:    all,
				})
				data = []byte(dot)
				if format == "svg" {
					if data, err = export.RenderSVG(ctx, dot); err != nil {
						return err
					}
				}
			default:
				return fmt.Errorf("unknown export format: %s (json, dot, svg, parquet)", format)
			}
			return writeOutput(cmd.OutOrStdout(), output, data)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Output format (json, dot, svg, parquet)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, or directory for parquet ('-' = stdout)")
	cmd.Flags().StringArrayVar(&layerSpecs, "layer", nil, "Decouple layer TARGET=PATH[,label=LABEL][,local] (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Draw the whole graph instead of the visible part (dot, svg)")
	cmd.Flags().BoolVar(&omitTraversals, "omit-traversals", false, "Leave per-case traversals out of the JSON snapshot")
	cmd.Flags().StringVar(&compression, "compression", "snappy", "Parquet compression (snappy, zstd, gzip, uncompressed)")
	nav.register(cmd)
	return cmd
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintln(stdout, tui.Success(path))
	return nil
}

func newWatchCmd(o *rootOptions) *cobra.Command {
	var layerSpecs []string
	cmd := &cobra.Command{
		Use:   "watch <files...>",
		Short: "Rebuild the graph whenever the event logs change",
		Long: `Watch event logs and rebuild the graph wholesale on every change.

Decouple layers given with --layer are re-applied after each rebuild.

Examples:
  procflow watch events.csv
  procflow watch --layer APP_SUBMIT=department events.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			out := cmd.OutOrStdout()

			layers, err := parseLayers(layerSpecs)
			if err != nil {
				return err
			}
			s, err := o.newSession(ctx, args)
			if err != nil {
				return err
			}

			show := func(s *session.Session) {
				fmt.Fprint(out, tui.RenderSummary(s.Summary()))
				if len(layers) > 0 {
					fmt.Fprintln(out, tui.RenderView(applyLayers(ctx, s, layers).View))
				}
			}
			show(s)

			reloader := watch.NewReloader(s, func(ctx context.Context) ([]model.Event, error) {
				return o.loadEvents(ctx, args)
			})
			reloader.OnReload = show

			w, err := watch.NewWatcher(o.manager.Get().Watch.Debounce, logger)
			if err != nil {
				return err
			}
			defer w.Close()
			reloader.Bind(ctx, w)
			w.OnError = func(path string, err error) {
				logger.Error("reload failed, keeping previous graph", "path", path, "err", err)
			}

			for _, p := range args {
				if err := w.Watch(p); err != nil {
					return err
				}
			}
			logger.Info("watching", "files", len(args))
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&layerSpecs, "layer", nil, "Decouple layer TARGET=PATH[,label=LABEL][,local] (repeatable)")
	return cmd
}

func newConfigCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and save configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := o.manager.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "paths",
		Short: "List the config files that were loaded",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := o.manager.GetPaths()
			if len(paths) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), tui.Muted("  defaults only"))
			}
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Write the effective configuration to ~/.procflow/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.manager.Save(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.Success("saved ~/.procflow/config.yaml"))
			return nil
		},
	})
	return cmd
}
