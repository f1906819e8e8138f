package main

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/attr"
	"github.com/logflow/procflow/pkg/decouple"
	"github.com/logflow/procflow/pkg/errors"
	"github.com/logflow/procflow/pkg/eventlog"
	"github.com/logflow/procflow/pkg/index"
	"github.com/logflow/procflow/pkg/session"
	"github.com/logflow/procflow/pkg/telemetry"
	"github.com/logflow/procflow/pkg/tui"
)

// inputArgs accepts log paths unless --sql supplies the events.
func (o *rootOptions) inputArgs(cmd *cobra.Command, args []string) error {
	if o.sql == "" && len(args) == 0 {
		return fmt.Errorf("requires at least one event log path or --sql")
	}
	return nil
}

func (o *rootOptions) loaderOptions() (eventlog.Options, error) {
	cfg := o.manager.Get()
	opts := eventlog.Options{
		Columns:     cfg.Columns,
		S3:          cfg.S3,
		Concurrency: cfg.Explore.Concurrency,
	}
	if o.format != "" {
		opts.Format = eventlog.ParseFormat(o.format)
		if opts.Format == eventlog.FormatUnknown {
			return opts, errors.New(errors.CodeUnsupportedFormat, "unknown input format").WithContext("format", o.format)
		}
	}
	switch o.delimiter {
	case "":
	case `\t`, "tab":
		opts.Delimiter = '\t'
	default:
		r, _ := utf8.DecodeRuneInString(o.delimiter)
		opts.Delimiter = r
	}
	return opts, nil
}

// loadEvents reads events and keeps the cases matching --where.
func (o *rootOptions) loadEvents(ctx context.Context, paths []string) ([]model.Event, error) {
	conds, err := index.ParseConditions(o.where)
	if err != nil {
		return nil, err
	}
	events, err := o.readEvents(ctx, paths)
	if err != nil || len(conds) == 0 {
		return events, err
	}
	kept := index.Filter(events, conds)
	loggerFromContext(ctx).Debug("filtered cases", "where", o.where, "events", len(events), "kept", len(kept))
	return kept, nil
}

// readEvents reads events from paths, or from the --sql query when set.
func (o *rootOptions) readEvents(ctx context.Context, paths []string) (events []model.Event, err error) {
	logger := loggerFromContext(ctx)
	ctx, span := telemetry.Start(ctx, "eventlog.load", telemetry.Attr("files", len(paths)))
	defer func() { telemetry.End(span, err) }()

	if o.sql != "" {
		src, err := eventlog.OpenQuerySource()
		if err != nil {
			return nil, err
		}
		defer src.Close()
		logger.Debug("running query", "sql", o.sql)
		return src.Query(ctx, o.sql, o.manager.Get().Columns)
	}

	opts, err := o.loaderOptions()
	if err != nil {
		return nil, err
	}
	loader := eventlog.NewLoader(opts, logger)

	var onFile func(string, int)
	if len(paths) > 1 {
		bar := tui.ShowProgress(int64(len(paths)), "loading")
		defer bar.Finish()
		onFile = func(path string, n int) {
			bar.Add(1)
			logger.Debug("loaded", "path", path, "events", n)
		}
	}
	return loader.LoadAll(ctx, paths, onFile)
}

func (o *rootOptions) sessionOptions() session.Options {
	cfg := o.manager.Get()
	return session.Options{
		TopVariants: cfg.Explore.TopVariants,
		Step:        cfg.Explore.Step,
		Navigation:  session.Navigation(cfg.Explore.Navigation),
	}
}

// newSession builds a session from the loaded events.
func (o *rootOptions) newSession(ctx context.Context, paths []string) (s *session.Session, err error) {
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	events, err := o.loadEvents(ctx, paths)
	if err != nil {
		return nil, err
	}

	_, span := telemetry.Start(ctx, "session.build", telemetry.Attr("events", len(events)))
	defer func() { telemetry.End(span, err) }()

	s, err = session.New(events, o.sessionOptions())
	if err != nil {
		return nil, err
	}
	sum := s.Summary()
	span.SetAttributes(telemetry.Attr("cases", sum.Cases), telemetry.Attr("edges", sum.Edges))
	prog.done(fmt.Sprintf("Built graph of %d cases, %d transitions", sum.Cases, sum.Edges))
	return s, nil
}

// parseLayer reads TARGET=PATH[,label=LABEL][,local]. A TARGET holding
// "__" is an edge id, anything else a node id.
func parseLayer(spec string) (decouple.Layer, error) {
	target, rest, ok := strings.Cut(spec, "=")
	if !ok || target == "" || rest == "" {
		return decouple.Layer{}, errors.New(errors.CodeInvalidLayer, "layer must look like TARGET=PATH").
			WithContext("layer", spec)
	}

	parts := strings.Split(rest, ",")
	var sel attr.Selector
	if err := sel.UnmarshalText([]byte(parts[0])); err != nil {
		return decouple.Layer{}, err
	}
	l := decouple.Layer{Selector: sel, Mode: decouple.Downstream}
	if strings.Contains(target, "__") {
		l.Target = decouple.AtEdge(target)
	} else {
		l.Target = decouple.AtNode(target)
	}

	for _, opt := range parts[1:] {
		switch {
		case opt == "local":
			l.Mode = decouple.NodeLocal
		case strings.HasPrefix(opt, "label="):
			l.Label = strings.TrimPrefix(opt, "label=")
		default:
			return decouple.Layer{}, errors.New(errors.CodeInvalidLayer, "unknown layer option").
				WithContext("layer", spec).WithContext("option", opt)
		}
	}
	return l, nil
}

// parseLayers parses every spec. With more than one layer, unlabelled
// layers are labelled by their path so composite keys stay readable.
func parseLayers(specs []string) ([]decouple.Layer, error) {
	layers := make([]decouple.Layer, 0, len(specs))
	for _, spec := range specs {
		l, err := parseLayer(spec)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	if len(layers) > 1 {
		for i := range layers {
			if layers[i].Label == "" {
				layers[i].Label = tui.FriendlyName(layers[i].Selector.String())
			}
		}
	}
	return layers, nil
}

// applyLayers adds layers to s in order.
func applyLayers(ctx context.Context, s *session.Session, layers []decouple.Layer) *session.Session {
	if len(layers) == 0 {
		return s
	}
	_, span := telemetry.Start(ctx, "decouple.compose", telemetry.Attr("layers", len(layers)))
	defer telemetry.End(span, nil)

	for _, l := range layers {
		if !decouple.Offerable(s.Cases, l.Target, l.Selector) {
			loggerFromContext(ctx).Warn("only one value at target, every case lands in one group",
				"target", l.Target.ID, "path", l.Selector.String())
		}
		s = s.Decouple(l)
	}
	if s.View != nil {
		span.SetAttributes(telemetry.Attr("group_edges", len(s.View.GroupEdges)))
	}
	return s
}
