package eventlog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/errors"
)

// Options configures a Loader.
type Options struct {
	Columns Columns
	// Format forces a format instead of detecting it from the extension.
	Format Format
	// Delimiter overrides the CSV delimiter; .tsv files default to tab.
	Delimiter rune
	S3        S3Config
	// Concurrency bounds LoadAll. Zero means one goroutine per file.
	Concurrency int
}

// Loader reads event logs from local files and s3:// objects.
type Loader struct {
	opts   Options
	logger *log.Logger

	mu sync.Mutex
	s3 *S3Fetcher
}

// NewLoader returns a Loader. A nil logger discards output.
func NewLoader(opts Options, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Loader{opts: opts, logger: logger}
}

// Load reads one file or object.
func (l *Loader) Load(ctx context.Context, path string) ([]model.Event, error) {
	start := time.Now()

	format := l.opts.Format
	if format == FormatUnknown {
		format = DetectFormat(path)
	}
	if format == FormatUnknown {
		return nil, errors.UnsupportedFormat(path)
	}

	rc, err := l.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	delimiter := l.opts.Delimiter
	if delimiter == 0 && strings.EqualFold(filepath.Ext(path), ".tsv") {
		delimiter = '\t'
	}

	events, err := l.decode(ctx, rc, format, delimiter)
	if err != nil {
		return nil, errors.Wrapf(err, errors.GetCode(err), "failed to load %s", path)
	}

	l.logger.Debug("loaded event log", "path", path, "format", format, "events", len(events), "took", time.Since(start))
	return events, nil
}

// Decode reads events of a known format from r.
func (l *Loader) Decode(ctx context.Context, r io.Reader, format Format) ([]model.Event, error) {
	return l.decode(ctx, r, format, l.opts.Delimiter)
}

func (l *Loader) decode(ctx context.Context, r io.Reader, format Format, delimiter rune) ([]model.Event, error) {
	switch format {
	case FormatJSON, FormatJSONL:
		return decodeJSON(r, l.opts.Columns.TimestampFormat)
	case FormatCSV:
		return decodeCSV(r, l.opts.Columns, delimiter)
	case FormatXLSX:
		return decodeXLSX(r, l.opts.Columns)
	case FormatParquet:
		return decodeParquet(ctx, r, l.opts.Columns)
	case FormatXES:
		return decodeXES(ctx, r, l.opts.Columns.TimestampFormat)
	default:
		return nil, errors.New(errors.CodeUnsupportedFormat, "unsupported format").WithContext("format", format.String())
	}
}

func (l *Loader) open(ctx context.Context, path string) (io.ReadCloser, error) {
	if IsS3URI(path) {
		f, err := l.fetcher(ctx)
		if err != nil {
			return nil, err
		}
		return f.Open(ctx, path)
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.FileNotFound(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

func (l *Loader) fetcher(ctx context.Context) (*S3Fetcher, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.s3 != nil {
		return l.s3, nil
	}
	f, err := NewS3Fetcher(ctx, l.opts.S3)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSourceFetch, "failed to create s3 client")
	}
	l.s3 = f
	return f, nil
}

// LoadAll loads paths concurrently and concatenates the events in path
// order. onFile, if set, is called once per finished file.
func (l *Loader) LoadAll(ctx context.Context, paths []string, onFile func(path string, events int)) ([]model.Event, error) {
	results := make([][]model.Event, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if l.opts.Concurrency > 0 {
		g.SetLimit(l.opts.Concurrency)
	}

	var mu sync.Mutex
	for i, p := range paths {
		g.Go(func() error {
			events, err := l.Load(ctx, p)
			if err != nil {
				return err
			}
			results[i] = events
			if onFile != nil {
				mu.Lock()
				onFile(p, len(events))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	all := make([]model.Event, 0, total)
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}
