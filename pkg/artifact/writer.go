package artifact

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/DrSkyle/depotmap/pkg/attribution"
	"github.com/DrSkyle/depotmap/pkg/rules"
	"github.com/DrSkyle/depotmap/pkg/storage"
	"github.com/DrSkyle/depotmap/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Sink keys of the summary files.
const (
	MappingFile    = "depot_mapping.json"
	StatisticsFile = "statistics.json"
	ReadmeFile     = "README.txt"
)

const progressEvery = 100

// DefaultConcurrency is the number of scripts uploaded in parallel.
const DefaultConcurrency = 8

// Progress is reported every 100 owners and once at the end.
type Progress struct {
	Processed int
	Total     int
}

// Summary describes what a Write call produced.
type Summary struct {
	Generated  int
	Statistics Statistics
	Mapping    *Mapping
	// Files lists every sink key written, in write order.
	Files []string
}

// Writer turns attribution groups into scripts and summary files on a sink.
type Writer struct {
	sink        storage.BlobStore
	skipUnknown bool
	saveMapping bool
	filter      *rules.Filter
	topN        int
	concurrency int
	progress    func(Progress)
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures a Writer.
type Option func(*Writer)

// WithSkipUnknown stops scripts from being generated for owners missing from the catalog.
func WithSkipUnknown(skip bool) Option {
	return func(w *Writer) { w.skipUnknown = skip }
}

// WithMapping toggles the summary files.
func WithMapping(save bool) Option {
	return func(w *Writer) { w.saveMapping = save }
}

// WithFilter applies owner rules. A nil filter keeps every owner.
func WithFilter(f *rules.Filter) Option {
	return func(w *Writer) { w.filter = f }
}

// WithTopN sets the length of the README ranking. Values below one keep DefaultTopN.
func WithTopN(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.topN = n
		}
	}
}

// WithConcurrency bounds the number of in-flight script uploads.
func WithConcurrency(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithProgress reports write progress every 100 owners and once at the end.
func WithProgress(fn func(Progress)) Option {
	return func(w *Writer) { w.progress = fn }
}

// WithLogger sets the logger. A nil logger keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWriter returns a Writer that saves the summary files by default.
func NewWriter(sink storage.BlobStore, opts ...Option) *Writer {
	w := &Writer{
		sink:        sink,
		saveMapping: true,
		topN:        DefaultTopN,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		tracer:      telemetry.Tracer("artifact"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write processes owners in ascending order. Owners without a usable depot are ignored; every
// other owner is recorded in the mapping whether or not its script is generated.
func (w *Writer) Write(ctx context.Context, groups attribution.Groups, keys Keys, names Names) (*Summary, error) {
	ctx, span := w.tracer.Start(ctx, "Artifact.Write")
	defer span.End()

	sum := &Summary{Mapping: NewMapping()}
	owners := groups.Owners()
	total := len(owners)

	uploads, uctx := errgroup.WithContext(ctx)
	uploads.SetLimit(w.concurrency)

	for i, owner := range owners {
		if ctx.Err() != nil {
			_ = uploads.Wait()
			span.SetStatus(codes.Error, "cancelled")
			return nil, fmt.Errorf("%w: %w", attribution.ErrCancelled, ctx.Err())
		}
		if uctx.Err() != nil {
			break
		}

		usable := UsableDepots(groups[owner], keys)
		if len(usable) == 0 {
			continue
		}

		name, known := names.Name(owner)
		if !known {
			name = fmt.Sprintf("Unknown Game %d", owner)
		}

		generate, err := w.decide(owner, name, known, len(usable), &sum.Statistics)
		if err != nil {
			_ = uploads.Wait()
			span.RecordError(err)
			span.SetStatus(codes.Error, "rule evaluation failed")
			return nil, err
		}

		if generate {
			key := ScriptName(owner)
			script := RenderLua(owner, usable, keys)
			uploads.Go(func() error {
				if err := w.sink.Put(uctx, key, script); err != nil {
					return fmt.Errorf("failed to write %s: %w", key, err)
				}
				return nil
			})
			sum.Generated++
			sum.Files = append(sum.Files, key)
		}

		if known {
			sum.Statistics.KnownApps++
		} else {
			sum.Statistics.UnknownApps++
		}
		sum.Statistics.TotalDepots += len(usable)

		ids := make([]string, len(usable))
		for j, d := range usable {
			ids[j] = strconv.Itoa(d)
		}
		sum.Mapping.set(owner, Entry{
			Name:       name,
			Depots:     ids,
			DepotCount: len(usable),
			Known:      known,
			Generated:  generate,
		})

		if w.progress != nil && (i+1)%progressEvery == 0 {
			w.progress(Progress{Processed: i + 1, Total: total})
		}
	}
	if err := uploads.Wait(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", attribution.ErrCancelled, ctx.Err())
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return nil, err
	}
	if w.progress != nil {
		w.progress(Progress{Processed: total, Total: total})
	}

	if w.saveMapping {
		if err := w.writeSummary(ctx, sum); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "write failed")
			return nil, err
		}
	}

	span.SetAttributes(
		attribute.Int("artifacts.generated", sum.Generated),
		attribute.Int("artifacts.skipped_unknown", sum.Statistics.SkippedUnknown),
		attribute.Int("artifacts.skipped_by_rule", sum.Statistics.SkippedByRule),
	)
	w.logger.Info("Artifacts written",
		"generated", sum.Generated,
		"owners", sum.Mapping.Len(),
		"skipped_unknown", sum.Statistics.SkippedUnknown,
		"skipped_by_rule", sum.Statistics.SkippedByRule,
	)
	return sum, nil
}

func (w *Writer) decide(owner int, name string, known bool, depots int, stats *Statistics) (bool, error) {
	if w.skipUnknown && !known {
		stats.SkippedUnknown++
		return false, nil
	}

	d, err := w.filter.Decide(rules.Owner{ID: owner, Name: name, Known: known, Depots: depots})
	if err != nil {
		return false, err
	}
	if d.Skip {
		w.logger.Debug("Owner skipped by rule", "owner", owner, "rule", d.RuleID)
		stats.SkippedByRule++
		return false, nil
	}
	return true, nil
}

func (w *Writer) writeSummary(ctx context.Context, sum *Summary) error {
	var mapping, stats bytes.Buffer
	if err := encodeJSON(&mapping, sum.Mapping, true); err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}
	if err := encodeJSON(&stats, sum.Statistics, true); err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}

	files := []struct {
		key  string
		data []byte
	}{
		{MappingFile, mapping.Bytes()},
		{StatisticsFile, stats.Bytes()},
		{ReadmeFile, RenderReadme(sum.Generated, sum.Statistics, sum.Mapping, w.topN)},
	}
	for _, f := range files {
		if err := w.sink.Put(ctx, f.key, f.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.key, err)
		}
		sum.Files = append(sum.Files, f.key)
	}
	return nil
}
