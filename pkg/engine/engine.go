// Package engine runs depotmap end to end: load the datasets, attribute depots, write artifacts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/DrSkyle/depotmap/pkg/artifact"
	"github.com/DrSkyle/depotmap/pkg/attribution"
	"github.com/DrSkyle/depotmap/pkg/config"
	"github.com/DrSkyle/depotmap/pkg/dataset"
	"github.com/DrSkyle/depotmap/pkg/rules"
	"github.com/DrSkyle/depotmap/pkg/storage"
	"github.com/DrSkyle/depotmap/pkg/telemetry"
	"github.com/DrSkyle/depotmap/pkg/version"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrPanic is returned when a run crashed and was recovered.
var ErrPanic = errors.New("run aborted by panic")

// Source locates one dataset object.
type Source struct {
	Store storage.BlobStore
	Key   string
}

// Stage names a step of a run in progress events.
type Stage string

const (
	StageLoad    Stage = "load"
	StagePrimary Stage = "primary"
	StageCluster Stage = "cluster"
	StageWrite   Stage = "write"
)

// Event is a progress signal.
type Event struct {
	Stage     Stage
	Processed int
	Total     int
}

// Engine is the runtime core.
type Engine struct {
	Logger *slog.Logger
	Tracer trace.Tracer

	config   config.Config
	depots   Source
	catalog  Source
	sink     storage.BlobStore
	progress func(Event)
	metrics  *metrics
	shutdown func(context.Context) error
}

// Option defines a functional configuration override.
type Option func(*Engine)

// New initializes the Engine. Dataset sources and the sink not given through options are opened
// from the configured locations.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{
		Logger: NewLogger(os.Stderr, config.DefaultLogFormat, false),
		Tracer: telemetry.Tracer("engine"),
		config: config.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if err := e.config.Validate(); err != nil {
		return nil, err
	}

	slog.SetDefault(e.Logger)

	if !e.config.SkipTelemetry {
		shutdown, err := telemetry.Init(ctx, version.AppName, version.Current, e.config.OTelEndpoint)
		if err != nil {
			e.Logger.Warn("Telemetry failed", "error", err)
		} else {
			e.shutdown = shutdown
		}
	}

	m, err := newMetrics()
	if err != nil {
		return nil, e.abort(ctx, err)
	}
	e.metrics = m

	storeOpts := e.config.StorageOptions()
	if e.depots.Store == nil {
		store, key, err := storage.OpenObject(ctx, e.config.DepotKeys, storeOpts)
		if err != nil {
			return nil, e.abort(ctx, fmt.Errorf("depot keys source: %w", err))
		}
		e.depots = Source{Store: store, Key: key}
	}
	if e.catalog.Store == nil {
		store, key, err := storage.OpenObject(ctx, e.config.Catalog, storeOpts)
		if err != nil {
			return nil, e.abort(ctx, fmt.Errorf("catalog source: %w", err))
		}
		e.catalog = Source{Store: store, Key: key}
	}
	if e.sink == nil {
		sink, err := storage.Open(ctx, e.config.Output, storeOpts)
		if err != nil {
			return nil, e.abort(ctx, fmt.Errorf("output sink: %w", err))
		}
		e.sink = sink
	}

	return e, nil
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.Logger = l
		}
	}
}

// WithConfig sets raw config.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithSources sets where the depot key table and the catalog are read from.
func WithSources(depots, catalog Source) Option {
	return func(e *Engine) {
		e.depots = depots
		e.catalog = catalog
	}
}

// WithSink sets where artifacts are written.
func WithSink(sink storage.BlobStore) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithProgress registers a progress callback. It is called from the run's goroutine.
func WithProgress(fn func(Event)) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// abort releases what New acquired before failing with err.
func (e *Engine) abort(ctx context.Context, err error) error {
	if shutdownErr := e.Close(ctx); shutdownErr != nil {
		e.Logger.Warn("Telemetry shutdown failed", "error", shutdownErr)
	}
	return err
}

// Close flushes telemetry.
func (e *Engine) Close(ctx context.Context) error {
	if e.shutdown == nil {
		return nil
	}
	return e.shutdown(ctx)
}

// Snapshot is a loaded and attributed run, ready for artifact generation or search.
type Snapshot struct {
	RunID   string
	Keys    dataset.DepotKeys
	Catalog *dataset.Catalog
	Result  *attribution.Result
}

// Report summarizes a full run.
type Report struct {
	RunID       string
	Duration    time.Duration
	CatalogSize int
	Attribution *attribution.Result
	Artifacts   *artifact.Summary
}

// Run loads both datasets, attributes every depot and writes the artifacts.
func (e *Engine) Run(ctx context.Context) (report *Report, err error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Run")
	defer span.End()

	defer e.recoverPanic(ctx, &err)

	start := time.Now()
	snap, err := e.Map(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attribution failed")
		return nil, err
	}
	log := e.Logger.With("run_id", snap.RunID)

	filter, err := e.loadRules()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rules failed")
		return nil, err
	}

	w := artifact.NewWriter(e.sink,
		artifact.WithSkipUnknown(e.config.SkipUnknown),
		artifact.WithMapping(e.config.SaveMapping),
		artifact.WithFilter(filter),
		artifact.WithTopN(e.config.TopN),
		artifact.WithConcurrency(e.config.Concurrency),
		artifact.WithLogger(log),
		artifact.WithProgress(func(p artifact.Progress) {
			e.emit(Event{Stage: StageWrite, Processed: p.Processed, Total: p.Total})
		}),
	)
	summary, err := w.Write(ctx, snap.Result.Groups, snap.Keys, snap.Catalog)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return nil, err
	}
	e.metrics.artifacts.Add(ctx, int64(summary.Generated))

	report = &Report{
		RunID:       snap.RunID,
		Duration:    time.Since(start),
		CatalogSize: snap.Catalog.Len(),
		Attribution: snap.Result,
		Artifacts:   summary,
	}
	span.SetAttributes(
		attribute.String("run.id", snap.RunID),
		attribute.Int("artifacts.generated", summary.Generated),
	)
	log.Info("Run complete",
		"owners", len(snap.Result.Groups),
		"generated", summary.Generated,
		"duration", report.Duration.String(),
	)
	return report, nil
}

// Map loads both datasets and attributes every depot without writing anything.
func (e *Engine) Map(ctx context.Context) (*Snapshot, error) {
	runID := uuid.NewString()
	log := e.Logger.With("run_id", runID)

	keys, catalog, err := e.load(ctx, log)
	if err != nil {
		return nil, err
	}

	eng := attribution.New(
		attribution.WithMaxGap(e.config.MaxGap),
		attribution.WithCheckInterval(e.config.CheckInterval),
		attribution.WithLogger(log),
		attribution.WithProgress(func(p attribution.Progress) {
			stage := StagePrimary
			if p.Phase == attribution.PhaseCluster {
				stage = StageCluster
			}
			e.emit(Event{Stage: stage, Processed: p.Processed, Total: p.Total})
		}),
	)
	res, err := eng.Attribute(ctx, keys, catalog)
	if err != nil {
		log.Warn("Attribution stopped", "error", err)
		return nil, err
	}

	e.metrics.attributed.Add(ctx, int64(res.Attributed))
	e.metrics.clustered.Add(ctx, int64(res.Clustered))
	e.metrics.dropped.Add(ctx, int64(res.Dropped()))

	log.Info("Attribution complete",
		"valid_depots", res.ValidDepots,
		"attributed", res.Attributed,
		"clustered", res.Clustered,
		"dropped", res.Dropped(),
		"owners", len(res.Groups),
	)
	return &Snapshot{RunID: runID, Keys: keys, Catalog: catalog, Result: res}, nil
}

// LoadCatalog reads only the application catalog.
func (e *Engine) LoadCatalog(ctx context.Context) (*dataset.Catalog, error) {
	return dataset.LoadCatalog(ctx, e.catalog.Store, e.catalog.Key)
}

// Generate writes the scripts of the given owners of a snapshot. Summary files are not written
// and no owner filter applies.
func (e *Engine) Generate(ctx context.Context, snap *Snapshot, owners []int) (*artifact.Summary, error) {
	selected := make(attribution.Groups, len(owners))
	for _, owner := range owners {
		if depots, ok := snap.Result.Groups[owner]; ok {
			selected[owner] = depots
		}
	}

	w := artifact.NewWriter(e.sink,
		artifact.WithMapping(false),
		artifact.WithConcurrency(e.config.Concurrency),
		artifact.WithLogger(e.Logger.With("run_id", snap.RunID)),
	)
	summary, err := w.Write(ctx, selected, snap.Keys, snap.Catalog)
	if err != nil {
		return nil, err
	}
	e.metrics.artifacts.Add(ctx, int64(summary.Generated))
	return summary, nil
}

func (e *Engine) load(ctx context.Context, log *slog.Logger) (dataset.DepotKeys, *dataset.Catalog, error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Load")
	defer span.End()

	e.emit(Event{Stage: StageLoad, Processed: 0, Total: 2})

	var (
		keys    dataset.DepotKeys
		catalog *dataset.Catalog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		keys, err = dataset.LoadDepotKeys(gctx, e.depots.Store, e.depots.Key)
		return err
	})
	g.Go(func() error {
		var err error
		catalog, err = dataset.LoadCatalog(gctx, e.catalog.Store, e.catalog.Key)
		return err
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", attribution.ErrCancelled, ctx.Err())
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, nil, err
	}

	e.emit(Event{Stage: StageLoad, Processed: 2, Total: 2})
	span.SetAttributes(
		attribute.Int("depot_keys", len(keys)),
		attribute.Int("catalog.apps", catalog.Len()),
	)
	log.Info("Datasets loaded",
		"depot_keys", len(keys),
		"catalog_apps", catalog.Len(),
		"catalog_skipped", catalog.Skipped(),
	)
	return keys, catalog, nil
}

func (e *Engine) loadRules() (*rules.Filter, error) {
	if e.config.RulesFile == "" {
		return nil, nil
	}
	f, err := rules.LoadFile(e.config.RulesFile)
	if err != nil {
		return nil, err
	}
	e.Logger.Info("Rules loaded", "file", e.config.RulesFile, "rules", f.Len())
	return f, nil
}

func (e *Engine) emit(ev Event) {
	if e.progress != nil {
		e.progress(ev)
	}
}

// recoverPanic turns a panic into ErrPanic, recorded on a span and in the log.
func (e *Engine) recoverPanic(ctx context.Context, err *error) {
	r := recover()
	if r == nil {
		return
	}

	_, span := e.Tracer.Start(ctx, "CriticalPanic")
	stack := debug.Stack()

	span.RecordError(fmt.Errorf("%v", r), trace.WithStackTrace(true))
	span.SetStatus(codes.Error, "CRITICAL FAILURE")
	span.SetAttributes(
		attribute.String("crash.stack", string(stack)),
		attribute.String("crash.reason", fmt.Sprintf("%v", r)),
	)
	span.End()

	e.Logger.Error("CRITICAL FAILURE", "error", r, "stack", string(stack))
	*err = fmt.Errorf("%w: %v", ErrPanic, r)
}

// NewLogger builds the structured logger used by the CLI and the engine. Sensitive attributes
// are redacted.
func NewLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{ReplaceAttr: redactSensitiveData}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

var sensitiveKeys = map[string]bool{
	"key": true, "depot_key": true, "secret": true, "secret_key": true,
	"access_key": true, "token": true, "password": true, "credential": true,
}

// redactSensitiveData scrubs sensitive keys from logs.
func redactSensitiveData(groups []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[a.Key] {
		return slog.Attr{
			Key:   a.Key,
			Value: slog.StringValue("[REDACTED]"),
		}
	}
	return a
}
