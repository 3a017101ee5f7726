package attribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/DrSkyle/depotmap/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrCancelled is returned when a run is stopped through its context. The returned error also
// wraps the context's own error.
var ErrCancelled = errors.New("attribution cancelled")

// Defaults.
const (
	DefaultMaxGap        = 50
	DefaultCheckInterval = 1000
)

// Groups maps an owner identifier to its depots in ascending order.
type Groups map[int][]int

// Owners returns the owner identifiers in ascending order.
func (g Groups) Owners() []int {
	owners := make([]int, 0, len(g))
	for owner := range g {
		owners = append(owners, owner)
	}
	slices.Sort(owners)
	return owners
}

// DepotCount is the number of depots across all groups.
func (g Groups) DepotCount() int {
	n := 0
	for _, depots := range g {
		n += len(depots)
	}
	return n
}

// Phase names a stage of an attribution run.
type Phase string

const (
	PhasePrimary Phase = "primary"
	PhaseCluster Phase = "cluster"
)

// Progress is reported at every checkpoint.
type Progress struct {
	Phase     Phase
	Processed int
	Total     int
}

// ProgressFunc receives progress signals. It runs on the attribution goroutine and must not block.
type ProgressFunc func(Progress)

// Hooks control how often a phase yields to its caller.
type Hooks struct {
	// Interval is the number of depots processed between checkpoints. Zero means DefaultCheckInterval.
	Interval int
	Progress ProgressFunc
}

func (h Hooks) interval() int {
	if h.Interval <= 0 {
		return DefaultCheckInterval
	}
	return h.Interval
}

func (h Hooks) report(phase Phase, processed, total int) {
	if h.Progress != nil {
		h.Progress(Progress{Phase: phase, Processed: processed, Total: total})
	}
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
}

// ValidDepots returns the depots whose key is not blank, in ascending order.
func ValidDepots(depotKeys map[int]string) []int {
	depots := make([]int, 0, len(depotKeys))
	for id, key := range depotKeys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		depots = append(depots, id)
	}
	slices.Sort(depots)
	return depots
}

// Primary resolves each depot against the catalog. depots must be in ascending order; group
// members inherit that order. Depots without an owner are returned as unattributed.
func Primary(ctx context.Context, depots []int, catalog Catalog, hooks Hooks) (Groups, []int, error) {
	groups := make(Groups)
	var unattributed []int
	every := hooks.interval()
	total := len(depots)

	for i, depot := range depots {
		if i%every == 0 {
			if ctx.Err() != nil {
				return nil, nil, cancelled(ctx)
			}
			hooks.report(PhasePrimary, i, total)
		}

		owner, ok := Resolve(depot, catalog)
		if !ok || owner <= 0 {
			unattributed = append(unattributed, depot)
			continue
		}
		groups[owner] = append(groups[owner], depot)
	}

	hooks.report(PhasePrimary, total, total)
	return groups, unattributed, nil
}

// Cluster groups depots into runs whose consecutive members are at most maxGap apart. Each run is
// owned by its smallest member; a run whose smallest member is 0 is discarded.
func Cluster(ctx context.Context, depots []int, maxGap int, hooks Hooks) (Groups, error) {
	groups := make(Groups)
	if len(depots) == 0 {
		return groups, nil
	}

	sorted := slices.Clone(depots)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	every := hooks.interval()
	total := len(sorted)

	closeRun := func(run []int) error {
		if ctx.Err() != nil {
			return cancelled(ctx)
		}
		if owner := run[0]; owner > 0 {
			groups[owner] = append(groups[owner], run...)
		}
		return nil
	}

	start := 0
	for i := 1; i < len(sorted); i++ {
		if i%every == 0 {
			hooks.report(PhaseCluster, i, total)
		}
		if sorted[i]-sorted[i-1] <= maxGap {
			continue
		}
		if err := closeRun(sorted[start:i]); err != nil {
			return nil, err
		}
		start = i
	}
	if err := closeRun(sorted[start:]); err != nil {
		return nil, err
	}

	hooks.report(PhaseCluster, total, total)
	return groups, nil
}

// Result is the frozen outcome of one attribution run.
type Result struct {
	Groups Groups

	// ValidDepots counts depots with a non-blank key.
	ValidDepots int
	// Attributed counts depots placed by the resolver.
	Attributed int
	// Clustered counts depots placed in synthetic groups.
	Clustered int
	// SyntheticOwners counts groups created by clustering.
	SyntheticOwners int
}

// Dropped is the number of valid depots missing from the output.
func (r *Result) Dropped() int {
	return r.ValidDepots - r.Groups.DepotCount()
}

// Engine drives a full attribution run.
type Engine struct {
	maxGap int
	hooks  Hooks
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxGap sets the largest gap allowed between neighbours of one synthetic group.
func WithMaxGap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxGap = n
		}
	}
}

// WithCheckInterval sets how many depots are processed between cancellation checks.
func WithCheckInterval(n int) Option {
	return func(e *Engine) {
		e.hooks.Interval = n
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.hooks.Progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an Engine with the default gap and check interval.
func New(opts ...Option) *Engine {
	e := &Engine{
		maxGap: DefaultMaxGap,
		hooks:  Hooks{Interval: DefaultCheckInterval},
		logger: slog.Default(),
		tracer: telemetry.Tracer("attribution"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attribute assigns every depot with a non-blank key to an owner. On cancellation it returns
// ErrCancelled and no result.
func (e *Engine) Attribute(ctx context.Context, depotKeys map[int]string, catalog Catalog) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "Attribution.Attribute")
	defer span.End()

	depots := ValidDepots(depotKeys)
	span.SetAttributes(attribute.Int("depots.valid", len(depots)))
	e.logger.Debug("Attribution started", "valid_depots", len(depots), "max_gap", e.maxGap)

	_, primarySpan := e.tracer.Start(ctx, "Attribution.Primary")
	groups, unattributed, err := Primary(ctx, depots, catalog, e.hooks)
	primarySpan.End()
	if err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return nil, err
	}

	result := &Result{
		ValidDepots: len(depots),
		Attributed:  len(depots) - len(unattributed),
	}

	if len(unattributed) > 0 {
		_, clusterSpan := e.tracer.Start(ctx, "Attribution.Cluster")
		synthetic, err := Cluster(ctx, unattributed, e.maxGap, e.hooks)
		clusterSpan.End()
		if err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, err
		}

		result.SyntheticOwners = len(synthetic)
		for _, owner := range synthetic.Owners() {
			members := synthetic[owner]
			result.Clustered += len(members)
			groups[owner] = append(groups[owner], members...)
		}
	}

	delete(groups, 0)
	result.Groups = groups

	span.SetAttributes(
		attribute.Int("depots.attributed", result.Attributed),
		attribute.Int("depots.clustered", result.Clustered),
		attribute.Int("owners", len(groups)),
	)
	e.logger.Debug("Attribution finished",
		"owners", len(groups),
		"attributed", result.Attributed,
		"clustered", result.Clustered,
		"dropped", result.Dropped(),
	)
	return result, nil
}
