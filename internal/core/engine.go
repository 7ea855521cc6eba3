package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kilupskalvis/rvc/internal/errclass"
	"github.com/kilupskalvis/rvc/internal/metrics"
	"github.com/kilupskalvis/rvc/internal/models"
)

// Engine turns record lifecycle events into snapshots. The persistence layer
// calls its hooks inside the transaction of the triggering write; the engine
// never schedules work of its own.
type Engine struct {
	registry  *Registry
	allocator Allocator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used for snapshot and failure events
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the collectors the engine reports to
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the snapshot creation time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine over a resolved registry
func NewEngine(reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the engine resolves selectors from
func (e *Engine) Registry() *Registry {
	return e.registry
}

// OnInserted versions a freshly inserted record as version 1
func (e *Engine) OnInserted(ctx context.Context, tx Tx, rec *models.Record) (*models.Snapshot, error) {
	return e.version(ctx, tx, rec, nil, models.TriggerInsert)
}

// OnUpdated versions a record after an update. previous holds the attribute
// values before the update; nil means unknown and always versions. The
// returned snapshot is nil when the type's policy suppressed the save.
func (e *Engine) OnUpdated(ctx context.Context, tx Tx, rec *models.Record, previous models.Attributes) (*models.Snapshot, error) {
	return e.version(ctx, tx, rec, previous, models.TriggerUpdate)
}

// OnBulkInserted versions every record of a bulk insert, each as version 1.
// The first failure aborts the batch; the caller must roll back its transaction.
func (e *Engine) OnBulkInserted(ctx context.Context, tx Tx, recs []*models.Record) ([]*models.Snapshot, error) {
	snaps := make([]*models.Snapshot, 0, len(recs))
	for _, rec := range recs {
		snap, err := e.version(ctx, tx, rec, nil, models.TriggerBulkInsert)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (e *Engine) version(ctx context.Context, tx Tx, rec *models.Record, previous models.Attributes, trigger models.Trigger) (*models.Snapshot, error) {
	start := time.Now()

	sel, err := e.registry.Selector(rec.Type)
	if err != nil {
		return nil, e.fail(rec, trigger, 0, err)
	}
	rt := sel.RecordType()

	if !rec.HasIdentity() {
		return nil, e.fail(rec, trigger, 0, errclass.ErrPrecursorMissing.WithMessagef("%s record has no primary key", rt.Name))
	}

	alloc, err := e.allocator.Next(ctx, tx, rt, rec.ID)
	if err != nil {
		if errors.Is(err, errclass.ErrRecordNotFound) {
			return nil, e.fail(rec, trigger, 0, err)
		}
		return nil, e.fail(rec, trigger, 0, errclass.ErrVersioningFailure.WithMessage("allocate version").Wrap(err))
	}

	if trigger != models.TriggerUpdate && alloc.From != 0 {
		return nil, e.fail(rec, trigger, alloc.To, errclass.ErrDuplicateVersion.WithMessagef(
			"%s/%d inserted with latest_version %d already set", rt.Name, rec.ID, alloc.From))
	}

	if trigger == models.TriggerUpdate && previous != nil && alloc.From > 0 &&
		rt.OnUnchanged == models.UnchangedSkip && !sel.Changed(previous, rec.Attributes) {
		rec.LatestVersion = alloc.From
		e.metrics.ObserveSuppressed(rt.Name)
		e.logger.Debug("save left versioned fields unchanged, no snapshot",
			"record_type", rt.Name, "id", rec.ID, "version", alloc.From)
		return nil, nil
	}

	snap, err := BuildSnapshot(rec, sel, alloc.To, e.now())
	if err != nil {
		return nil, e.fail(rec, trigger, alloc.To, err)
	}

	if err := tx.AppendSnapshot(ctx, sel, snap); err != nil {
		return nil, e.fail(rec, trigger, alloc.To, persistErr("append snapshot", err))
	}

	if err := tx.AdvanceLatestVersion(ctx, rt, rec.ID, alloc.From, alloc.To); err != nil {
		return nil, e.fail(rec, trigger, alloc.To, persistErr("advance latest_version", err))
	}
	rec.LatestVersion = alloc.To

	e.metrics.ObserveSnapshot(rt.Name, string(trigger), time.Since(start))
	e.logger.Debug("snapshot written",
		"record_type", rt.Name, "id", rec.ID, "version", alloc.To, "trigger", string(trigger))
	return snap, nil
}

// persistErr keeps duplicate-version errors as they are and classifies every
// other write failure as a versioning failure
func persistErr(step string, err error) error {
	if errors.Is(err, errclass.ErrDuplicateVersion) {
		return err
	}
	return errclass.ErrVersioningFailure.WithMessage(step).Wrap(err)
}

func (e *Engine) fail(rec *models.Record, trigger models.Trigger, version int, err error) error {
	code := errclass.Code(err)
	e.metrics.ObserveError(rec.Type, code)
	e.logger.Error("versioning failed",
		"record_type", rec.Type, "id", rec.ID, "version", version,
		"trigger", string(trigger), "code", code, "error", err)
	return err
}
