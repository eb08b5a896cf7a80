// Package rewind reconstructs past entity states from the activity log
// and restores them. Restoration goes through the change tracker, so a
// rewind is itself an undoable change like any other edit.
package rewind

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/activity"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/checksum"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/logging"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/ring"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/tracker"
)

// DefaultPreviewCache bounds the number of reconstructed states kept
// around for repeated previews of the same instant.
const DefaultPreviewCache = 64

// Workspace is the local entity store a rewind writes restored values
// into. *syncer.MemWorkspace satisfies it.
type Workspace interface {
	Entities(ctx context.Context) (map[string]map[string]any, error)
	// Apply sets fields on an entity; a nil value removes the field.
	Apply(ctx context.Context, entityID string, values map[string]any) error
	Remove(ctx context.Context, entityID string) error
}

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Log       activity.Querier
	Tracker   *tracker.Tracker
	Workspace Workspace
}

// Engine folds an entity's change history into point-in-time states and
// applies them back. At most one rewind may be in flight per entity; the
// rewinding gauge lets callers refuse overlapping operations globally.
type Engine struct {
	deps   Deps
	logger *zerolog.Logger
	now    func() time.Time

	rewinding atomic.Int32

	mu      sync.Mutex
	latches map[string]struct{}

	cacheMu  sync.Mutex
	cache    map[string]record.Snapshot
	cacheLRU *ring.Deque[string]
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source used for future-timestamp checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithPreviewCache sets the preview cache capacity.
func WithPreviewCache(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cacheLRU = ring.New[string](n)
		}
	}
}

// New creates an Engine.
func New(deps Deps, opts ...Option) (*Engine, error) {
	if deps.Log == nil || deps.Tracker == nil || deps.Workspace == nil {
		return nil, errors.NewConfigError("rewind", "log, tracker and workspace are required", nil)
	}
	e := &Engine{
		deps:     deps,
		logger:   logging.Default(),
		now:      time.Now,
		latches:  make(map[string]struct{}),
		cache:    make(map[string]record.Snapshot),
		cacheLRU: ring.New[string](DefaultPreviewCache),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// IsRewinding reports whether any rewind operation is in flight.
func (e *Engine) IsRewinding() bool {
	return e.rewinding.Load() > 0
}

// acquire takes the per-entity latch, or fails with ErrBusy when a
// rewind for the entity is already in flight.
func (e *Engine) acquire(entityID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, held := e.latches[entityID]; held {
		return errors.NewRewindError(entityID, "rewind already in flight", errors.ErrBusy)
	}
	e.latches[entityID] = struct{}{}
	e.rewinding.Add(1)
	return nil
}

func (e *Engine) release(entityID string) {
	e.mu.Lock()
	delete(e.latches, entityID)
	e.mu.Unlock()
	e.rewinding.Add(-1)
}

// Event is one timeline entry: enough to render what changed, by whom
// and when, without reconstructing full states.
type Event struct {
	RecordID string        `json:"record_id"`
	At       time.Time     `json:"at"`
	Action   record.Action `json:"action"`
	Fields   []string      `json:"fields,omitempty"`
	Agent    record.Agent  `json:"agent"`
}

// Timeline returns the entity's change history, newest first. A limit of
// zero returns everything.
func (e *Engine) Timeline(ctx context.Context, entityID string, limit int) ([]Event, error) {
	if entityID == "" {
		return nil, errors.NewValidationError("entityID", entityID, "must not be empty")
	}
	recs, err := e.deps.Log.Records(ctx, activity.Query{EntityID: entityID})
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		events = append(events, toEvent(recs[i]))
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

func toEvent(rec record.ChangeRecord) Event {
	ev := Event{
		RecordID: rec.ID,
		At:       rec.CreatedAt,
		Action:   rec.Action,
		Agent:    rec.Agent,
	}
	if rec.Field != "" {
		ev.Fields = []string{rec.Field}
		return ev
	}
	for f := range rec.After {
		ev.Fields = append(ev.Fields, f)
	}
	sort.Strings(ev.Fields)
	return ev
}

// PreviewAt reconstructs the entity's state as of the given instant by
// folding its change records oldest-first. The result is cached per
// (entity, instant); nothing is mutated.
func (e *Engine) PreviewAt(ctx context.Context, entityID string, at time.Time) (record.Snapshot, error) {
	if entityID == "" {
		return record.Snapshot{}, errors.NewValidationError("entityID", entityID, "must not be empty")
	}

	key := entityID + "|" + at.UTC().Format(time.RFC3339Nano)
	e.cacheMu.Lock()
	if snap, hit := e.cache[key]; hit {
		e.cacheMu.Unlock()
		return snap, nil
	}
	e.cacheMu.Unlock()

	snap, err := e.fold(ctx, entityID, at)
	if err != nil {
		return record.Snapshot{}, err
	}

	e.cacheMu.Lock()
	if evictedKey, evicted := e.cacheLRU.PushBack(key); evicted {
		delete(e.cache, evictedKey)
	}
	e.cache[key] = snap
	e.cacheMu.Unlock()

	return snap, nil
}

// fold replays the entity's records up to and including at. Records are
// deduplicated by id to tolerate at-least-once delivery into the log.
func (e *Engine) fold(ctx context.Context, entityID string, at time.Time) (record.Snapshot, error) {
	recs, err := e.deps.Log.Records(ctx, activity.Query{EntityID: entityID, End: at})
	if err != nil {
		return record.Snapshot{}, err
	}
	if len(recs) == 0 {
		return record.Snapshot{}, errors.NewRewindError(entityID, "no state recorded at or before target time", errors.ErrNoSnapshot)
	}

	snap := record.Snapshot{EntityID: entityID, At: at}
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		snap.RecordID = rec.ID

		if rec.Action == record.ActionDelete {
			snap.Values = nil
			continue
		}

		if rec.Field != "" {
			if snap.Values == nil {
				snap.Values = make(map[string]any)
			}
			if v, ok := rec.After[rec.Field]; ok {
				snap.Values[rec.Field] = v
			} else {
				delete(snap.Values, rec.Field)
			}
			continue
		}

		// Entity-scoped record: the after image replaces the state.
		if rec.After == nil {
			snap.Values = nil
			continue
		}
		snap.Values = make(map[string]any, len(rec.After))
		for k, v := range rec.After {
			snap.Values[k] = v
		}
	}
	return snap, nil
}

// Options controls a RewindTo call.
type Options struct {
	// Validate rejects rewinds to a future instant, rewinds of an entity
	// with unreconciled edits, and targets with no recorded state.
	Validate bool
	// Preview computes the outcome without applying it and without
	// holding the entity latch beyond the computation.
	Preview bool
}

// Outcome is the result of a rewind operation.
type Outcome struct {
	EntityID string
	At       time.Time
	// Target is the reconstructed state the entity is (or would be)
	// restored to. Nil Values means the entity did not exist then.
	Target record.Snapshot
	// Current is the entity's state before the rewind.
	Current map[string]any
	// Changes is the field-level difference from Current to Target.
	Changes []checksum.FieldChange
	// Applied is false for previews and for no-op rewinds.
	Applied bool
	// Record is the rewind change record, set when Applied.
	Record *record.ChangeRecord
}

// RewindTo restores the entity to its state at the given instant. The
// restoration is tracked as an ordinary change: its before image is the
// state captured here, so the rewind can be undone. A failure during
// apply restores nothing automatically; the captured record is the
// recovery path.
func (e *Engine) RewindTo(ctx context.Context, entityID string, at time.Time, opts Options) (*Outcome, error) {
	if entityID == "" {
		return nil, errors.NewValidationError("entityID", entityID, "must not be empty")
	}
	if err := e.acquire(entityID); err != nil {
		return nil, err
	}
	defer e.release(entityID)

	if opts.Validate {
		if at.After(e.now()) {
			return nil, errors.NewRewindError(entityID, "cannot rewind to future state", errors.ErrFutureTimestamp)
		}
		if e.deps.Tracker.IsDirty(entityID) {
			return nil, errors.NewRewindError(entityID, "entity has unreconciled edits", errors.ErrDirtyEntity)
		}
	}

	target, err := e.PreviewAt(ctx, entityID, at)
	if err != nil {
		return nil, err
	}

	entities, err := e.deps.Workspace.Entities(ctx)
	if err != nil {
		return nil, err
	}
	current := entities[entityID]

	out := &Outcome{
		EntityID: entityID,
		At:       at,
		Target:   target,
		Current:  current,
		Changes:  checksum.DiffFields(current, target.Values),
	}
	if opts.Preview || len(out.Changes) == 0 {
		return out, nil
	}

	rec, err := e.deps.Tracker.Track(ctx, "entity", entityID, record.ActionRewind,
		current, target.Values, "")
	if err != nil {
		return nil, err
	}

	if target.Values == nil {
		err = e.deps.Workspace.Remove(ctx, entityID)
	} else {
		err = e.deps.Workspace.Apply(ctx, entityID, restoreValues(current, target.Values))
	}
	if err != nil {
		// The pre-capture record exists; surface the fault rather than
		// attempt a second mutation.
		return nil, errors.NewRewindError(entityID, "apply failed after state capture", err)
	}

	out.Applied = true
	out.Record = &rec
	e.logger.Info().
		Str("entity", entityID).
		Time("to", at).
		Int("fields", len(out.Changes)).
		Msg("entity rewound")
	return out, nil
}

// ApplyPreview re-runs a previously previewed rewind for real.
func (e *Engine) ApplyPreview(ctx context.Context, entityID string, at time.Time) (*Outcome, error) {
	return e.RewindTo(ctx, entityID, at, Options{Validate: true})
}

// restoreValues builds the Apply payload that turns current into target:
// target's fields plus a nil tombstone for every current field target
// lacks.
func restoreValues(current, target map[string]any) map[string]any {
	values := make(map[string]any, len(target)+len(current))
	for k, v := range target {
		values[k] = v
	}
	for k := range current {
		if _, keep := target[k]; !keep {
			values[k] = nil
		}
	}
	return values
}

// CompareStates returns the field-level difference between the entity's
// states at two instants.
func (e *Engine) CompareStates(ctx context.Context, entityID string, t1, t2 time.Time) ([]checksum.FieldChange, error) {
	from, err := e.PreviewAt(ctx, entityID, t1)
	if err != nil {
		return nil, err
	}
	to, err := e.PreviewAt(ctx, entityID, t2)
	if err != nil {
		return nil, err
	}
	return checksum.DiffFields(from.Values, to.Values), nil
}
