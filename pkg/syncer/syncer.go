// Package syncer drives full reconciliation passes between the local
// workspace and the remote tabular store. A pass is a single-flight state
// machine (Idle, Fetching, Diffing, Resolving, Applying, Logging); a
// request arriving while one is in flight is rejected with ErrBusy rather
// than queued. Once a pass is past Fetching it runs to completion or
// failure, never cancelled mid-apply.
package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/activity"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/checksum"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/identity"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/logging"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/remote"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/resolve"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/tracker"
)

// Direction gates which side receives writes during Applying.
type Direction string

const (
	// Bidirectional writes both sides.
	Bidirectional Direction = "bidirectional"
	// RemoteToLocal only applies remote changes to the workspace.
	RemoteToLocal Direction = "remote-to-local"
	// LocalToRemote only pushes workspace changes to the remote store.
	LocalToRemote Direction = "local-to-remote"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case Bidirectional, RemoteToLocal, LocalToRemote:
		return true
	}
	return false
}

const (
	// DefaultInterval is the scheduled pass interval.
	DefaultInterval = 30 * time.Second
	// MinInterval is the enforced floor on the pass interval.
	MinInterval = 10 * time.Second
)

// ContextFn synthesizes a provenance context for a value observed at the
// given instant.
type ContextFn func(entityID, field string, value any, at time.Time) *record.Context

// Deps are the collaborators an Orchestrator is built from. All are
// required except Identity, which defaults to the system agent.
type Deps struct {
	Workspace Workspace
	Store     remote.Store
	Table     string
	Tracker   *tracker.Tracker
	Resolver  *resolve.Resolver
	Log       activity.Appender
	Identity  identity.Resolver
}

// Orchestrator runs reconciliation passes. Construct with New and pass by
// handle; there is no ambient shared instance.
type Orchestrator struct {
	deps     Deps
	strategy resolve.Strategy
	dir      Direction
	interval time.Duration
	logger   *zerolog.Logger
	now      func() time.Time

	remoteCtx ContextFn

	running atomic.Bool
	phase   atomic.Value // Phase

	mu         sync.Mutex
	baseline   map[string]map[string]any // last reconciled local values
	remoteSums map[string]uint64         // last-known remote checksum per entity
	lastResult *Result
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStrategy sets the conflict strategy (default superposition).
func WithStrategy(s resolve.Strategy) Option {
	return func(o *Orchestrator) {
		if s.Valid() {
			o.strategy = s
		}
	}
}

// WithDirection sets the sync direction (default bidirectional).
func WithDirection(d Direction) Option {
	return func(o *Orchestrator) {
		if d.Valid() {
			o.dir = d
		}
	}
}

// WithInterval sets the scheduled pass interval, clamped to MinInterval.
func WithInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d < MinInterval {
			d = MinInterval
		}
		o.interval = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithRemoteContext sets how provenance contexts are synthesized for
// fetched remote values. The default is the system context stamped at
// fetch time.
func WithRemoteContext(fn ContextFn) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.remoteCtx = fn
		}
	}
}

// New creates an Orchestrator.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Workspace == nil || deps.Store == nil || deps.Tracker == nil || deps.Resolver == nil || deps.Log == nil {
		return nil, errors.NewConfigError("syncer", "workspace, store, tracker, resolver and log are required", nil)
	}
	if deps.Identity == nil {
		deps.Identity = identity.System()
	}
	deps.Identity = identity.Fallback(deps.Identity)

	o := &Orchestrator{
		deps:       deps,
		strategy:   resolve.StrategySuperposition,
		dir:        Bidirectional,
		interval:   DefaultInterval,
		logger:     logging.Default(),
		now:        time.Now,
		baseline:   make(map[string]map[string]any),
		remoteSums: make(map[string]uint64),
	}
	o.remoteCtx = func(_, _ string, _ any, at time.Time) *record.Context {
		return record.SystemContext(at)
	}
	o.phase.Store(PhaseIdle)

	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Status returns the current phase and the last completed result.
func (o *Orchestrator) Status() (Phase, *Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase.Load().(Phase), o.lastResult
}

// Sync runs one full reconciliation pass. A pass already in flight makes
// this return ErrBusy immediately.
func (o *Orchestrator) Sync(ctx context.Context) (*Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, errors.ErrBusy
	}

	res := &Result{
		StartedAt:      o.now(),
		PhaseDurations: make(map[Phase]time.Duration),
	}
	defer func() {
		// An aborted pass stays visible as failed until the next one.
		if res.Failed() {
			o.phase.Store(PhaseFailed)
		} else {
			o.phase.Store(PhaseIdle)
		}
		o.running.Store(false)
	}()
	defer func() {
		res.Duration = o.now().Sub(res.StartedAt)
		o.mu.Lock()
		o.lastResult = res
		o.mu.Unlock()
	}()

	pass := &passState{}

	steps := []struct {
		phase Phase
		run   func(context.Context, *Result, *passState) error
	}{
		{PhaseFetching, o.fetch},
		{PhaseDiffing, o.diff},
		{PhaseResolving, o.resolveAll},
		{PhaseApplying, o.apply},
		{PhaseLogging, o.logPass},
	}

	for _, step := range steps {
		o.phase.Store(step.phase)
		start := o.now()
		err := step.run(ctx, res, pass)
		res.PhaseDurations[step.phase] = o.now().Sub(start)
		if err != nil {
			res.FailedPhase = step.phase
			res.Err = err
			o.logger.Error().
				Err(err).
				Str("phase", string(step.phase)).
				Msg("sync pass aborted")
			return res, errors.NewSyncError(string(step.phase), pass.entityIDs(), err)
		}
	}

	o.logger.Info().
		Int("entities", res.EntitiesDiffed).
		Int("conflicts", res.Conflicts).
		Int("superposed", res.Superposed).
		Int("applied_local", res.AppliedLocal).
		Int("applied_remote", res.AppliedRemote).
		Dur("took", res.Duration).
		Msg("sync pass complete")

	return res, nil
}

// passState carries one pass's working data between phases.
type passState struct {
	local    map[string]map[string]any
	remoteV  map[string]map[string]any
	fetched  map[string]time.Time // per-entity fetch time
	plans    []*entityPlan
	deleted  []string // entities to remove locally (remote row gone, local clean)
	rewrites []string // entities to re-push remotely (remote row gone, local dirty)
	dropped  []string // entities to delete remotely (local copy gone)
}

func (p *passState) entityIDs() []string {
	ids := make([]string, 0, len(p.plans))
	for _, plan := range p.plans {
		ids = append(ids, plan.id)
	}
	ids = append(ids, p.deleted...)
	ids = append(ids, p.rewrites...)
	ids = append(ids, p.dropped...)
	return ids
}

// entityPlan is the per-entity merge plan built by Diffing/Resolving.
type entityPlan struct {
	id          string
	base        map[string]any
	localDiff   []checksum.FieldChange
	remoteDiff  []checksum.FieldChange
	applyLocal  map[string]any
	applyRemote map[string]any
	conflicts   []record.Conflict
}
