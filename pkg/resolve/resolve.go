// Package resolve decides what to do when the local workspace and the
// remote store disagree about the same field. The default strategy is
// superposition: differing values whose contexts describe different
// facets (method, scale, definition, or non-overlapping timeframes) are
// both retained rather than one being discarded, with a dominant side
// chosen for display only.
package resolve

import (
	"time"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/checksum"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
)

// Strategy names a conflict resolution policy.
type Strategy string

const (
	// StrategyLocalWins always selects the workspace value.
	StrategyLocalWins Strategy = "local-wins"
	// StrategyRemoteWins always selects the remote value.
	StrategyRemoteWins Strategy = "remote-wins"
	// StrategyNewestWins selects whichever context was captured later.
	StrategyNewestWins Strategy = "newest-wins"
	// StrategySuperposition retains contextually distinct values side by
	// side. This is the default.
	StrategySuperposition Strategy = "superposition"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyLocalWins, StrategyRemoteWins, StrategyNewestWins, StrategySuperposition:
		return true
	}
	return false
}

// Stable reason categories surfaced on Conflict.Reason.
const (
	ReasonIdenticalChecksum = "identical-checksum"
	ReasonStrategyFixed     = "strategy-fixed-side"
	ReasonNewerTimestamp    = "newer-timestamp"
	ReasonNewestTieRemote   = "newest-tie-remote" // exact tie: remote is the last reconciled external truth
	ReasonContextsDiverge   = "contexts-diverge"
	ReasonAuthorityOverride = "authority-override"
)

// DefaultAuthorityRanking is the ascending authority order used for
// tie-breaks when contexts are compatible despite differing values. It is
// a default policy, not physics: override it per resolver with
// WithAuthorityRanking.
var DefaultAuthorityRanking = map[record.Method]int{
	record.MethodUnknown:    0,
	record.MethodDeclared:   1,
	record.MethodInferred:   1,
	record.MethodDerived:    1,
	record.MethodMeasured:   2,
	record.MethodAggregated: 3,
}

// Input is one side of a comparison: a value and the context under which
// it was asserted.
type Input struct {
	Value   any
	Context *record.Context
}

// Resolver reconciles a local and a remote value for one field.
type Resolver struct {
	authority map[record.Method]int
	viewScale string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAuthorityRanking replaces the method authority ordering.
func WithAuthorityRanking(ranking map[record.Method]int) Option {
	return func(r *Resolver) {
		if len(ranking) > 0 {
			r.authority = ranking
		}
	}
}

// WithViewScale sets the view's context filter: when a superposed cell is
// built, an alternative matching this scale is preferred as dominant.
func WithViewScale(scale string) Option {
	return func(r *Resolver) {
		r.viewScale = scale
	}
}

// New creates a Resolver with the default authority ranking.
func New(opts ...Option) *Resolver {
	r := &Resolver{authority: DefaultAuthorityRanking}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve compares a local and a remote value for entityID/field under
// the given strategy. Both inputs must carry a context; callers with
// nothing better must synthesize record.SystemContext. The result is
// always exactly one of the three outcomes.
func (r *Resolver) Resolve(entityID, field string, local, remote Input, strategy Strategy) (record.Conflict, error) {
	if local.Context == nil {
		return record.Conflict{}, errors.WrapValidationError("local.context", nil, "value context required", errors.ErrMissingContext)
	}
	if remote.Context == nil {
		return record.Conflict{}, errors.WrapValidationError("remote.context", nil, "value context required", errors.ErrMissingContext)
	}
	if !strategy.Valid() {
		return record.Conflict{}, errors.NewValidationError("strategy", strategy, "unknown strategy")
	}

	c := record.Conflict{
		EntityID:      entityID,
		Field:         field,
		LocalValue:    local.Value,
		LocalContext:  local.Context,
		RemoteValue:   remote.Value,
		RemoteContext: remote.Context,
		Strategy:      string(strategy),
	}

	if checksum.Equal(local.Value, remote.Value) {
		c.Outcome = record.OutcomeNone
		c.Winner = record.SideNone
		c.Reason = ReasonIdenticalChecksum
		return c, nil
	}

	switch strategy {
	case StrategyLocalWins:
		c.Outcome = record.OutcomeOverride
		c.Winner = record.SideLocal
		c.Reason = ReasonStrategyFixed
	case StrategyRemoteWins:
		c.Outcome = record.OutcomeOverride
		c.Winner = record.SideRemote
		c.Reason = ReasonStrategyFixed
	case StrategyNewestWins:
		c.Outcome = record.OutcomeOverride
		c.Winner, c.Reason = newestSide(local.Context, remote.Context)
	case StrategySuperposition:
		r.superpose(&c, local, remote)
	}

	return c, nil
}

// newestSide picks the side with the later capture timestamp. Exact ties
// break toward remote, which represents the last reconciled external
// truth.
func newestSide(local, remote *record.Context) (record.Side, string) {
	switch {
	case local.CapturedAt.After(remote.CapturedAt):
		return record.SideLocal, ReasonNewerTimestamp
	case remote.CapturedAt.After(local.CapturedAt):
		return record.SideRemote, ReasonNewerTimestamp
	default:
		return record.SideRemote, ReasonNewestTieRemote
	}
}

// superpose applies the default policy: retain both values only when the
// contexts genuinely describe different facets; otherwise override toward
// the higher-authority method.
func (r *Resolver) superpose(c *record.Conflict, local, remote Input) {
	if local.Context.CompatibleWith(remote.Context) {
		// Same facet, different value: one of them supersedes.
		c.Outcome = record.OutcomeOverride
		c.Reason = ReasonAuthorityOverride
		localRank := r.authority[local.Context.Method]
		remoteRank := r.authority[remote.Context.Method]
		switch {
		case localRank > remoteRank:
			c.Winner = record.SideLocal
		case remoteRank > localRank:
			c.Winner = record.SideRemote
		default:
			// Equal authority falls back to recency.
			c.Winner, c.Reason = newestSide(local.Context, remote.Context)
		}
		return
	}

	c.Outcome = record.OutcomeSuperposed
	c.Reason = ReasonContextsDiverge
	c.Winner = r.dominantSide(local, remote)
}

// dominantSide chooses the display-only dominant value of a superposed
// pair: the view's scale filter first, then the more recent capture, then
// the authority ranking. The non-dominant value is never discarded.
func (r *Resolver) dominantSide(local, remote Input) record.Side {
	if r.viewScale != "" {
		localMatch := local.Context.Scale == r.viewScale
		remoteMatch := remote.Context.Scale == r.viewScale
		if localMatch != remoteMatch {
			if localMatch {
				return record.SideLocal
			}
			return record.SideRemote
		}
	}

	if !local.Context.CapturedAt.Equal(remote.Context.CapturedAt) {
		if local.Context.CapturedAt.After(remote.Context.CapturedAt) {
			return record.SideLocal
		}
		return record.SideRemote
	}

	if r.authority[local.Context.Method] > r.authority[remote.Context.Method] {
		return record.SideLocal
	}
	return record.SideRemote
}

// Cell builds the multi-valued cell persisted for a superposed conflict.
// The dominant index follows the conflict's winner side.
func Cell(c *record.Conflict) *record.SuperposedValue {
	cell := &record.SuperposedValue{
		Alternatives: []record.Alternative{
			{Value: c.LocalValue, Context: c.LocalContext},
			{Value: c.RemoteValue, Context: c.RemoteContext},
		},
	}
	if c.Winner == record.SideRemote {
		cell.Dominant = 1
	}
	return cell
}

// ContextFromRecordTime synthesizes a minimal context for values whose
// provenance is unknown, stamped at the given instant.
func ContextFromRecordTime(at time.Time) *record.Context {
	return record.SystemContext(at)
}
