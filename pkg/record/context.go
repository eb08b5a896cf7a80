package record

import (
	"math"
	"time"
)

// Method describes how a value was obtained. The declared/measured/
// aggregated ordering doubles as the default authority ranking used by
// conflict resolution tie-breaks; see pkg/resolve.
type Method string

const (
	// MethodDeclared means someone asserted the value directly.
	MethodDeclared Method = "declared"
	// MethodMeasured means the value was observed or instrumented.
	MethodMeasured Method = "measured"
	// MethodAggregated means the value was computed over a population.
	MethodAggregated Method = "aggregated"
	// MethodInferred means the value was deduced from other facts.
	MethodInferred Method = "inferred"
	// MethodDerived means the value was calculated from other fields.
	MethodDerived Method = "derived"
	// MethodUnknown is the synthesized fallback when provenance is lost.
	MethodUnknown Method = "unknown"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodDeclared, MethodMeasured, MethodAggregated, MethodInferred, MethodDerived, MethodUnknown:
		return true
	}
	return false
}

// Timeframe is the interval a value claims to describe. A zero End means
// open-ended.
type Timeframe struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// IsZero reports whether the timeframe carries no information.
func (tf Timeframe) IsZero() bool {
	return tf.Start.IsZero() && tf.End.IsZero()
}

// Overlaps reports whether two timeframes intersect. A timeframe with no
// information overlaps everything: absence of a claim is not a disagreement.
func (tf Timeframe) Overlaps(other Timeframe) bool {
	if tf.IsZero() || other.IsZero() {
		return true
	}
	aStart, aEnd := tf.bounds()
	bStart, bEnd := other.bounds()
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}

func (tf Timeframe) bounds() (time.Time, time.Time) {
	start := tf.Start
	end := tf.End
	if end.IsZero() {
		// Open-ended: extend far enough that any realistic instant falls
		// inside.
		end = time.Unix(math.MaxInt64/int64(time.Second), 0)
	}
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	return start, end
}

// Context is the provenance attached to a value: how it was obtained, at
// what organizational scale it applies, and when it was captured. Two
// differing values with incompatible contexts are facets, not
// contradictions; that distinction drives superposition.
type Context struct {
	Method     Method    `json:"method"`
	Scale      string    `json:"scale,omitempty"`      // e.g. "individual", "team", "org"
	Definition string    `json:"definition,omitempty"` // which definition of the field applies
	Timeframe  Timeframe `json:"timeframe,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	Agent      Agent     `json:"agent"`
}

// SystemContext synthesizes the "unknown/system/now" context callers are
// required to supply when they have nothing better.
func SystemContext(now time.Time) *Context {
	return &Context{
		Method:     MethodUnknown,
		CapturedAt: now,
		Agent:      SystemAgent,
	}
}

// CompatibleWith reports whether two contexts describe the same facet of
// reality. Contexts diverge when they differ along method, scale, or
// definition, or when their timeframes do not overlap.
func (c *Context) CompatibleWith(other *Context) bool {
	if c == nil || other == nil {
		return true
	}
	if c.Method != other.Method && c.Method != MethodUnknown && other.Method != MethodUnknown {
		return false
	}
	if c.Scale != other.Scale && c.Scale != "" && other.Scale != "" {
		return false
	}
	if c.Definition != other.Definition && c.Definition != "" && other.Definition != "" {
		return false
	}
	if !c.Timeframe.Overlaps(other.Timeframe) {
		return false
	}
	return true
}
