package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
)

func ctxAt(method record.Method, scale string, at time.Time) *record.Context {
	return &record.Context{Method: method, Scale: scale, CapturedAt: at}
}

func TestMissingContextRejected(t *testing.T) {
	r := New()
	now := time.Now()

	_, err := r.Resolve("e1", "status",
		Input{Value: "a"},
		Input{Value: "b", Context: ctxAt(record.MethodDeclared, "", now)},
		StrategySuperposition)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.ErrorIs(t, err, errors.ErrMissingContext)

	_, err = r.Resolve("e1", "status",
		Input{Value: "a", Context: ctxAt(record.MethodDeclared, "", now)},
		Input{Value: "b"},
		StrategySuperposition)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.ErrorIs(t, err, errors.ErrMissingContext)
}

func TestEqualChecksumsAreNotAConflict(t *testing.T) {
	r := New()
	now := time.Now()

	// Contexts differ wildly; identical values end it there.
	c, err := r.Resolve("e1", "status",
		Input{Value: map[string]any{"x": 1, "y": 2}, Context: ctxAt(record.MethodDeclared, "individual", now)},
		Input{Value: map[string]any{"y": 2, "x": 1}, Context: ctxAt(record.MethodAggregated, "org", now.Add(time.Hour))},
		StrategySuperposition)
	require.NoError(t, err)
	assert.Equal(t, record.OutcomeNone, c.Outcome)
	assert.Equal(t, ReasonIdenticalChecksum, c.Reason)
}

func TestFixedSideStrategies(t *testing.T) {
	r := New()
	now := time.Now()
	local := Input{Value: "a", Context: ctxAt(record.MethodDeclared, "", now)}
	remote := Input{Value: "b", Context: ctxAt(record.MethodDeclared, "", now)}

	c, err := r.Resolve("e1", "f", local, remote, StrategyLocalWins)
	require.NoError(t, err)
	assert.Equal(t, record.OutcomeOverride, c.Outcome)
	assert.Equal(t, record.SideLocal, c.Winner)

	c, err = r.Resolve("e1", "f", local, remote, StrategyRemoteWins)
	require.NoError(t, err)
	assert.Equal(t, record.OutcomeOverride, c.Outcome)
	assert.Equal(t, record.SideRemote, c.Winner)
}

func TestNewestWins(t *testing.T) {
	r := New()
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	c, err := r.Resolve("e1", "f",
		Input{Value: "a", Context: ctxAt(record.MethodDeclared, "", t2)},
		Input{Value: "b", Context: ctxAt(record.MethodDeclared, "", t1)},
		StrategyNewestWins)
	require.NoError(t, err)
	assert.Equal(t, record.SideLocal, c.Winner)
	assert.Equal(t, ReasonNewerTimestamp, c.Reason)

	// Exact tie breaks remote.
	c, err = r.Resolve("e1", "f",
		Input{Value: "a", Context: ctxAt(record.MethodDeclared, "", t1)},
		Input{Value: "b", Context: ctxAt(record.MethodDeclared, "", t1)},
		StrategyNewestWins)
	require.NoError(t, err)
	assert.Equal(t, record.SideRemote, c.Winner)
	assert.Equal(t, ReasonNewestTieRemote, c.Reason)
}

func TestSuperpositionWithDivergentContexts(t *testing.T) {
	// Local declared/individual at T1, remote measured/team at T2 > T1:
	// divergent contexts, so both values survive.
	r := New()
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	c, err := r.Resolve("rec_1", "status",
		Input{Value: "Complete", Context: ctxAt(record.MethodDeclared, "individual", t1)},
		Input{Value: "In Progress", Context: ctxAt(record.MethodMeasured, "team", t2)},
		StrategySuperposition)
	require.NoError(t, err)

	assert.Equal(t, record.OutcomeSuperposed, c.Outcome)
	assert.Equal(t, ReasonContextsDiverge, c.Reason)
	assert.Equal(t, record.SideRemote, c.Winner, "newer timestamp and measured > declared")

	cell := Cell(&c)
	require.Len(t, cell.Alternatives, 2)
	assert.Equal(t, "In Progress", cell.DominantValue())
	assert.Equal(t, "Complete", cell.Alternatives[0].Value, "non-dominant value retained")
}

func TestSuperpositionViewScalePreference(t *testing.T) {
	r := New(WithViewScale("individual"))
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	c, err := r.Resolve("rec_1", "status",
		Input{Value: "Complete", Context: ctxAt(record.MethodDeclared, "individual", t1)},
		Input{Value: "In Progress", Context: ctxAt(record.MethodMeasured, "team", t2)},
		StrategySuperposition)
	require.NoError(t, err)

	assert.Equal(t, record.OutcomeSuperposed, c.Outcome)
	assert.Equal(t, record.SideLocal, c.Winner, "view context filter outranks recency")
	assert.Equal(t, "Complete", Cell(&c).DominantValue())
}

func TestCompatibleContextsOverrideByAuthority(t *testing.T) {
	r := New()
	now := time.Now()

	// Same method, same scale, differing values: measured beats declared
	// is irrelevant here (same method), so recency decides.
	c, err := r.Resolve("e1", "f",
		Input{Value: "a", Context: ctxAt(record.MethodMeasured, "team", now.Add(time.Minute))},
		Input{Value: "b", Context: ctxAt(record.MethodMeasured, "team", now)},
		StrategySuperposition)
	require.NoError(t, err)
	assert.Equal(t, record.OutcomeOverride, c.Outcome)
	assert.Equal(t, record.SideLocal, c.Winner)

	// Unknown-method local vs measured remote in the same scale: contexts
	// are compatible (unknown matches anything) and measured has higher
	// authority.
	c, err = r.Resolve("e1", "f",
		Input{Value: "a", Context: ctxAt(record.MethodUnknown, "team", now.Add(time.Hour))},
		Input{Value: "b", Context: ctxAt(record.MethodMeasured, "team", now)},
		StrategySuperposition)
	require.NoError(t, err)
	assert.Equal(t, record.OutcomeOverride, c.Outcome)
	assert.Equal(t, ReasonAuthorityOverride, c.Reason)
	assert.Equal(t, record.SideRemote, c.Winner)
}

func TestCustomAuthorityRanking(t *testing.T) {
	// Invert the default: declared outranks everything.
	r := New(WithAuthorityRanking(map[record.Method]int{
		record.MethodDeclared:   10,
		record.MethodMeasured:   2,
		record.MethodAggregated: 3,
	}))
	now := time.Now()

	// Local provenance was lost; remote is declared. Under the custom
	// ranking the declared remote supersedes despite the newer local
	// capture time.
	c, err := r.Resolve("e1", "f",
		Input{Value: "a", Context: ctxAt(record.MethodUnknown, "team", now.Add(time.Hour))},
		Input{Value: "b", Context: ctxAt(record.MethodDeclared, "team", now)},
		StrategySuperposition)
	require.NoError(t, err)
	assert.Equal(t, record.OutcomeOverride, c.Outcome)
	assert.Equal(t, ReasonAuthorityOverride, c.Reason)
	assert.Equal(t, record.SideRemote, c.Winner)
}

func TestResolutionTotality(t *testing.T) {
	r := New()
	now := time.Now()
	methods := []record.Method{record.MethodDeclared, record.MethodMeasured, record.MethodAggregated, record.MethodInferred, record.MethodDerived, record.MethodUnknown}
	strategies := []Strategy{StrategyLocalWins, StrategyRemoteWins, StrategyNewestWins, StrategySuperposition}

	for _, lm := range methods {
		for _, rm := range methods {
			for _, s := range strategies {
				c, err := r.Resolve("e1", "f",
					Input{Value: "a", Context: ctxAt(lm, "team", now)},
					Input{Value: "b", Context: ctxAt(rm, "org", now.Add(time.Second))},
					s)
				require.NoError(t, err)
				switch c.Outcome {
				case record.OutcomeNone, record.OutcomeOverride, record.OutcomeSuperposed:
				default:
					t.Fatalf("unexpected outcome %q for %s/%s/%s", c.Outcome, lm, rm, s)
				}
			}
		}
	}
}

func TestUnknownStrategyRejected(t *testing.T) {
	r := New()
	now := time.Now()
	_, err := r.Resolve("e1", "f",
		Input{Value: "a", Context: ctxAt(record.MethodDeclared, "", now)},
		Input{Value: "b", Context: ctxAt(record.MethodDeclared, "", now)},
		Strategy("last-writer-wins"))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
