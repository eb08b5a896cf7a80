package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/activity"
	eoserrors "github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/identity"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/logging"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/remote"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/resolve"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/tracker"
)

const testTable = "contacts"

type fixture struct {
	ws    *MemWorkspace
	store *remote.MemStore
	tr    *tracker.Tracker
	log   *activity.MemLog
	orch  *Orchestrator
	now   time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		ws:    NewMemWorkspace(),
		store: remote.NewMemStore(),
		log:   activity.NewMemLog(),
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.tr = tracker.New(f.log, identity.System(),
		tracker.WithLogger(logging.NewNopLogger()),
		tracker.WithBatchDelay(time.Hour),
		tracker.WithClock(func() time.Time { return f.now }))
	t.Cleanup(func() { _ = f.tr.Close(context.Background()) })

	opts = append([]Option{
		WithLogger(logging.NewNopLogger()),
		WithClock(func() time.Time { return f.now }),
	}, opts...)

	orch, err := New(Deps{
		Workspace: f.ws,
		Store:     f.store,
		Table:     testTable,
		Tracker:   f.tr,
		Resolver:  resolve.New(),
		Log:       f.log,
		Identity:  identity.Static(record.Agent{ID: "u_1", Name: "alice", Kind: "user"}),
	}, opts...)
	require.NoError(t, err)
	f.orch = orch
	return f
}

// seedBoth puts identical values on both sides and runs one pass so the
// orchestrator has a baseline to diff against.
func (f *fixture) seedBoth(t *testing.T, id string, values map[string]any) {
	t.Helper()
	f.ws.Set(id, values)
	f.store.Seed(testTable, remote.Record{ID: id, Values: values, FetchedAt: f.now})
	res, err := f.orch.Sync(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.Conflicts)
}

// edit applies a local change through both the workspace and the tracker,
// the way an application would.
func (f *fixture) edit(t *testing.T, id, field string, before, after any) {
	t.Helper()
	values, _ := f.ws.Get(id)
	if values == nil {
		values = map[string]any{}
	}
	if after == nil {
		delete(values, field)
	} else {
		values[field] = after
	}
	f.ws.Set(id, values)
	_, err := f.tr.Track(context.Background(), "contact", id, record.ActionUpdate,
		map[string]any{field: before}, map[string]any{field: after}, field)
	require.NoError(t, err)
}

func syncRecords(t *testing.T, log *activity.MemLog, entityID string) []record.ChangeRecord {
	t.Helper()
	recs, err := log.Records(context.Background(), activity.Query{
		EntityID: entityID,
		Action:   record.ActionSync,
	})
	require.NoError(t, err)
	return recs
}

func TestSyncCarriesOneSidedChanges(t *testing.T) {
	f := newFixture(t)
	f.seedBoth(t, "rec_1", map[string]any{"name": "Alice", "score": 10})

	// Local edits name, remote edits score.
	f.now = f.now.Add(time.Minute)
	f.edit(t, "rec_1", "name", "Alice", "Alicia")
	f.store.Seed(testTable, remote.Record{
		ID:        "rec_1",
		Values:    map[string]any{"name": "Alice", "score": 25},
		FetchedAt: f.now,
	})

	res, err := f.orch.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.FieldsCarried)
	assert.Zero(t, res.Conflicts)

	local, ok := f.ws.Get("rec_1")
	require.True(t, ok)
	assert.Equal(t, "Alicia", local["name"])
	assert.Equal(t, 25, local["score"])

	row, ok := f.store.Get(testTable, "rec_1")
	require.True(t, ok)
	assert.Equal(t, "Alicia", row.Values["name"])

	assert.False(t, f.tr.IsDirty("rec_1"))
	assert.Len(t, syncRecords(t, f.log, "rec_1"), 2)
}

func TestSecondPassIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedBoth(t, "rec_1", map[string]any{"name": "Alice"})

	f.now = f.now.Add(time.Minute)
	f.edit(t, "rec_1", "name", "Alice", "Alicia")
	_, err := f.orch.Sync(context.Background())
	require.NoError(t, err)
	logged := len(syncRecords(t, f.log, "rec_1"))

	res, err := f.orch.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Len(t, syncRecords(t, f.log, "rec_1"), logged)
}

func TestEditThenRevertStillClearsDirtyFlag(t *testing.T) {
	f := newFixture(t)
	f.seedBoth(t, "rec_1", map[string]any{"name": "Alice"})

	f.now = f.now.Add(time.Minute)
	f.edit(t, "rec_1", "name", "Alice", "Alicia")
	f.now = f.now.Add(time.Minute)
	f.edit(t, "rec_1", "name", "Alicia", "Alice")
	require.True(t, f.tr.IsDirty("rec_1"))

	res, err := f.orch.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, f.tr.IsDirty("rec_1"), "values equal the baseline, so the flag must clear")
	assert.Equal(t, 1, res.EntitiesCleaned)
	assert.False(t, res.Changed())
	assert.Empty(t, syncRecords(t, f.log, "rec_1"))
}

func TestSyncRejectsWhenBusy(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	started := make(chan struct{})
	f.orch.deps.Workspace = &blockingWorkspace{
		inner:   f.ws,
		started: started,
		release: release,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.orch.Sync(context.Background())
	}()
	<-started

	_, err := f.orch.Sync(context.Background())
	assert.ErrorIs(t, err, eoserrors.ErrBusy)

	phase, _ := f.orch.Status()
	assert.NotEqual(t, PhaseIdle, phase)

	close(release)
	wg.Wait()

	phase, res := f.orch.Status()
	assert.Equal(t, PhaseIdle, phase)
	assert.NotNil(t, res)
}

type blockingWorkspace struct {
	inner   Workspace
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingWorkspace) Entities(ctx context.Context) (map[string]map[string]any, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.inner.Entities(ctx)
}

func (b *blockingWorkspace) Apply(ctx context.Context, id string, v map[string]any) error {
	return b.inner.Apply(ctx, id, v)
}

func (b *blockingWorkspace) Remove(ctx context.Context, id string) error {
	return b.inner.Remove(ctx, id)
}

func TestApplyFailureLeavesDirtyFlags(t *testing.T) {
	f := newFixture(t)
	f.seedBoth(t, "rec_1", map[string]any{"name": "Alice"})

	f.now = f.now.Add(time.Minute)
	f.edit(t, "rec_1", "name", "Alice", "Alicia")
	f.store.FailWrites = errors.New("remote down")

	before := len(syncRecords(t, f.log, "rec_1"))
	res, err := f.orch.Sync(context.Background())
	require.Error(t, err)

	var syncErr *eoserrors.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, string(PhaseApplying), syncErr.Phase)
	assert.Equal(t, PhaseApplying, res.FailedPhase)

	phase, _ := f.orch.Status()
	assert.Equal(t, PhaseFailed, phase)

	// Nothing was logged and the entity stays dirty, so the next pass
	// retries the same change.
	assert.True(t, f.tr.IsDirty("rec_1"))
	assert.Len(t, syncRecords(t, f.log, "rec_1"), before)

	f.store.FailWrites = nil
	_, err = f.orch.Sync(context.Background())
	require.NoError(t, err)
	phase, _ = f.orch.Status()
	assert.Equal(t, PhaseIdle, phase)
	assert.False(t, f.tr.IsDirty("rec_1"))
	row, _ := f.store.Get(testTable, "rec_1")
	assert.Equal(t, "Alicia", row.Values["name"])
}

func TestSuperpositionRoundTrip(t *testing.T) {
	f := newFixture(t, WithRemoteContext(func(_, _ string, _ any, at time.Time) *record.Context {
		return &record.Context{
			Method:     record.MethodMeasured,
			Scale:      "team",
			CapturedAt: at,
			Agent:      record.SystemAgent,
		}
	}))
	f.seedBoth(t, "rec_1", map[string]any{"status": "Open"})

	// Local: declared at individual scale. Remote: measured at team
	// scale, fetched later. Divergent contexts, so both survive.
	f.now = f.now.Add(time.Minute)
	f.edit(t, "rec_1", "status", "Open", "Complete")
	f.ws.SetContext("rec_1", "status", &record.Context{
		Method:     record.MethodDeclared,
		Scale:      "individual",
		CapturedAt: f.now,
		Agent:      record.Agent{ID: "u_1", Kind: "user"},
	})

	f.now = f.now.Add(time.Minute)
	f.store.Seed(testTable, remote.Record{
		ID:        "rec_1",
		Values:    map[string]any{"status": "In Progress"},
		FetchedAt: f.now,
	})

	res, err := f.orch.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.Superposed)

	// Local cell holds both values with the newer remote one dominant.
	local, _ := f.ws.Get("rec_1")
	cell, ok := record.IsSuperposed(local["status"])
	require.True(t, ok)
	require.Len(t, cell.Alternatives, 2)
	assert.Equal(t, "In Progress", cell.DominantValue())

	// Remote gets the collapsed dominant value.
	row, _ := f.store.Get(testTable, "rec_1")
	assert.Equal(t, "In Progress", row.Values["status"])

	recs := syncRecords(t, f.log, "rec_1")
	require.NotEmpty(t, recs)
	last := recs[len(recs)-1]
	require.NotNil(t, last.Resolution)
	assert.Equal(t, record.OutcomeSuperposed, last.Resolution.Outcome)
	assert.True(t, last.Resolution.RemoteCollapsed)

	// The merged state is stable: another pass changes nothing.
	res, err = f.orch.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Changed())
}

func TestDirectionRemoteToLocal(t *testing.T) {
	f := newFixture(t, WithDirection(RemoteToLocal))
	f.seedBoth(t, "rec_1", map[string]any{"name": "Alice", "score": 10})

	f.now = f.now.Add(time.Minute)
	f.edit(t, "rec_1", "name", "Alice", "Alicia")
	f.store.Seed(testTable, remote.Record{
		ID:        "rec_1",
		Values:    map[string]any{"name": "Alice", "score": 25},
		FetchedAt: f.now,
	})

	// Any write would fail loudly; remote-to-local must never attempt one.
	f.store.FailWrites = errors.New("unexpected remote write")

	res, err := f.orch.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.AppliedRemote)

	local, _ := f.ws.Get("rec_1")
	assert.Equal(t, 25, local["score"])
	row, _ := f.store.Get(testTable, "rec_1")
	assert.Equal(t, "Alice", row.Values["name"])
}

func TestEntityCreatedOnEitherSide(t *testing.T) {
	f := newFixture(t)

	f.ws.Set("rec_local", map[string]any{"name": "Local"})
	_, err := f.tr.Track(context.Background(), "contact", "rec_local", record.ActionCreate,
		nil, map[string]any{"name": "Local"}, "")
	require.NoError(t, err)
	f.store.Seed(testTable, remote.Record{
		ID:        "rec_remote",
		Values:    map[string]any{"name": "Remote"},
		FetchedAt: f.now,
	})

	res, err := f.orch.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.EntitiesDiffed)

	row, ok := f.store.Get(testTable, "rec_local")
	require.True(t, ok)
	assert.Equal(t, "Local", row.Values["name"])

	local, ok := f.ws.Get("rec_remote")
	require.True(t, ok)
	assert.Equal(t, "Remote", local["name"])
}

func TestRemoteRowVanished(t *testing.T) {
	t.Run("local clean follows the deletion", func(t *testing.T) {
		f := newFixture(t)
		f.seedBoth(t, "rec_1", map[string]any{"name": "Alice"})

		require.NoError(t, f.store.Delete(context.Background(), testTable, "rec_1"))
		res, err := f.orch.Sync(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.AppliedLocal)

		_, ok := f.ws.Get("rec_1")
		assert.False(t, ok)
	})

	t.Run("local dirty re-pushes the row", func(t *testing.T) {
		f := newFixture(t)
		f.seedBoth(t, "rec_1", map[string]any{"name": "Alice"})

		f.now = f.now.Add(time.Minute)
		f.edit(t, "rec_1", "name", "Alice", "Alicia")
		require.NoError(t, f.store.Delete(context.Background(), testTable, "rec_1"))

		_, err := f.orch.Sync(context.Background())
		require.NoError(t, err)

		row, ok := f.store.Get(testTable, "rec_1")
		require.True(t, ok)
		assert.Equal(t, "Alicia", row.Values["name"])
		_, stillThere := f.ws.Get("rec_1")
		assert.True(t, stillThere)
	})
}

func TestLocalDeletionPropagates(t *testing.T) {
	f := newFixture(t)
	f.seedBoth(t, "rec_1", map[string]any{"name": "Alice"})

	f.now = f.now.Add(time.Minute)
	require.NoError(t, f.ws.Remove(context.Background(), "rec_1"))
	_, err := f.tr.Track(context.Background(), "contact", "rec_1", record.ActionDelete,
		map[string]any{"name": "Alice"}, nil, "")
	require.NoError(t, err)

	res, err := f.orch.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.AppliedRemote)

	_, ok := f.store.Get(testTable, "rec_1")
	assert.False(t, ok)
	assert.False(t, f.tr.IsDirty("rec_1"))
}

func TestConflictOverrideNewestWins(t *testing.T) {
	f := newFixture(t, WithStrategy(resolve.StrategyNewestWins))
	f.seedBoth(t, "rec_1", map[string]any{"status": "Open"})

	f.now = f.now.Add(time.Minute)
	f.edit(t, "rec_1", "status", "Open", "Complete")

	f.now = f.now.Add(time.Minute)
	f.store.Seed(testTable, remote.Record{
		ID:        "rec_1",
		Values:    map[string]any{"status": "In Progress"},
		FetchedAt: f.now,
	})

	res, err := f.orch.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.Overrides)
	assert.Zero(t, res.Superposed)

	local, _ := f.ws.Get("rec_1")
	assert.Equal(t, "In Progress", local["status"])
}

func TestOptionValidation(t *testing.T) {
	f := newFixture(t, WithInterval(time.Second))
	assert.Equal(t, MinInterval, f.orch.Interval())

	_, err := New(Deps{})
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, WithInterval(MinInterval))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()

	// The immediate first pass completes, then the loop waits on the
	// ticker until canceled.
	assert.Eventually(t, func() bool {
		_, res := f.orch.Status()
		return res != nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
