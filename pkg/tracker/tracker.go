// Package tracker records every local mutation as an immutable change
// record, maintains per-entity dirty state, exposes undo/redo over the
// local change history, and delivers records to the activity log in
// batches. It is the single writer of local history; the sync
// orchestrator and rewind engine both consult it before touching an
// entity.
package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/activity"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/identity"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/logging"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/ring"
)

const (
	// DefaultUndoCapacity bounds the undo and redo stacks; the oldest
	// entries are evicted past it.
	DefaultUndoCapacity = 100

	// DefaultBatchDelay is the interval between background deliveries of
	// queued records to the activity log.
	DefaultBatchDelay = 2 * time.Second

	// DefaultBatchSize caps how many records one delivery attempt sends.
	DefaultBatchSize = 50
)

// StateListener observes dirty-state transitions. Implementations are
// invoked in subscription order; a panic in one propagates to the caller
// rather than being swallowed.
type StateListener interface {
	EntityDirty(entityID string)
	EntityClean(entityID string)
}

// Tracker records local mutations. Construct with New and pass by
// reference; there is no ambient shared instance.
type Tracker struct {
	log      activity.Appender
	identity identity.Resolver
	logger   *zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	history   map[string][]record.ChangeRecord
	dirty     map[string]struct{}
	undo      *ring.Deque[record.ChangeRecord]
	redo      *ring.Deque[record.ChangeRecord]
	queue     []record.ChangeRecord
	listeners []StateListener
	closed    bool

	// deliverMu serializes deliveries so the batching timer's tick never
	// runs concurrently with an explicit Flush.
	deliverMu sync.Mutex

	batchSize  int
	batchDelay time.Duration
	stop       chan struct{}
	done       chan struct{}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithUndoCapacity sets the undo/redo stack capacity.
func WithUndoCapacity(n int) Option {
	return func(t *Tracker) {
		t.undo = ring.New[record.ChangeRecord](n)
		t.redo = ring.New[record.ChangeRecord](n)
	}
}

// WithBatchDelay sets the background delivery interval.
func WithBatchDelay(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.batchDelay = d
		}
	}
}

// WithBatchSize caps records per delivery attempt.
func WithBatchSize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.batchSize = n
		}
	}
}

// WithClock overrides the time source. Tests use it for deterministic
// record timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// New creates a Tracker delivering records to log and starts its
// background batching timer. Call Close to stop it.
func New(log activity.Appender, resolver identity.Resolver, opts ...Option) *Tracker {
	t := &Tracker{
		log:        log,
		identity:   identity.Fallback(resolver),
		logger:     logging.Default(),
		now:        time.Now,
		history:    make(map[string][]record.ChangeRecord),
		dirty:      make(map[string]struct{}),
		undo:       ring.New[record.ChangeRecord](DefaultUndoCapacity),
		redo:       ring.New[record.ChangeRecord](DefaultUndoCapacity),
		batchSize:  DefaultBatchSize,
		batchDelay: DefaultBatchDelay,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	go t.deliverLoop()
	return t
}

// Subscribe registers a dirty-state listener.
func (t *Tracker) Subscribe(l StateListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Track records one mutation: checksums are computed, the record is
// stamped and appended to the entity's in-memory history, the entity is
// marked dirty, the record is pushed onto the undo stack (clearing redo),
// and queued for batched delivery to the activity log.
func (t *Tracker) Track(ctx context.Context, entityType, entityID string, action record.Action, before, after map[string]any, field string) (record.ChangeRecord, error) {
	if !action.Valid() {
		return record.ChangeRecord{}, errors.NewValidationError("action", action, "unknown action kind")
	}
	if entityID == "" {
		return record.ChangeRecord{}, errors.NewValidationError("entityID", entityID, "entity id required")
	}

	agent, _ := t.identity.Current(ctx) // Fallback resolver never errors

	rec := record.NewChangeRecord(entityType, entityID, action, before, after, agent, t.now())
	rec.Field = field

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return record.ChangeRecord{}, errors.ErrClosed
	}
	t.history[entityID] = append(t.history[entityID], rec)
	t.undo.PushBack(rec)
	t.redo.Clear()
	t.queue = append(t.queue, rec)

	_, wasDirty := t.dirty[entityID]
	t.dirty[entityID] = struct{}{}
	listeners := t.snapshotListeners()
	t.mu.Unlock()

	if !wasDirty {
		for _, l := range listeners {
			l.EntityDirty(entityID)
		}
	}

	t.logger.Debug().
		Str("entity", entityID).
		Str("action", string(action)).
		Str("field", field).
		Str("record", rec.ID).
		Msg("tracked change")

	return rec, nil
}

// Undo pops the most recent change off the undo stack and moves it to the
// redo stack. The returned record's Before value is what the caller
// should restore. An empty stack is a normal condition: ok is false and
// nothing else happens.
func (t *Tracker) Undo() (record.ChangeRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.undo.PopBack()
	if !ok {
		return record.ChangeRecord{}, false
	}
	t.redo.PushBack(rec)
	return rec, true
}

// Redo is the symmetric inverse of Undo.
func (t *Tracker) Redo() (record.ChangeRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.redo.PopBack()
	if !ok {
		return record.ChangeRecord{}, false
	}
	t.undo.PushBack(rec)
	return rec, true
}

// CanUndo reports whether the undo stack is non-empty.
func (t *Tracker) CanUndo() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.undo.Len() > 0
}

// CanRedo reports whether the redo stack is non-empty.
func (t *Tracker) CanRedo() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.redo.Len() > 0
}

// IsDirty reports whether the entity has changes not yet folded into a
// completed sync pass.
func (t *Tracker) IsDirty(entityID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.dirty[entityID]
	return ok
}

// DirtyEntities returns the dirty entity ids in sorted order.
func (t *Tracker) DirtyEntities() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.dirty))
	for id := range t.dirty {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarkClean clears the dirty flag after a successful reconciliation of
// the entity. Called by the sync orchestrator.
func (t *Tracker) MarkClean(entityID string) {
	t.mu.Lock()
	_, wasDirty := t.dirty[entityID]
	delete(t.dirty, entityID)
	listeners := t.snapshotListeners()
	t.mu.Unlock()

	if wasDirty {
		for _, l := range listeners {
			l.EntityClean(entityID)
		}
	}
}

// History returns a copy of the entity's tracked records in creation
// order.
func (t *Tracker) History(entityID string) []record.ChangeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]record.ChangeRecord(nil), t.history[entityID]...)
}

// Pending returns the number of records queued for delivery.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Flush delivers all queued records immediately, bypassing the batching
// timer. Records that fail to append go back to the front of the queue
// for the next attempt; delivery is at-least-once, so the log must
// deduplicate by record id.
func (t *Tracker) Flush(ctx context.Context) error {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.mu.Unlock()
			return nil
		}
		n := len(t.queue)
		if n > t.batchSize {
			n = t.batchSize
		}
		batch := append([]record.ChangeRecord(nil), t.queue[:n]...)
		t.queue = t.queue[n:]
		t.mu.Unlock()

		if err := t.deliver(ctx, batch); err != nil {
			return err
		}
	}
}

// deliver appends one batch, requeueing the unsent remainder on failure.
func (t *Tracker) deliver(ctx context.Context, batch []record.ChangeRecord) error {
	for i, rec := range batch {
		if err := t.log.Append(ctx, rec); err != nil {
			t.mu.Lock()
			t.queue = append(append([]record.ChangeRecord(nil), batch[i:]...), t.queue...)
			t.mu.Unlock()

			t.logger.Warn().
				Err(err).
				Int("requeued", len(batch)-i).
				Msg("activity delivery failed")
			return errors.NewIOError("append", "", err)
		}
	}
	return nil
}

// deliverLoop is the background batching timer. A tick that finds Flush
// already running waits its turn on deliverMu rather than racing it.
func (t *Tracker) deliverLoop() {
	defer close(t.done)

	ticker := time.NewTicker(t.batchDelay)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if err := t.Flush(context.Background()); err != nil {
				t.logger.Debug().Err(err).Msg("scheduled delivery will retry")
			}
		}
	}
}

// Close stops the batching timer and performs a final flush.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.stop)
	<-t.done
	return t.Flush(ctx)
}

// snapshotListeners copies the listener slice; callers notify outside the
// lock so a slow listener cannot block tracking.
func (t *Tracker) snapshotListeners() []StateListener {
	return append([]StateListener(nil), t.listeners...)
}
