package activity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
)

// MemLog is an in-memory activity log. It is the default store for tests
// and for running without durable history configured.
type MemLog struct {
	mu      sync.RWMutex
	records []record.ChangeRecord
	seen    map[string]struct{}
}

// NewMemLog creates an empty in-memory log.
func NewMemLog() *MemLog {
	return &MemLog{seen: make(map[string]struct{})}
}

// Append stores a record, ignoring ids it has already seen.
func (m *MemLog) Append(_ context.Context, rec record.ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.seen[rec.ID]; dup {
		return nil
	}
	m.seen[rec.ID] = struct{}{}

	// Insert keeping CreatedAt order; appends are nearly always already
	// in order, so scan from the tail.
	idx := len(m.records)
	for idx > 0 && m.records[idx-1].CreatedAt.After(rec.CreatedAt) {
		idx--
	}
	m.records = append(m.records, record.ChangeRecord{})
	copy(m.records[idx+1:], m.records[idx:])
	m.records[idx] = rec
	return nil
}

// Records returns matching records oldest first.
func (m *MemLog) Records(_ context.Context, q Query) ([]record.ChangeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []record.ChangeRecord
	for _, rec := range m.records {
		if !matches(rec, q) {
			continue
		}
		out = append(out, rec)
	}
	return paginate(out, q), nil
}

// Snapshot returns the last record for the entity at or before the given
// instant.
func (m *MemLog) Snapshot(_ context.Context, entityID string, at time.Time) (record.ChangeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		if rec.EntityID == entityID && !rec.CreatedAt.After(at) {
			return rec, nil
		}
	}
	return record.ChangeRecord{}, errors.ErrNoSnapshot
}

// Len returns the number of stored records.
func (m *MemLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func matches(rec record.ChangeRecord, q Query) bool {
	if q.EntityID != "" && rec.EntityID != q.EntityID {
		return false
	}
	if q.Action != "" && rec.Action != q.Action {
		return false
	}
	if !q.Start.IsZero() && rec.CreatedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.CreatedAt.After(q.End) {
		return false
	}
	return true
}

func paginate(recs []record.ChangeRecord, q Query) []record.ChangeRecord {
	if q.Offset > 0 {
		if q.Offset >= len(recs) {
			return nil
		}
		recs = recs[q.Offset:]
	}
	if q.Limit > 0 && len(recs) > q.Limit {
		recs = recs[:q.Limit]
	}
	return recs
}

// sortByCreation orders records oldest first, breaking CreatedAt ties by
// id so results are stable.
func sortByCreation(recs []record.ChangeRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
