package remote

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and by the CLI demo mode.
type MemStore struct {
	mu     sync.RWMutex
	tables map[string]Table
	rows   map[string]map[string]Record // tableRef -> id -> record

	// FailWrites, when set, makes Write return the given error. Tests use
	// it to drive the orchestrator's failure paths.
	FailWrites error
}

// NewMemStore creates a MemStore with the given tables.
func NewMemStore(tables ...Table) *MemStore {
	m := &MemStore{
		tables: make(map[string]Table),
		rows:   make(map[string]map[string]Record),
	}
	for _, t := range tables {
		m.tables[t.Ref] = t
		m.rows[t.Ref] = make(map[string]Record)
	}
	return m
}

// Schema lists the configured tables.
func (m *MemStore) Schema(context.Context) ([]Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Table, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out, nil
}

// Records fetches all rows of a table sorted by id. An unknown table is
// an empty one.
func (m *MemStore) Records(_ context.Context, tableRef string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.rows[tableRef]
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Write creates or replaces a row.
func (m *MemStore) Write(_ context.Context, tableRef string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.ensureTable(tableRef)
	rec.FetchedAt = time.Now()
	m.rows[tableRef][rec.ID] = rec
	return nil
}

// Delete removes a row.
func (m *MemStore) Delete(_ context.Context, tableRef string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows[tableRef], id)
	return nil
}

// Seed inserts a row directly, bypassing FailWrites. Test setup helper.
func (m *MemStore) Seed(tableRef string, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTable(tableRef)
	m.rows[tableRef][rec.ID] = rec
}

// ensureTable registers a table on first use. Caller holds m.mu.
func (m *MemStore) ensureTable(tableRef string) {
	if _, ok := m.rows[tableRef]; !ok {
		m.rows[tableRef] = make(map[string]Record)
		m.tables[tableRef] = Table{Ref: tableRef, Name: tableRef}
	}
}

// Get returns a row directly. Test inspection helper.
func (m *MemStore) Get(tableRef, id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.rows[tableRef]
	if !ok {
		return Record{}, false
	}
	rec, ok := rows[id]
	return rec, ok
}
