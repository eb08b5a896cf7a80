package syncer

import (
	"context"
	"sync"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
)

// Workspace is the local side of a reconciliation: the application's own
// editable entity store. The orchestrator reads its current state and
// writes merged values back.
type Workspace interface {
	// Entities returns the current values of every local entity, keyed
	// by entity id.
	Entities(ctx context.Context) (map[string]map[string]any, error)

	// Apply sets the given fields on an entity, creating it if needed.
	// A nil value removes the field.
	Apply(ctx context.Context, entityID string, values map[string]any) error

	// Remove deletes an entity.
	Remove(ctx context.Context, entityID string) error
}

// ContextProvider is optionally implemented by a Workspace that knows the
// provenance of its values. Without it the orchestrator synthesizes a
// system context from the last tracked change.
type ContextProvider interface {
	ValueContext(entityID, field string) *record.Context
}

// MemWorkspace is an in-memory Workspace used by tests and the CLI demo
// mode. It can carry per-field value contexts.
type MemWorkspace struct {
	mu       sync.RWMutex
	entities map[string]map[string]any
	contexts map[string]map[string]*record.Context
}

// NewMemWorkspace creates an empty workspace.
func NewMemWorkspace() *MemWorkspace {
	return &MemWorkspace{
		entities: make(map[string]map[string]any),
		contexts: make(map[string]map[string]*record.Context),
	}
}

// Entities returns a copy of all entity values.
func (w *MemWorkspace) Entities(context.Context) (map[string]map[string]any, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make(map[string]map[string]any, len(w.entities))
	for id, values := range w.entities {
		copied := make(map[string]any, len(values))
		for k, v := range values {
			copied[k] = v
		}
		out[id] = copied
	}
	return out, nil
}

// Apply sets fields on an entity, creating it if needed. A nil value
// removes the field.
func (w *MemWorkspace) Apply(_ context.Context, entityID string, values map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entity, ok := w.entities[entityID]
	if !ok {
		entity = make(map[string]any, len(values))
		w.entities[entityID] = entity
	}
	for k, v := range values {
		if v == nil {
			delete(entity, k)
			continue
		}
		entity[k] = v
	}
	return nil
}

// Remove deletes an entity.
func (w *MemWorkspace) Remove(_ context.Context, entityID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entities, entityID)
	delete(w.contexts, entityID)
	return nil
}

// Set replaces an entity's values wholesale. Test setup helper.
func (w *MemWorkspace) Set(entityID string, values map[string]any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	w.entities[entityID] = copied
}

// Get returns an entity's values.
func (w *MemWorkspace) Get(entityID string) (map[string]any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	values, ok := w.entities[entityID]
	if !ok {
		return nil, false
	}
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return copied, true
}

// SetContext attaches a provenance context to one field.
func (w *MemWorkspace) SetContext(entityID, field string, ctx *record.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.contexts[entityID]; !ok {
		w.contexts[entityID] = make(map[string]*record.Context)
	}
	w.contexts[entityID][field] = ctx
}

// ValueContext implements ContextProvider.
func (w *MemWorkspace) ValueContext(entityID, field string) *record.Context {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if fields, ok := w.contexts[entityID]; ok {
		return fields[field]
	}
	return nil
}
