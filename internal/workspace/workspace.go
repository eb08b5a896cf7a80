// Package workspace provides a YAML-file-backed local entity store for
// the CLI. The file maps entity ids to field/value sets and is rewritten
// atomically on every mutation.
package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
)

// File is a workspace persisted as a single YAML document. It satisfies
// syncer.Workspace and rewind.Workspace.
type File struct {
	mu       sync.Mutex
	path     string
	entities map[string]map[string]any
}

// Open loads the workspace at path. A missing file is an empty
// workspace, created on first write.
func Open(path string) (*File, error) {
	f := &File{
		path:     path,
		entities: make(map[string]map[string]any),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, errors.NewIOError("read workspace", path, err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &f.entities); err != nil {
			return nil, errors.NewIOError("parse workspace", path, err)
		}
	}
	return f, nil
}

// Entities returns a copy of all entity values.
func (f *File) Entities(context.Context) (map[string]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]map[string]any, len(f.entities))
	for id, values := range f.entities {
		copied := make(map[string]any, len(values))
		for k, v := range values {
			copied[k] = v
		}
		out[id] = copied
	}
	return out, nil
}

// Apply sets fields on an entity, creating it if needed, and persists.
// A nil value removes the field.
func (f *File) Apply(_ context.Context, entityID string, values map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entity, ok := f.entities[entityID]
	if !ok {
		entity = make(map[string]any, len(values))
		f.entities[entityID] = entity
	}
	for k, v := range values {
		if v == nil {
			delete(entity, k)
			continue
		}
		entity[k] = v
	}
	return f.save()
}

// Remove deletes an entity and persists.
func (f *File) Remove(_ context.Context, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entities, entityID)
	return f.save()
}

// Get returns an entity's values.
func (f *File) Get(entityID string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, ok := f.entities[entityID]
	if !ok {
		return nil, false
	}
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return copied, true
}

// save writes the whole document to a sibling temp file and renames it
// into place. Caller holds f.mu.
func (f *File) save() error {
	data, err := yaml.Marshal(f.entities)
	if err != nil {
		return errors.NewIOError("encode workspace", f.path, err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".workspace-*.yaml")
	if err != nil {
		return errors.NewIOError("write workspace", f.path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.NewIOError("write workspace", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.NewIOError("write workspace", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return errors.NewIOError("write workspace", f.path, err)
	}
	return nil
}
