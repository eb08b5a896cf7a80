// Package record defines the data model shared across the reconciliation
// core: change records, value contexts, snapshots, superposed cells, and
// conflict decisions. Records are immutable once created and are the only
// thing the activity log stores, so every type here survives a JSON
// round-trip unchanged.
package record

import (
	"time"

	"github.com/google/uuid"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/checksum"
)

// Action is the closed set of change record kinds.
type Action string

const (
	// ActionCreate records a new entity or field coming into existence.
	ActionCreate Action = "create"
	// ActionUpdate records a mutation of an existing value.
	ActionUpdate Action = "update"
	// ActionDelete records a removal.
	ActionDelete Action = "delete"
	// ActionSync records a value applied by a reconciliation pass.
	ActionSync Action = "sync"
	// ActionRewind records a restoration to a prior state.
	ActionRewind Action = "rewind"
)

// Valid reports whether a is a known action kind.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionSync, ActionRewind:
		return true
	}
	return false
}

// Agent identifies who (or what) performed a change.
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"` // "user" or "system"
}

// SystemAgent is the well-defined fallback actor used when identity
// resolution fails; the core substitutes it rather than blocking.
var SystemAgent = Agent{ID: "system", Name: "system", Kind: "system"}

// ChangeRecord is one atomic observation of a field or entity mutation.
// Created once at the moment of mutation, never modified afterward.
type ChangeRecord struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Field      string         `json:"field,omitempty"` // empty for entity-scoped records
	Action     Action         `json:"action"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	BeforeSum  uint64         `json:"before_sum"`
	AfterSum   uint64         `json:"after_sum"`
	Agent      Agent          `json:"agent"`
	Context    *Context       `json:"context,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`

	// Resolution carries conflict metadata for sync records so the
	// superposition/collapse decision stays auditable in the log.
	Resolution *Resolution `json:"resolution,omitempty"`
}

// NewChangeRecord stamps a record with a globally unique id, computes
// both checksums, and sets the creation timestamp.
func NewChangeRecord(entityType, entityID string, action Action, before, after map[string]any, agent Agent, now time.Time) ChangeRecord {
	return ChangeRecord{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Before:     before,
		After:      after,
		BeforeSum:  checksum.Sum(anyValue(before)),
		AfterSum:   checksum.Sum(anyValue(after)),
		Agent:      agent,
		CreatedAt:  now,
	}
}

// anyValue lets nil maps checksum as nil rather than as an empty map.
func anyValue(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}

// Resolution is the audit trail attached to sync records.
type Resolution struct {
	Outcome         Outcome `json:"outcome"`
	Strategy        string  `json:"strategy"`
	Reason          string  `json:"reason"`
	RemoteCollapsed bool    `json:"remote_collapsed,omitempty"`
}

// Snapshot is the reconstructed state of an entity at a specific instant.
// Snapshots are derived by folding change records; they may be cached but
// the cache is never authoritative.
type Snapshot struct {
	EntityID string         `json:"entity_id"`
	At       time.Time      `json:"at"`
	Values   map[string]any `json:"values"`
	RecordID string         `json:"record_id"` // record that produced this state
}
