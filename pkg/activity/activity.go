// Package activity defines the append-only activity log contract the
// reconciliation core depends on, plus in-memory and bbolt-backed stores
// that satisfy it. The log is the sole source of truth for rewind: the
// core appends and reads, never updates or deletes.
//
// Delivery upstream is at-least-once, so stores deduplicate by record id;
// appending the same record twice is a no-op, not an error.
package activity

import (
	"context"
	"time"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
)

// Appender accepts change records for durable storage.
type Appender interface {
	// Append stores a record. Appending an id the store already holds
	// must succeed without duplicating the record.
	Append(ctx context.Context, rec record.ChangeRecord) error
}

// Query selects records. Zero-valued fields are unconstrained.
type Query struct {
	EntityID string
	Action   record.Action
	Start    time.Time // inclusive lower bound on CreatedAt
	End      time.Time // inclusive upper bound on CreatedAt
	Limit    int
	Offset   int
}

// Querier reads back stored records.
type Querier interface {
	// Records returns matching records ordered by creation time, oldest
	// first. Per-entity order always reflects creation order.
	Records(ctx context.Context, q Query) ([]record.ChangeRecord, error)

	// Snapshot returns the last record for the entity at or before the
	// given instant, or errors.ErrNoSnapshot if none exists.
	Snapshot(ctx context.Context, entityID string, at time.Time) (record.ChangeRecord, error)
}

// Log combines both halves of the contract.
type Log interface {
	Appender
	Querier
}
