// Package remote defines the contract for the remote tabular store the
// sync orchestrator reconciles against, plus an HTTP adapter and an
// in-memory fake. The core cares only about the contract: a schema
// listing, per-record values, and write/delete acknowledgements.
//
// Adapters must surface rate limits and transient outages distinctly from
// permanent failures (bad credentials) so the orchestrator can decide
// between retry and abort; see pkg/errors.RemoteError.
package remote

import (
	"context"
	"time"
)

// FieldKind is the coarse type of a remote column.
type FieldKind string

const (
	// FieldText holds free text.
	FieldText FieldKind = "text"
	// FieldNumber holds a numeric value.
	FieldNumber FieldKind = "number"
	// FieldDate holds a date or datetime.
	FieldDate FieldKind = "date"
	// FieldSelect holds one of an enumerated set.
	FieldSelect FieldKind = "select"
)

// Field describes one column of a remote table.
type Field struct {
	Name string    `json:"name"`
	Kind FieldKind `json:"kind"`
}

// Table describes one remote table.
type Table struct {
	Ref    string  `json:"ref"` // opaque table reference used in calls
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Record is one remote row.
type Record struct {
	ID        string         `json:"id"`
	Values    map[string]any `json:"values"`
	FetchedAt time.Time      `json:"fetched_at,omitempty"`
}

// Store is the remote tabular store adapter contract.
type Store interface {
	// Schema lists the remote tables and their field definitions.
	Schema(ctx context.Context) ([]Table, error)

	// Records fetches all rows of a table.
	Records(ctx context.Context, tableRef string) ([]Record, error)

	// Write creates or replaces a row.
	Write(ctx context.Context, tableRef string, rec Record) error

	// Delete removes a row.
	Delete(ctx context.Context, tableRef string, id string) error
}
