package record

import "encoding/json"

// Outcome is the closed set of conflict resolution results.
type Outcome string

const (
	// OutcomeNone means both values fingerprint identically; nothing to
	// resolve.
	OutcomeNone Outcome = "not-a-conflict"
	// OutcomeOverride means one value supersedes the other.
	OutcomeOverride Outcome = "override"
	// OutcomeSuperposed means both values are retained as coexisting
	// alternatives.
	OutcomeSuperposed Outcome = "superposed"
)

// Side names which input a resolution favored.
type Side string

const (
	// SideLocal favors the workspace value.
	SideLocal Side = "local"
	// SideRemote favors the remote store value.
	SideRemote Side = "remote"
	// SideNone applies when no winner was chosen.
	SideNone Side = "none"
)

// Conflict is the decision record produced by comparing a local and a
// remote value for the same entity and field. It is transient: when the
// outcome is superposed, what gets persisted is the resulting
// SuperposedValue cell, not the Conflict itself.
type Conflict struct {
	EntityID string `json:"entity_id"`
	Field    string `json:"field"`

	LocalValue    any      `json:"local_value"`
	LocalContext  *Context `json:"local_context"`
	RemoteValue   any      `json:"remote_value"`
	RemoteContext *Context `json:"remote_context"`

	Outcome  Outcome `json:"outcome"`
	Winner   Side    `json:"winner"`   // override: the superseding side; superposed: the dominant side
	Strategy string  `json:"strategy"` // strategy name that produced the outcome
	Reason   string  `json:"reason"`   // stable reason category

	// RemoteCollapsed marks the information loss when a superposed cell
	// is written to a remote format that cannot represent alternatives
	// and receives only the dominant value.
	RemoteCollapsed bool `json:"remote_collapsed,omitempty"`
}

// Superposed reports whether this conflict retained both values.
func (c *Conflict) Superposed() bool {
	return c.Outcome == OutcomeSuperposed
}

// Alternative is one value of a superposed cell together with its context.
type Alternative struct {
	Value   any      `json:"value"`
	Context *Context `json:"context"`
}

// SuperposedValue is a multi-valued cell: two or more contextually
// distinct values for the same field held simultaneously. Dominant points
// at the alternative chosen for default display; it never discards the
// others.
type SuperposedValue struct {
	Alternatives []Alternative `json:"alternatives"`
	Dominant     int           `json:"dominant"`
}

// DominantValue returns the display value, or nil for an empty cell.
func (s *SuperposedValue) DominantValue() any {
	if s == nil || len(s.Alternatives) == 0 {
		return nil
	}
	idx := s.Dominant
	if idx < 0 || idx >= len(s.Alternatives) {
		idx = 0
	}
	return s.Alternatives[idx].Value
}

// IsSuperposed reports whether v is a multi-valued cell. Values read back
// from the activity log arrive as generic maps, so the JSON shape is
// recognized as well.
func IsSuperposed(v any) (*SuperposedValue, bool) {
	switch cell := v.(type) {
	case *SuperposedValue:
		return cell, cell != nil
	case SuperposedValue:
		return &cell, true
	case map[string]any:
		if _, ok := cell["alternatives"]; !ok {
			return nil, false
		}
		// Round-trip through JSON so alternatives keep their contexts and
		// the dominant index survives whichever numeric type the decoder
		// produced.
		data, err := json.Marshal(cell)
		if err != nil {
			return nil, false
		}
		sv := &SuperposedValue{}
		if err := json.Unmarshal(data, sv); err != nil || len(sv.Alternatives) == 0 {
			return nil, false
		}
		return sv, true
	}
	return nil, false
}
