package checksum

import "sort"

// ChangeType represents the type of change to a field.
type ChangeType string

const (
	// ChangeAdded indicates the field exists only in the after state.
	ChangeAdded ChangeType = "added"
	// ChangeRemoved indicates the field exists only in the before state.
	ChangeRemoved ChangeType = "removed"
	// ChangeModified indicates the field exists in both states with
	// differing fingerprints.
	ChangeModified ChangeType = "modified"
)

// FieldChange describes one changed field between two value sets.
type FieldChange struct {
	Field  string
	Before any
	After  any
	Type   ChangeType
}

// DiffFields compares two value sets field by field using fingerprint
// equality. The result covers the union of both field name sets and is
// sorted by field name so repeated diffs of the same input are
// deterministic. Unchanged fields are omitted.
func DiffFields(before, after map[string]any) []FieldChange {
	names := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		names[k] = struct{}{}
	}
	for k := range after {
		names[k] = struct{}{}
	}

	changes := make([]FieldChange, 0, len(names))
	for name := range names {
		b, inBefore := before[name]
		a, inAfter := after[name]
		switch {
		case !inBefore:
			changes = append(changes, FieldChange{Field: name, After: a, Type: ChangeAdded})
		case !inAfter:
			changes = append(changes, FieldChange{Field: name, Before: b, Type: ChangeRemoved})
		case !Equal(b, a):
			changes = append(changes, FieldChange{Field: name, Before: b, After: a, Type: ChangeModified})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Field < changes[j].Field
	})

	return changes
}
