package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumOrderIndependence(t *testing.T) {
	a := map[string]any{
		"name":   "Alice",
		"status": "Complete",
		"nested": map[string]any{"x": 1, "y": 2},
	}
	b := map[string]any{
		"nested": map[string]any{"y": 2, "x": 1},
		"status": "Complete",
		"name":   "Alice",
	}

	assert.Equal(t, Sum(a), Sum(b))
	assert.True(t, Equal(a, b))
}

func TestSumDistinguishesValues(t *testing.T) {
	tests := []struct {
		name string
		a    any
		b    any
	}{
		{"string vs number", "1", 1},
		{"nil vs empty string", nil, ""},
		{"bool vs string", true, "true"},
		{"different strings", "Alice", "Alicia"},
		{"different nesting", map[string]any{"a": map[string]any{"b": 1}}, map[string]any{"a.b": 1}},
		{"slice order matters", []any{1, 2}, []any{2, 1}},
		{"empty map vs nil", map[string]any{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, Sum(tt.a), Sum(tt.b))
		})
	}
}

func TestSumNumericNormalization(t *testing.T) {
	// A value that has been through a JSON round-trip comes back as
	// float64; the fingerprint must not change.
	assert.Equal(t, Sum(42), Sum(float64(42)))
	assert.Equal(t, Sum(int64(7)), Sum(float64(7)))
}

func TestSumDeterministic(t *testing.T) {
	v := map[string]any{"status": "In Progress", "count": 3}
	first := Sum(v)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Sum(v))
	}
}

func TestDiffFields(t *testing.T) {
	before := map[string]any{
		"name":   "Alice",
		"status": "In Progress",
		"owner":  "team-a",
	}
	after := map[string]any{
		"name":   "Alicia",
		"status": "In Progress",
		"due":    "2024-06-01",
	}

	changes := DiffFields(before, after)
	require.Len(t, changes, 3)

	// Sorted by field name: due, name, owner.
	assert.Equal(t, "due", changes[0].Field)
	assert.Equal(t, ChangeAdded, changes[0].Type)

	assert.Equal(t, "name", changes[1].Field)
	assert.Equal(t, ChangeModified, changes[1].Type)
	assert.Equal(t, "Alice", changes[1].Before)
	assert.Equal(t, "Alicia", changes[1].After)

	assert.Equal(t, "owner", changes[2].Field)
	assert.Equal(t, ChangeRemoved, changes[2].Type)
}

func TestDiffFieldsNoChanges(t *testing.T) {
	v := map[string]any{"a": 1, "b": "two"}
	same := map[string]any{"b": "two", "a": float64(1)}
	assert.Empty(t, DiffFields(v, same))
}

func TestDiffFieldsDeterministicOrder(t *testing.T) {
	before := map[string]any{}
	after := map[string]any{"z": 1, "a": 2, "m": 3}

	changes := DiffFields(before, after)
	require.Len(t, changes, 3)
	assert.Equal(t, "a", changes[0].Field)
	assert.Equal(t, "m", changes[1].Field)
	assert.Equal(t, "z", changes[2].Field)
}
