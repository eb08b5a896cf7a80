// Package checksum provides deterministic, order-independent fingerprints of
// value trees and a field-level diff built on them. Fingerprints are used for
// cheap "did anything change" tests during reconciliation; they are not
// cryptographic.
package checksum

import (
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"sort"
	"strconv"
)

// Sum computes a 64-bit fingerprint of v. Two structurally equal values
// always produce the same sum regardless of map construction order: map
// keys are sorted before hashing. Numeric values are normalized through
// float64 so that a JSON round-trip does not change the fingerprint.
func Sum(v any) uint64 {
	h := fnv.New64a()
	writeValue(h, v)
	return h.Sum64()
}

// Equal reports whether two values have identical fingerprints.
func Equal(a, b any) bool {
	return Sum(a) == Sum(b)
}

// writeValue serializes v into w in a canonical form. Each value is prefixed
// with a type tag so that, e.g., the string "1" and the number 1 hash
// differently, and composite boundaries are delimited so that nesting is
// unambiguous.
func writeValue(w io.Writer, v any) {
	switch val := v.(type) {
	case nil:
		io.WriteString(w, "z")
	case bool:
		if val {
			io.WriteString(w, "b1")
		} else {
			io.WriteString(w, "b0")
		}
	case string:
		io.WriteString(w, "s")
		io.WriteString(w, val)
		w.Write([]byte{0})
	case float64:
		writeFloat(w, val)
	case float32:
		writeFloat(w, float64(val))
	case int:
		writeFloat(w, float64(val))
	case int8:
		writeFloat(w, float64(val))
	case int16:
		writeFloat(w, float64(val))
	case int32:
		writeFloat(w, float64(val))
	case int64:
		writeFloat(w, float64(val))
	case uint:
		writeFloat(w, float64(val))
	case uint8:
		writeFloat(w, float64(val))
	case uint16:
		writeFloat(w, float64(val))
	case uint32:
		writeFloat(w, float64(val))
	case uint64:
		writeFloat(w, float64(val))
	case map[string]any:
		io.WriteString(w, "m")
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			io.WriteString(w, k)
			w.Write([]byte{0})
			writeValue(w, val[k])
		}
		w.Write([]byte{1})
	case []any:
		io.WriteString(w, "a")
		for _, item := range val {
			writeValue(w, item)
		}
		w.Write([]byte{1})
	case []string:
		io.WriteString(w, "a")
		for _, item := range val {
			writeValue(w, item)
		}
		w.Write([]byte{1})
	default:
		// Uncommon types fall back to their formatted representation.
		io.WriteString(w, "x")
		fmt.Fprintf(w, "%T:%v", val, val)
	}
}

// writeFloat hashes a number in normalized form. Integral floats hash the
// same as the equivalent integer; NaN collapses to a single canonical
// representation.
func writeFloat(w io.Writer, f float64) {
	io.WriteString(w, "n")
	if math.IsNaN(f) {
		io.WriteString(w, "nan")
		return
	}
	io.WriteString(w, strconv.FormatFloat(f, 'g', -1, 64))
}
