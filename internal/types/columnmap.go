package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
)

// ColumnMap maps column names to datums. It is the planner's opaque payload
// representation; the planner only merges, subsets, and hashes it.
type ColumnMap map[string]Datum

// Clone returns a shallow copy (datums are values).
func (m ColumnMap) Clone() ColumnMap {
	if m == nil {
		return nil
	}
	out := make(ColumnMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SortedKeys returns the column names in lexical order.
// All deterministic output paths iterate through this, never the map directly.
func (m ColumnMap) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value for col, NULL when absent.
func (m ColumnMap) Get(col string) Datum {
	if m == nil {
		return Null()
	}
	return m[col]
}

// Has reports whether col is present (even as an explicit NULL).
func (m ColumnMap) Has(col string) bool {
	_, ok := m[col]
	return ok
}

// Equal reports whether both maps hold the same columns with equal values.
func (m ColumnMap) Equal(o ColumnMap) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// MergeRight returns m overlaid with o: columns present in o win.
// NULLs in o overwrite; use StripNulls first for patch semantics.
func (m ColumnMap) MergeRight(o ColumnMap) ColumnMap {
	out := m.Clone()
	if out == nil {
		out = make(ColumnMap, len(o))
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

// StripNulls returns a copy without NULL-valued columns.
func (m ColumnMap) StripNulls() ColumnMap {
	out := make(ColumnMap, len(m))
	for k, v := range m {
		if !v.IsNull() {
			out[k] = v
		}
	}
	return out
}

// Without returns a copy with the named columns removed.
func (m ColumnMap) Without(cols ...string) ColumnMap {
	out := m.Clone()
	for _, c := range cols {
		delete(out, c)
	}
	return out
}

// Subset returns a copy restricted to the named columns (absent ones skipped).
func (m ColumnMap) Subset(cols []string) ColumnMap {
	out := make(ColumnMap, len(cols))
	for _, c := range cols {
		if v, ok := m[c]; ok {
			out[c] = v
		}
	}
	return out
}

// CanonicalJSON renders the map as JSON with sorted keys. Two maps with equal
// contents produce byte-identical output regardless of insertion order.
func (m ColumnMap) CanonicalJSON() string {
	if m == nil {
		return "null"
	}
	var b []byte
	b = append(b, '{')
	for i, k := range m.SortedKeys() {
		if i > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendQuote(b, k)
		b = append(b, ':')
		vb, err := json.Marshal(m[k])
		if err != nil {
			// Datums of known kinds never fail to marshal.
			vb = []byte("null")
		}
		b = append(b, vb...)
	}
	b = append(b, '}')
	return string(b)
}

// Hash returns a stable content hash of the map restricted to non-ephemeral
// columns, used for coalescing and change detection.
func (m ColumnMap) Hash(exclude []string) string {
	subject := m
	if len(exclude) > 0 {
		subject = m.Without(exclude...)
	}
	sum := sha256.Sum256([]byte(subject.CanonicalJSON()))
	return hex.EncodeToString(sum[:])
}

// MarshalJSON emits canonical (sorted-key) JSON.
func (m ColumnMap) MarshalJSON() ([]byte, error) {
	return []byte(m.CanonicalJSON()), nil
}

// UnmarshalJSON decodes a JSON object of scalars.
func (m *ColumnMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ColumnMap, len(raw))
	for k, rv := range raw {
		var d Datum
		if err := json.Unmarshal(rv, &d); err != nil {
			return err
		}
		out[k] = d
	}
	*m = out
	return nil
}
