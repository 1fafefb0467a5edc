// Package types defines the core value types shared by the saga planner,
// storage backends, and executor: scalar datums, column maps, eras, merge
// modes, and plan operations.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DatumKind tags the runtime type of a Datum.
type DatumKind int

const (
	KindNull DatumKind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindTime
)

// Datum is a single column value. The zero value is NULL.
//
// Temporal bounds, identity values, and opaque payload columns all travel as
// Datums so the planner never interprets domain semantics beyond equality,
// ordering, and the discrete successor function.
type Datum struct {
	Kind  DatumKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
	Time  time.Time
}

// Null returns the NULL datum.
func Null() Datum { return Datum{} }

// Int64 returns an integer datum.
func Int64(v int64) Datum { return Datum{Kind: KindInt, Int: v} }

// Float64 returns a float datum.
func Float64(v float64) Datum { return Datum{Kind: KindFloat, Float: v} }

// String returns a string datum.
func String(v string) Datum { return Datum{Kind: KindString, Str: v} }

// Boolean returns a bool datum.
func Boolean(v bool) Datum { return Datum{Kind: KindBool, Bool: v} }

// Time returns a time datum, normalized to UTC so equality is well-defined.
func Time(v time.Time) Datum { return Datum{Kind: KindTime, Time: v.UTC()} }

// Date returns a time datum at day granularity.
func Date(year int, month time.Month, day int) Datum {
	return Time(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// IsNull reports whether d is NULL.
func (d Datum) IsNull() bool { return d.Kind == KindNull }

// Equal reports deep equality, with NULL equal only to NULL.
func (d Datum) Equal(o Datum) bool {
	if d.Kind != o.Kind {
		return false
	}
	switch d.Kind {
	case KindNull:
		return true
	case KindInt:
		return d.Int == o.Int
	case KindFloat:
		return d.Float == o.Float
	case KindString:
		return d.Str == o.Str
	case KindBool:
		return d.Bool == o.Bool
	case KindTime:
		return d.Time.Equal(o.Time)
	}
	return false
}

// Compare orders two non-NULL datums of the same kind.
// It panics on mixed kinds; callers normalize bounds before comparing.
func (d Datum) Compare(o Datum) int {
	if d.Kind != o.Kind {
		panic(fmt.Sprintf("types: comparing datums of different kinds (%d vs %d)", d.Kind, o.Kind))
	}
	switch d.Kind {
	case KindInt:
		switch {
		case d.Int < o.Int:
			return -1
		case d.Int > o.Int:
			return 1
		}
		return 0
	case KindFloat:
		switch {
		case d.Float < o.Float:
			return -1
		case d.Float > o.Float:
			return 1
		}
		return 0
	case KindString:
		switch {
		case d.Str < o.Str:
			return -1
		case d.Str > o.Str:
			return 1
		}
		return 0
	case KindBool:
		switch {
		case !d.Bool && o.Bool:
			return -1
		case d.Bool && !o.Bool:
			return 1
		}
		return 0
	case KindTime:
		switch {
		case d.Time.Before(o.Time):
			return -1
		case d.Time.After(o.Time):
			return 1
		}
		return 0
	}
	panic("types: comparing NULL datums")
}

// String renders the datum for keys, feedback messages, and table output.
func (d Datum) String() string {
	switch d.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return strconv.FormatInt(d.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(d.Float, 'g', -1, 64)
	case KindString:
		return d.Str
	case KindBool:
		return strconv.FormatBool(d.Bool)
	case KindTime:
		if d.Time.Equal(d.Time.Truncate(24 * time.Hour)) {
			return d.Time.Format("2006-01-02")
		}
		return d.Time.Format(time.RFC3339Nano)
	}
	return "?"
}

// MarshalJSON encodes the datum as its natural JSON value.
// Time datums render as RFC 3339 strings (date-only when at day granularity).
func (d Datum) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt:
		return json.Marshal(d.Int)
	case KindFloat:
		return json.Marshal(d.Float)
	case KindString:
		return json.Marshal(d.Str)
	case KindBool:
		return json.Marshal(d.Bool)
	case KindTime:
		return json.Marshal(d.String())
	}
	return nil, fmt.Errorf("types: unknown datum kind %d", d.Kind)
}

// UnmarshalJSON decodes a JSON scalar into a datum. Strings that parse as
// RFC 3339 timestamps or dates become time datums; JSON numbers become ints
// when integral, floats otherwise.
func (d *Datum) UnmarshalJSON(data []byte) error {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	parsed, err := FromInterface(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// FromInterface converts a decoded JSON/YAML scalar to a Datum.
func FromInterface(v interface{}) (Datum, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int64(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Datum{}, fmt.Errorf("types: bad number %q: %w", x.String(), err)
		}
		return Float64(f), nil
	case int:
		return Int64(int64(x)), nil
	case int64:
		return Int64(x), nil
	case float64:
		if x == float64(int64(x)) {
			return Int64(int64(x)), nil
		}
		return Float64(x), nil
	case bool:
		return Boolean(x), nil
	case string:
		if t, err := time.Parse("2006-01-02", x); err == nil {
			return Time(t), nil
		}
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return Time(t), nil
		}
		return String(x), nil
	case time.Time:
		return Time(x), nil
	}
	return Datum{}, fmt.Errorf("types: unsupported scalar %T", v)
}
