package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface for typed payload values carried by
// database events. Only the types in this package implement it.
type Value interface {
	value() // Sealed
}

// Null represents SQL NULL / JSON null.
type Null struct{}

func (Null) value() {}

// Text is a string value.
type Text string

func (Text) value() {}

// Int is an integer value. All integer widths collapse to int64.
type Int int64

func (Int) value() {}

// Float is a floating point value.
type Float float64

func (Float) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Time is a timestamp value, always normalized to UTC.
type Time struct {
	time.Time
}

func (Time) value() {}

// Array is an ordered list of values.
type Array []Value

func (Array) value() {}

// Record is an associative array of column name to value, used for full
// rows (the "__record__" payload entry) and nested objects.
type Record map[string]Value

func (Record) value() {}

// NewTime creates a Time value in UTC.
func NewTime(t time.Time) Time {
	return Time{Time: t.UTC()}
}

// Strings builds an Array of Text values.
func Strings(ss ...string) Array {
	arr := make(Array, len(ss))
	for i, s := range ss {
		arr[i] = Text(s)
	}
	return arr
}

// Clone returns a deep copy of v. Records and arrays are copied
// recursively; scalars are returned as is.
func Clone(v Value) Value {
	switch x := v.(type) {
	case Record:
		if x == nil {
			return x
		}
		out := make(Record, len(x))
		for k, e := range x {
			out[k] = Clone(e)
		}
		return out
	case Array:
		if x == nil {
			return x
		}
		out := make(Array, len(x))
		for i, e := range x {
			out[i] = Clone(e)
		}
		return out
	}
	return v
}

// SortedKeys returns the record keys ordered by UTF-16 code units so that
// serialized payloads are byte-stable across runs.
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// MarshalJSON implements json.Marshaler with sorted keys.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := Marshal(r[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for Array.
func (a Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := Marshal(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Marshal encodes a Value to JSON. Time values are RFC 3339 strings with
// nanosecond precision. Non-finite floats are rejected.
func Marshal(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case Text:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("non-finite float %v", f)
		}
		return json.Marshal(f)
	case Bool:
		return json.Marshal(bool(val))
	case Time:
		return json.Marshal(val.UTC().Format(time.RFC3339Nano))
	case Array:
		return val.MarshalJSON()
	case Record:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// Kind returns a short name for the value's type, used in diagnostics.
func Kind(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case Text:
		return "text"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Time:
		return "time"
	case Array:
		return "array"
	case Record:
		return "record"
	default:
		return fmt.Sprintf("%T", v)
	}
}
