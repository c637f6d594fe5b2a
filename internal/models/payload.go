package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindMissing Kind = iota
	KindScalar
	KindMap
)

// PathSeparator separates segments of a tag path such as "sensors.temperature".
const PathSeparator = "."

// Value is one node of a channel message payload: a mapping of string keys
// to further values, a scalar leaf, or missing.
type Value struct {
	kind   Kind
	scalar interface{}
	fields map[string]Value
}

// Missing returns the value used for paths that do not resolve.
func Missing() Value { return Value{} }

// Scalar wraps a leaf value.
func Scalar(v interface{}) Value { return Value{kind: KindScalar, scalar: v} }

// Map builds a mapping value from already converted fields.
func Map(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindMap, fields: fields}
}

// FromAny converts decoded JSON (or YAML) data into a Value. Nested
// map[string]interface{} become mappings; everything else, including
// arrays and nulls, is a scalar.
func FromAny(v interface{}) Value {
	switch t := v.(type) {
	case Value:
		return t
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, child := range t {
			fields[k] = FromAny(child)
		}
		return Map(fields)
	case map[string]Value:
		return Map(t)
	default:
		return Scalar(t)
	}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether v is the missing variant.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Field returns the child stored under key. Scalars and missing values
// have no children.
func (v Value) Field(key string) Value {
	if v.kind != KindMap {
		return Missing()
	}
	child, ok := v.fields[key]
	if !ok {
		return Missing()
	}
	return child
}

// Lookup follows a dot-separated path. Any missing segment, or a segment
// that lands on a scalar before the path ends, yields Missing.
func (v Value) Lookup(path string) Value {
	if path == "" {
		return Missing()
	}
	current := v
	for _, key := range strings.Split(path, PathSeparator) {
		current = current.Field(key)
		if current.IsMissing() {
			return current
		}
	}
	return current
}

// Float coerces a scalar to a float64. Numbers, numeric strings and
// booleans convert; everything else (mappings, nulls, arrays, NaN) does not.
func (v Value) Float() (float64, bool) {
	if v.kind != KindScalar {
		return 0, false
	}

	var f float64
	switch t := v.scalar.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if t {
			f = 1
		}
	default:
		return 0, false
	}

	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Interface converts v back into plain Go data.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindMap:
		out := make(map[string]interface{}, len(v.fields))
		for k, child := range v.fields {
			out[k] = child.Interface()
		}
		return out
	case KindScalar:
		return v.scalar
	default:
		return nil
	}
}

// UnmarshalJSON decodes any JSON document, keeping numbers exact.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// MarshalJSON encodes v as plain JSON; missing encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}
