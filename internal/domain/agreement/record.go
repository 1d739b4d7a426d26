package agreement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Record is a decoded JSON object. Numbers are kept as json.Number so that
// values survive a fetch/checkpoint/POST round trip unchanged.
type Record map[string]any

// FieldPath addresses a nested object field with dot notation.
type FieldPath string

// Segments splits the path into its keys, ignoring empty segments.
func (p FieldPath) Segments() []string {
	parts := strings.Split(string(p), ".")
	segments := parts[:0]
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// String returns the path in dot notation.
func (p FieldPath) String() string {
	return string(p)
}

// DecodeRecord parses a JSON object, keeping numbers as json.Number.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	obj, ok := asObject(v)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidJSON, v)
	}
	return obj, nil
}

// Lookup returns the value at path and whether every segment was present.
func (r Record) Lookup(path FieldPath) (any, bool) {
	segments := path.Segments()
	if len(segments) == 0 {
		return nil, false
	}

	var current any = r
	for _, key := range segments {
		obj, ok := asObject(current)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Get returns the value at path or nil.
func (r Record) Get(path FieldPath) any {
	v, _ := r.Lookup(path)
	return v
}

// Has reports whether the path holds a non-null value.
func (r Record) Has(path FieldPath) bool {
	v, ok := r.Lookup(path)
	return ok && v != nil
}

// String returns the value at path rendered as text. Missing and null values
// yield the empty string.
func (r Record) String(path FieldPath) string {
	return Text(r.Get(path))
}

// Object returns the nested object at path, or nil.
func (r Record) Object(path FieldPath) Record {
	obj, _ := asObject(r.Get(path))
	return obj
}

// Objects returns the objects of the array at path. A lone object is treated
// as a one element array.
func (r Record) Objects(path FieldPath) []Record {
	return Objects(r.Get(path))
}

// Truthy reports whether the value at path is set to something non-empty.
func (r Record) Truthy(path FieldPath) bool {
	return Truthy(r.Get(path))
}

// Decimal returns the numeric value at path.
func (r Record) Decimal(path FieldPath) (decimal.Decimal, bool) {
	return ToDecimal(r.Get(path))
}

// ID returns the top level id.
func (r Record) ID() string {
	return r.String("id")
}

// Set stores value at path, creating or replacing intermediate objects.
func (r Record) Set(path FieldPath, value any) {
	segments := path.Segments()
	if len(segments) == 0 {
		return
	}

	current := r
	for _, key := range segments[:len(segments)-1] {
		next, ok := asObject(current[key])
		if !ok {
			next = Record{}
			current[key] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// Delete removes the field at path and reports whether it existed.
func (r Record) Delete(path FieldPath) bool {
	segments := path.Segments()
	if len(segments) == 0 {
		return false
	}

	parent := r
	if len(segments) > 1 {
		obj, ok := asObject(r.Get(FieldPath(strings.Join(segments[:len(segments)-1], "."))))
		if !ok {
			return false
		}
		parent = obj
	}
	last := segments[len(segments)-1]
	if _, ok := parent[last]; !ok {
		return false
	}
	delete(parent, last)
	return true
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return deepCopy(r).(Record)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case Record:
		out := make(Record, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case map[string]any:
		out := make(Record, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	case []Record:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

func asObject(v any) (Record, bool) {
	switch t := v.(type) {
	case Record:
		return t, t != nil
	case map[string]any:
		return Record(t), t != nil
	default:
		return nil, false
	}
}

// Objects returns the object elements of v. A lone object is returned as a
// one element slice; anything else yields nil.
func Objects(v any) []Record {
	if obj, ok := asObject(v); ok {
		return []Record{obj}
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []Record:
		return t
	default:
		return nil
	}

	out := make([]Record, 0, len(items))
	for _, item := range items {
		if obj, ok := asObject(item); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Text renders a scalar JSON value as text. Null becomes the empty string.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}

// Truthy mirrors the API's notion of a "set" value: null, false, zero, empty
// strings and empty containers are unset.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return err != nil || !d.IsZero()
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case Record:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case []Record:
		return len(t) > 0
	default:
		return true
	}
}

// ToDecimal converts a JSON number, native number or numeric string.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case decimal.Decimal:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}
