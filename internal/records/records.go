package records

import (
	"encoding/json"
	"errors"
	"maps"
	"slices"
)

// FieldsKey is the container key used by the nested record shape.
const FieldsKey = "fields"

var (
	ErrUnknownField      = errors.New("unknown field")
	ErrInvalidValue      = errors.New("invalid field value")
	ErrMissingField      = errors.New("missing required field")
	ErrMalformedRecord   = errors.New("malformed record")
	ErrInvalidAssignment = errors.New("invalid field assignment")
)

// Patch maps field names to absolute values applied to every record in a batch.
type Patch map[string]any

// Clone returns an independent copy of the patch's top-level mapping.
func (p Patch) Clone() Patch {
	if p == nil {
		return Patch{}
	}
	return maps.Clone(p)
}

// Keys returns the patch's field names in sorted order.
func (p Patch) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Set writes value under key, mutating the patch in place.
func Set(p Patch, key string, value any) {
	p[key] = value
}

// Record is the canonical in-memory shape of a remote record.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// Get returns the field stored under key, or [Missing].
func (r Record) Get(key string) Value {
	if v, ok := r.Fields[key]; ok {
		return Present(v)
	}
	return Missing
}

// Has reports whether key is present, even if blank.
func (r Record) Has(key string) bool {
	_, ok := r.Fields[key]
	return ok
}

// reserved keys are record metadata in the flat shape, never fields.
var reserved = map[string]bool{"id": true, "createdTime": true, FieldsKey: true}

// Normalize converts a raw record in either the nested or the flat shape into a [Record].
//
// Nested values take precedence; flat keys fill in anything the nested container lacks.
func Normalize(raw map[string]any) Record {
	rec := Record{Fields: map[string]any{}}
	if raw == nil {
		return rec
	}

	if id, ok := raw["id"].(string); ok {
		rec.ID = id
	}
	if created, ok := raw["createdTime"].(string); ok {
		rec.CreatedTime = created
	}

	for k, v := range raw {
		if !reserved[k] {
			rec.Fields[k] = v
		}
	}

	if nested, ok := raw[FieldsKey].(map[string]any); ok {
		for k, v := range nested {
			rec.Fields[k] = v
		}
	}

	return rec
}

// Get reads key from a raw record: the nested container first, then the flat top level.
func Get(raw map[string]any, key string) Value {
	if nested, ok := raw[FieldsKey].(map[string]any); ok {
		if v, ok := nested[key]; ok {
			return Present(v)
		}
	}
	if reserved[key] {
		return Missing
	}
	if v, ok := raw[key]; ok {
		return Present(v)
	}
	return Missing
}

// Value is a field read that distinguishes absence from presence.
type Value struct {
	raw     any
	present bool
}

// Missing is the value of a field absent from both record shapes.
var Missing = Value{}

// Present wraps v as a present value, including nil.
func Present(v any) Value {
	return Value{raw: v, present: true}
}

// IsMissing reports whether the field was absent.
func (v Value) IsMissing() bool { return !v.present }

// Raw returns the underlying value; nil for [Missing].
func (v Value) Raw() any { return v.raw }

// IsEmpty reports whether a present value is blank: null, "", or an empty list or object.
func (v Value) IsEmpty() bool {
	if !v.present {
		return false
	}
	switch t := v.raw.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// String returns the value as a string when it is one.
func (v Value) String() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok && v.present
}

// Float returns numeric values as float64.
func (v Value) Float() (float64, bool) {
	if !v.present {
		return 0, false
	}
	switch n := v.raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Bool returns the value as a bool when it is one.
func (v Value) Bool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok && v.present
}

// Equal reports whether a present value encodes to the same JSON as want.
//
// Comparing encodings treats 5 and 5.0 alike, which matters because the store
// returns every number as a float.
func (v Value) Equal(want any) bool {
	if !v.present {
		return false
	}
	a, errA := json.Marshal(v.raw)
	b, errB := json.Marshal(want)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}
