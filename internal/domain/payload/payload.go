// Package payload models the schema-variable JSON records returned by the
// SumUp API. Shapes differ between endpoint versions, so consumers probe an
// ordered list of candidate field paths instead of decoding into fixed structs.
package payload

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Payload is a raw provider record. It is archived verbatim alongside the
// normalized transaction row.
type Payload map[string]interface{}

// Get resolves a dot-separated path ("receipt_data.items") against the
// payload, descending through nested objects. The second return reports
// whether the full path was present.
func (p Payload) Get(path string) (interface{}, bool) {
	if p == nil {
		return nil, false
	}

	parts := strings.Split(path, ".")
	var current interface{} = map[string]interface{}(p)
	for _, part := range parts {
		obj, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// FirstString returns the first path that resolves to a non-empty string.
func (p Payload) FirstString(paths ...string) (string, bool) {
	for _, path := range paths {
		v, ok := p.Get(path)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// FirstNumber returns the first path that resolves to a parseable number.
// String values are parsed; unparsable garbage is skipped rather than
// surfaced, so callers never see NaN.
func (p Payload) FirstNumber(paths ...string) (float64, bool) {
	for _, path := range paths {
		v, ok := p.Get(path)
		if !ok {
			continue
		}
		if f, ok := ToNumber(v); ok {
			return f, true
		}
	}
	return 0, false
}

// FirstArray returns the first path that resolves to a non-empty array.
func (p Payload) FirstArray(paths ...string) ([]interface{}, bool) {
	for _, path := range paths {
		v, ok := p.Get(path)
		if !ok {
			continue
		}
		if arr, ok := v.([]interface{}); ok && len(arr) > 0 {
			return arr, true
		}
	}
	return nil, false
}

// Merge returns a new payload with every key of other laid over p. Shallow;
// nested objects are replaced wholesale, matching JSON spread semantics.
func (p Payload) Merge(other Payload) Payload {
	merged := make(Payload, len(p)+len(other))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	c := make(Payload, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// AsPayload converts a decoded JSON value into a Payload when it is an object.
func AsPayload(v interface{}) (Payload, bool) {
	m, ok := asMap(v)
	if !ok {
		return nil, false
	}
	return Payload(m), true
}

// ToNumber coerces heterogeneous JSON values to a finite float64. Strings are
// parsed with surrounding whitespace trimmed. Anything unparsable, NaN, or
// infinite reports false.
func ToNumber(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Payload:
		return map[string]interface{}(m), true
	default:
		return nil, false
	}
}
