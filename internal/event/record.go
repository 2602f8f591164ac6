package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Conventional keys used for identity and time derivation.
const (
	KeyID          = "id"
	KeyEventID     = "event_id"
	KeyURL         = "url"
	KeyStartISO    = "start_iso8601"
	KeyDate        = "date"
	KeySummary     = "summary"
	KeyLocation    = "location"
	KeyDescription = "description"
)

// Record is one event as received from the feed.
//
// Values are whatever encoding/json produces with UseNumber: string,
// json.Number, bool, nil, map[string]any and []any. Unknown keys are kept and
// round-trip unchanged through storage.
type Record map[string]any

// String returns the string value at key, or "" when the key is missing or not
// a string.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return cloneValue(map[string]any(r)).(map[string]any)
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case Record:
		return cloneValue(map[string]any(x))
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	default:
		return v
	}
}

// Decode parses a single JSON object into a Record, keeping numbers as
// json.Number.
func Decode(b []byte) (Record, error) {
	v, err := decodeJSON(b)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("event: payload is %T, want object", v)
	}
	return Record(m), nil
}

// DecodeAny parses arbitrary JSON with UseNumber.
func DecodeAny(b []byte) (any, error) {
	return decodeJSON(b)
}

func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("event: trailing data after JSON value")
	}
	return v, nil
}

// Normalize turns decoded feed data into records.
//
// Accepted shapes:
//   - a list of objects (non-object elements are skipped)
//   - an object with an "events" list
//   - any other object (treated as a single event)
//
// Anything else yields no records.
func Normalize(data any) []Record {
	switch x := data.(type) {
	case []any:
		return objects(x)
	case map[string]any:
		if evs, ok := x["events"].([]any); ok {
			return objects(evs)
		}
		return []Record{Record(x)}
	case Record:
		return Normalize(map[string]any(x))
	default:
		return nil
	}
}

func objects(in []any) []Record {
	out := make([]Record, 0, len(in))
	for _, v := range in {
		switch m := v.(type) {
		case map[string]any:
			out = append(out, Record(m))
		case Record:
			out = append(out, m)
		}
	}
	return out
}

// Truthy reports whether v counts as set: non-empty strings and collections,
// non-zero numbers and true.
func Truthy(v any) bool { return truthy(v) }

// Text renders a scalar value for display; see IdentityKey for the rules.
func Text(v any) string { return stringForm(v) }
