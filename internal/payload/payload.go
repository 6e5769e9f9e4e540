// Package payload turns CRM webhook bodies into catalog items.
//
// CRM producers are inconsistent about envelopes and field types. Normalize
// accepts the envelope shapes seen in practice and Extract reads one item
// with synonym and type tolerance:
//
//	v, err := payload.Decode(body)
//	for i, m := range payload.Normalize(v) {
//	    item, err := payload.Extract(i, m)
//	    ...
//	}
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInvalidJSON = errors.New("payload: invalid JSON")
	ErrMissingID   = errors.New("missing product id")
	ErrInvalidID   = errors.New("invalid product id")
)

// FieldError reports a field that made an item unusable.
type FieldError struct {
	Field string
	Value any
	Err   error
}

func (e *FieldError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s %v: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Decode parses raw JSON keeping numbers as json.Number so their literal
// text survives until coercion.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after value", ErrInvalidJSON)
	}
	return v, nil
}

// Normalize returns the item mappings carried by v, in order:
//
//	{"data": {...}}     → that object
//	{"data": [...]}     → its mapping entries
//	{"results": [...]}  → its mapping entries
//	[...]               → its mapping entries
//	{...}               → the mapping itself
//
// Anything else, including null and {}, yields nothing.
func Normalize(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return nil
		}
		switch data := t["data"].(type) {
		case map[string]any:
			return []map[string]any{data}
		case []any:
			return mappings(data)
		}
		if results, ok := t["results"].([]any); ok {
			return mappings(results)
		}
		return []map[string]any{t}
	case []any:
		return mappings(t)
	default:
		return nil
	}
}

func mappings(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// EventName returns the top-level "event" of a mapping payload.
func EventName(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m["event"].(string)
	return strings.TrimSpace(s)
}

// DeleteTarget returns the single mapping a delete event refers to: the
// "data" object when present, otherwise the payload itself.
func DeleteTarget(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if data, ok := m["data"].(map[string]any); ok {
		return data, true
	}
	return m, true
}
