// Package models defines the core domain entities for the workflow runtime.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Document is a parsed JSON object used for instance data, task configuration
// and trigger configuration. It is parsed once at the storage boundary and
// passed around in parsed form for the lifetime of an operation.
type Document map[string]any

// ParseDocument parses raw JSON text into a Document. Empty input yields an
// empty document.
func ParseDocument(raw []byte) (Document, error) {
	if len(raw) == 0 {
		return Document{}, nil
	}

	var doc Document

	err := json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	if doc == nil {
		doc = Document{}
	}

	return doc, nil
}

// JSON serializes the document back to JSON text.
func (d Document) JSON() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}

	return raw, nil
}

// Merge overlays other onto the document, last write wins per top-level field.
// Fields absent from other are preserved as-is, including nested objects.
func (d Document) Merge(other Document) Document {
	merged := make(Document, len(d)+len(other))

	for key, value := range d {
		merged[key] = value
	}

	for key, value := range other {
		merged[key] = value
	}

	return merged
}

// Clone returns a copy that shares no top-level storage with the original.
func (d Document) Clone() Document {
	clone := make(Document, len(d))
	for key, value := range d {
		clone[key] = value
	}

	return clone
}

// StringField returns the stringified value of a top-level field. Strings are
// returned verbatim, numbers and booleans in their JSON form, and composite
// values as serialized JSON.
func (d Document) StringField(field string) (string, bool) {
	value, ok := d[field]
	if !ok {
		return "", false
	}

	return Stringify(value), true
}

// Lookup resolves a dotted path ("order.customer.id") through nested objects.
// It reports false when any segment is missing or a non-object is traversed.
func (d Document) Lookup(path string) (any, bool) {
	var current any = map[string]any(d)

	for _, segment := range strings.Split(path, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = object[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// Stringify renders an untyped JSON value the way it appears in JSON text,
// without surrounding quotes for strings.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "null"
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(raw)
	}
}
