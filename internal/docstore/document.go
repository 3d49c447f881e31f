package docstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Document is one stored record. Fields are kept as raw JSON so that
// unknown fields survive a read-modify-write cycle untouched.
type Document map[string]json.RawMessage

// Predicate selects documents in FindWhere, FindOne, Count and DeleteWhere.
type Predicate func(Document) bool

// Encode converts any JSON-marshalable value with object shape into a Document.
func Encode(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrInvalidDocument, err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: not an object: %v", ErrInvalidDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: null document", ErrInvalidDocument)
	}
	return doc, nil
}

// ID returns the document's "id" field or "" when it is missing or not a string.
func (d Document) ID() string {
	return d.String("id")
}

// String returns a string field, or "" when absent or of another type.
func (d Document) String(field string) string {
	raw, ok := d[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Bool returns a boolean field and whether it was present as a boolean.
func (d Document) Bool(field string) (bool, bool) {
	raw, ok := d[field]
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, false
	}
	return b, true
}

// Set marshals v into field.
func (d Document) Set(field string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: field %s: %v", ErrInvalidDocument, field, err)
	}
	d[field] = b
	return nil
}

// Decode unmarshals the whole document into v.
func (d Document) Decode(v any) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInvalidDocument, err)
	}
	return nil
}

func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// FieldEquals matches documents whose string field equals value.
func FieldEquals(field, value string) Predicate {
	return func(d Document) bool { return d.String(field) == value }
}

// FieldEqualFold matches documents whose string field equals value ignoring case.
func FieldEqualFold(field, value string) Predicate {
	value = strings.TrimSpace(value)
	return func(d Document) bool { return strings.EqualFold(strings.TrimSpace(d.String(field)), value) }
}

func cloneAll(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Clone())
	}
	return out
}
