package content

import (
	"fmt"

	"maritimeacademy/site-admin/internal/docstore"
)

// Fields a patch may never touch. Timestamps belong to the collection and
// the counters only move through their own operations.
var protectedFields = map[string]struct{}{
	"id":           {},
	"created_at":   {},
	"updated_at":   {},
	"created_by":   {},
	"registered":   {},
	"views":        {},
	"published_at": {},
}

// encodeNew turns a fresh record into a document, leaving id and
// timestamps for the collection to assign.
func encodeNew(v any) (docstore.Document, error) {
	doc, err := docstore.Encode(v)
	if err != nil {
		return nil, err
	}
	if doc.ID() == "" {
		delete(doc, "id")
	}
	delete(doc, createdField)
	delete(doc, updatedField)
	return doc, nil
}

func mergePatch(cur, patch docstore.Document) docstore.Document {
	for k, v := range patch {
		if _, ok := protectedFields[k]; ok {
			continue
		}
		cur[k] = append([]byte(nil), v...)
	}
	return cur
}

func decodeInto(doc docstore.Document, v any) error {
	if err := doc.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
