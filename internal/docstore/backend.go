package docstore

import (
	"context"
	"fmt"
	"sync"
)

// Backend persists whole collections. Implementations replace the full
// contents of a collection on Save and must return ErrIO-wrapped errors for
// storage failures.
type Backend interface {
	Load(ctx context.Context, collection string) ([]Document, error)
	Save(ctx context.Context, collection string, docs []Document) error
	Ping(ctx context.Context) error
}

func validateCollectionName(name string) error {
	if name == "" || len(name) > 64 {
		return fmt.Errorf("%w: invalid collection name %q", ErrInvalidDocument, name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("%w: invalid collection name %q", ErrInvalidDocument, name)
		}
	}
	return nil
}

// MemoryBackend keeps collections in process memory. Used by tests and the
// "memory" store backend.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string][]Document)}
}

func (b *MemoryBackend) Load(_ context.Context, collection string) ([]Document, error) {
	if err := validateCollectionName(collection); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneAll(b.collections[collection]), nil
}

func (b *MemoryBackend) Save(_ context.Context, collection string, docs []Document) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.collections[collection] = cloneAll(docs)
	return nil
}

func (b *MemoryBackend) Ping(context.Context) error { return nil }
