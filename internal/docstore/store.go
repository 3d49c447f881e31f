package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Observer receives one call per collection operation. Metrics implement it.
type Observer interface {
	ObserveStoreOp(collection, op string, err error, elapsed time.Duration)
}

// Store owns a Backend and hands out one Collection per name, so every
// component touching a collection shares the same write lock.
type Store struct {
	backend  Backend
	observer Observer

	mu          sync.Mutex
	collections map[string]*Collection
}

type StoreOption func(*Store)

func WithObserver(o Observer) StoreOption {
	return func(s *Store) { s.observer = o }
}

func NewStore(backend Backend, opts ...StoreOption) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("store backend is required")
	}
	s := &Store{
		backend:     backend,
		collections: make(map[string]*Collection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Backend() Backend {
	return s.backend
}

// Collection returns the collection called name. Options only take effect
// the first time a name is requested.
func (s *Store) Collection(name string, opts ...CollectionOption) (*Collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c := newCollection(name, s.backend, s.observer, opts...)
	s.collections[name] = c
	return c, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}
