package storage

import (
	"context"
	"errors"
	"sync"

	"docstore/core"
)

// stubAdapter is an in-memory Adapter with programmable failure modes,
// used by the selector and dual-write tests.
type stubAdapter struct {
	backend core.Backend

	connectErr error
	// connectHang makes Connect block until its context is cancelled.
	connectHang bool
	// failWrites makes every mutating operation return this error.
	failWrites error

	mu          sync.Mutex
	connects    int
	closes      int
	collections map[string][]core.Document
	ensured     []string
}

func newStubAdapter(backend core.Backend) *stubAdapter {
	return &stubAdapter{
		backend:     backend,
		collections: make(map[string][]core.Document),
	}
}

func (s *stubAdapter) Name() core.Backend { return s.backend }

func (s *stubAdapter) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.connects++
	s.mu.Unlock()

	if s.connectHang {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.connectErr
}

func (s *stubAdapter) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

func (s *stubAdapter) HealthCheck(ctx context.Context) error { return s.connectErr }

func (s *stubAdapter) ReadAll(ctx context.Context, collection string) ([]core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Document, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		out = append(out, doc.Clone())
	}
	return out, nil
}

func (s *stubAdapter) FindOne(ctx context.Context, collection string, predicate core.Predicate) (core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.collections[collection] {
		if predicate.Matches(doc) {
			return doc.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubAdapter) InsertOne(ctx context.Context, collection string, doc core.Document) (core.Document, error) {
	if s.failWrites != nil {
		return nil, s.failWrites
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := doc.Clone()
	if stored.ID() == "" {
		id, err := core.GenerateID("stub")
		if err != nil {
			return nil, err
		}
		stored[core.IDField] = id
	}
	s.collections[collection] = append(s.collections[collection], stored)
	return stored.Clone(), nil
}

func (s *stubAdapter) UpdateOne(ctx context.Context, collection, id string, patch core.Document) (core.Document, error) {
	if s.failWrites != nil {
		return nil, s.failWrites
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range s.collections[collection] {
		if doc.ID() == id {
			merged := doc.Merge(patch)
			merged[core.IDField] = id
			s.collections[collection][i] = merged
			return merged.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubAdapter) DeleteOne(ctx context.Context, collection, id string) (bool, error) {
	if s.failWrites != nil {
		return false, s.failWrites
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collections[collection]
	for i, doc := range docs {
		if doc.ID() == id {
			s.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *stubAdapter) ReplaceAll(ctx context.Context, collection string, docs []core.Document) error {
	if s.failWrites != nil {
		return s.failWrites
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	replacement := make([]core.Document, 0, len(docs))
	for _, doc := range docs {
		replacement = append(replacement, doc.Clone())
	}
	s.collections[collection] = replacement
	return nil
}

func (s *stubAdapter) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if s.failWrites != nil {
		return s.failWrites
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured = append(s.ensured, spec.Name)
	if _, ok := s.collections[spec.Name]; !ok {
		s.collections[spec.Name] = nil
	}
	return nil
}

func (s *stubAdapter) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *stubAdapter) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *stubAdapter) count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

var errStubDown = errors.New("stub backend down")
