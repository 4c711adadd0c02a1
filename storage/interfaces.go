package storage

import (
	"context"
	"fmt"
	"sync"

	"docstore/core"
)

// Adapter is the capability interface every backend implements. Operations
// are safe for concurrent use; ordering between callers is not serialized
// (last committed write wins on a given id).
//
// Error contract: ReadAll/FindOne/UpdateOne/DeleteOne return ErrNotFound
// for missing documents where applicable; InsertOne returns ErrValidation
// when an id cannot be assigned; Connect wraps failures in ConnectionError.
// Errors surfaced after a backend is active are never converted into
// fallback.
type Adapter interface {
	// Name identifies the backend this adapter serves.
	Name() core.Backend

	// Connect establishes and verifies the backend connection. It must
	// honour ctx cancellation so the timeout guard can bound it.
	Connect(ctx context.Context) error

	// Close releases the connection. Safe to call on a never-connected
	// adapter.
	Close(ctx context.Context) error

	// HealthCheck verifies the connection is still usable.
	HealthCheck(ctx context.Context) error

	// ReadAll returns every document in the collection. Order is whatever
	// the backend provides naturally.
	ReadAll(ctx context.Context, collection string) ([]core.Document, error)

	// FindOne returns the first document matching the predicate, or
	// ErrNotFound.
	FindOne(ctx context.Context, collection string, predicate core.Predicate) (core.Document, error)

	// InsertOne persists the document, assigning an id when absent, and
	// returns the stored document with its id populated.
	InsertOne(ctx context.Context, collection string, doc core.Document) (core.Document, error)

	// UpdateOne shallow-merges patch into the document with the given id
	// and returns the result, or ErrNotFound.
	UpdateOne(ctx context.Context, collection, id string, patch core.Document) (core.Document, error)

	// DeleteOne removes the document with the given id. The boolean
	// reports whether anything was removed.
	DeleteOne(ctx context.Context, collection, id string) (bool, error)

	// ReplaceAll replaces the collection contents wholesale. Used only by
	// migration and rollback tooling.
	ReplaceAll(ctx context.Context, collection string, docs []core.Document) error

	// EnsureCollection idempotently creates the collection and its
	// declared indexes where the backend supports explicit creation.
	EnsureCollection(ctx context.Context, spec CollectionSpec) error
}

// IndexSpec declares an index on a collection. Applied idempotently by the
// bootstrapper; "already exists" backend responses count as success.
type IndexSpec struct {
	Fields []string `yaml:"fields"`
	Unique bool     `yaml:"unique"`
}

// CollectionSpec declares a collection, the prefix its generated ids
// carry, and its indexes.
type CollectionSpec struct {
	Name     string      `yaml:"name"`
	IDPrefix string      `yaml:"id_prefix"`
	Indexes  []IndexSpec `yaml:"indexes"`
}

// IDRegistry maps collection names to their id prefixes. Populated by the
// bootstrapper from the collection manifest and consulted by adapters when
// assigning ids at insert time.
type IDRegistry struct {
	mu       sync.RWMutex
	prefixes map[string]string
}

// DefaultIDPrefix is used for collections without a declared prefix.
const DefaultIDPrefix = "doc"

// NewIDRegistry returns an empty registry.
func NewIDRegistry() *IDRegistry {
	return &IDRegistry{prefixes: make(map[string]string)}
}

// Register records the id prefix for a collection. Empty prefixes are
// ignored.
func (r *IDRegistry) Register(collection, prefix string) {
	if prefix == "" {
		return
	}
	r.mu.Lock()
	r.prefixes[collection] = prefix
	r.mu.Unlock()
}

// Prefix returns the registered prefix for collection, or DefaultIDPrefix.
func (r *IDRegistry) Prefix(collection string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.prefixes[collection]; ok {
		return p
	}
	return DefaultIDPrefix
}

// assignID fills in the document's id field when absent. Returns the id in
// use, or ErrValidation when generation fails.
func assignID(reg *IDRegistry, collection string, doc core.Document) (string, error) {
	if id := doc.ID(); id != "" {
		return id, nil
	}
	prefix := DefaultIDPrefix
	if reg != nil {
		prefix = reg.Prefix(collection)
	}
	id, err := core.GenerateID(prefix)
	if err != nil {
		return "", fmt.Errorf("%w: cannot assign id: %v", ErrValidation, err)
	}
	doc[core.IDField] = id
	return id, nil
}
