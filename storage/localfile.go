package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"docstore/core"
	"docstore/metrics"

	"go.uber.org/zap"
)

// LocalFileAdapter serves documents from an in-memory mirror synchronized
// with one JSON file per collection. Writes rewrite the whole file through
// a temp file and an atomic rename, so a crash mid-write never truncates
// durable state. It needs no external service and must always connect.
type LocalFileAdapter struct {
	dir    string
	logger *zap.SugaredLogger
	ids    *IDRegistry

	mu          sync.RWMutex
	collections map[string][]core.Document
}

// NewLocalFileAdapter creates an adapter rooted at dir. Nothing is touched
// until Connect.
func NewLocalFileAdapter(dir string, ids *IDRegistry, logger *zap.SugaredLogger) *LocalFileAdapter {
	return &LocalFileAdapter{
		dir:         dir,
		logger:      logger,
		ids:         ids,
		collections: make(map[string][]core.Document),
	}
}

func (a *LocalFileAdapter) Name() core.Backend { return core.BackendLocal }

// Connect creates the data directory and loads every existing collection
// file into the mirror.
func (a *LocalFileAdapter) Connect(ctx context.Context) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return &ConnectionError{Backend: core.BackendLocal, Err: err}
	}

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return &ConnectionError{Backend: core.BackendLocal, Err: err}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.collections = make(map[string][]core.Document)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		docs, err := a.loadFile(name)
		if err != nil {
			return &ConnectionError{Backend: core.BackendLocal, Err: err}
		}
		a.collections[name] = docs
	}

	a.logger.Infow("Local file store ready",
		"dir", a.dir,
		"collections", len(a.collections))
	return nil
}

func (a *LocalFileAdapter) Close(ctx context.Context) error { return nil }

// HealthCheck verifies the data directory is still writable.
func (a *LocalFileAdapter) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(a.dir)
	if err != nil {
		return &ConnectionError{Backend: core.BackendLocal, Err: err}
	}
	if !info.IsDir() {
		return &ConnectionError{Backend: core.BackendLocal, Err: fmt.Errorf("%s is not a directory", a.dir)}
	}
	return nil
}

func (a *LocalFileAdapter) ReadAll(ctx context.Context, collection string) ([]core.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	metrics.Operations.WithLabelValues(string(core.BackendLocal), "readAll").Inc()

	docs := a.collections[collection]
	out := make([]core.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out, nil
}

// FindOne always performs a full scan over the mirror.
func (a *LocalFileAdapter) FindOne(ctx context.Context, collection string, predicate core.Predicate) (core.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	metrics.Operations.WithLabelValues(string(core.BackendLocal), "findOne").Inc()

	for _, d := range a.collections[collection] {
		if predicate.Matches(d) {
			return d.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (a *LocalFileAdapter) InsertOne(ctx context.Context, collection string, doc core.Document) (core.Document, error) {
	stored := doc.Clone()
	if stored == nil {
		stored = core.Document{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	metrics.Operations.WithLabelValues(string(core.BackendLocal), "insertOne").Inc()

	if _, err := assignID(a.ids, collection, stored); err != nil {
		return nil, err
	}
	next := append(a.collections[collection], stored)
	if err := a.persistLocked(collection, next); err != nil {
		return nil, err
	}
	a.collections[collection] = next
	return stored.Clone(), nil
}

func (a *LocalFileAdapter) UpdateOne(ctx context.Context, collection, id string, patch core.Document) (core.Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	metrics.Operations.WithLabelValues(string(core.BackendLocal), "updateOne").Inc()

	docs := a.collections[collection]
	for i, d := range docs {
		if d.ID() != id {
			continue
		}
		merged := d.Merge(patch)
		merged[core.IDField] = id
		next := make([]core.Document, len(docs))
		copy(next, docs)
		next[i] = merged
		if err := a.persistLocked(collection, next); err != nil {
			return nil, err
		}
		a.collections[collection] = next
		return merged.Clone(), nil
	}
	return nil, ErrNotFound
}

func (a *LocalFileAdapter) DeleteOne(ctx context.Context, collection, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	metrics.Operations.WithLabelValues(string(core.BackendLocal), "deleteOne").Inc()

	docs := a.collections[collection]
	for i, d := range docs {
		if d.ID() != id {
			continue
		}
		next := make([]core.Document, 0, len(docs)-1)
		next = append(next, docs[:i]...)
		next = append(next, docs[i+1:]...)
		if err := a.persistLocked(collection, next); err != nil {
			return false, err
		}
		a.collections[collection] = next
		return true, nil
	}
	return false, nil
}

func (a *LocalFileAdapter) ReplaceAll(ctx context.Context, collection string, docs []core.Document) error {
	next := make([]core.Document, len(docs))
	for i, d := range docs {
		next[i] = d.Clone()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	metrics.Operations.WithLabelValues(string(core.BackendLocal), "replaceAll").Inc()

	if err := a.persistLocked(collection, next); err != nil {
		return err
	}
	a.collections[collection] = next
	return nil
}

// EnsureCollection is a no-op beyond registering the id prefix: collection
// files appear on first write and the file store has no indexes.
func (a *LocalFileAdapter) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if a.ids != nil {
		a.ids.Register(spec.Name, spec.IDPrefix)
	}
	return nil
}

func (a *LocalFileAdapter) path(collection string) string {
	return filepath.Join(a.dir, collection+".json")
}

func (a *LocalFileAdapter) loadFile(collection string) ([]core.Document, error) {
	data, err := os.ReadFile(a.path(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}
	var docs []core.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode collection %s: %w", collection, err)
	}
	return docs, nil
}

// persistLocked rewrites the collection file. Callers hold a.mu.
func (a *LocalFileAdapter) persistLocked(collection string, docs []core.Document) error {
	if docs == nil {
		docs = []core.Document{}
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode collection %s: %w", collection, err)
	}

	target := a.path(collection)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace %s: %w", target, err)
	}
	return nil
}
