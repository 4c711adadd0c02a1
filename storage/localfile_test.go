package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"docstore/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupLocalAdapter(t *testing.T) (*LocalFileAdapter, string) {
	t.Helper()
	dir := t.TempDir()

	logger, _ := zap.NewDevelopment()
	ids := NewIDRegistry()
	ids.Register("users", "usr")

	adapter := NewLocalFileAdapter(dir, ids, logger.Sugar())
	require.NoError(t, adapter.Connect(context.Background()))
	return adapter, dir
}

func TestLocalFileCRUDScenario(t *testing.T) {
	adapter, _ := setupLocalAdapter(t)
	ctx := context.Background()

	// Insert assigns a prefixed id.
	inserted, err := adapter.InsertOne(ctx, "users", core.Document{"name": "Ada"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^usr_[0-9a-f]{32}$`), inserted.ID())
	assert.Equal(t, "Ada", inserted["name"])

	// readAll returns exactly one document.
	docs, err := adapter.ReadAll(ctx, "users")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, inserted, docs[0])

	// Round-trip by id.
	found, err := adapter.FindOne(ctx, "users", core.Predicate{core.IDField: inserted.ID()})
	require.NoError(t, err)
	assert.Equal(t, inserted, found)

	// updateOne shallow-merges; untouched fields survive.
	updated, err := adapter.UpdateOne(ctx, "users", inserted.ID(), core.Document{"name": "Ada L."})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated["name"])
	assert.Equal(t, inserted.ID(), updated.ID())

	found, err = adapter.FindOne(ctx, "users", core.Predicate{core.IDField: inserted.ID()})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", found["name"])

	// deleteOne then readAll is empty.
	removed, err := adapter.DeleteOne(ctx, "users", inserted.ID())
	require.NoError(t, err)
	assert.True(t, removed)

	docs, err = adapter.ReadAll(ctx, "users")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLocalFileFindOneNotFound(t *testing.T) {
	adapter, _ := setupLocalAdapter(t)

	_, err := adapter.FindOne(context.Background(), "users", core.Predicate{"name": "nobody"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalFileUpdateMissingDocument(t *testing.T) {
	adapter, _ := setupLocalAdapter(t)

	_, err := adapter.UpdateOne(context.Background(), "users", "usr_missing", core.Document{"name": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalFileDeleteMissingDocument(t *testing.T) {
	adapter, _ := setupLocalAdapter(t)

	removed, err := adapter.DeleteOne(context.Background(), "users", "usr_missing")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLocalFileInsertKeepsCallerID(t *testing.T) {
	adapter, _ := setupLocalAdapter(t)
	ctx := context.Background()

	inserted, err := adapter.InsertOne(ctx, "users", core.Document{"id": "usr_fixed", "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "usr_fixed", inserted.ID())
}

func TestLocalFilePersistsAcrossReconnect(t *testing.T) {
	adapter, dir := setupLocalAdapter(t)
	ctx := context.Background()

	inserted, err := adapter.InsertOne(ctx, "users", core.Document{"name": "Ada"})
	require.NoError(t, err)

	// A fresh adapter over the same directory sees the same data.
	logger, _ := zap.NewDevelopment()
	reopened := NewLocalFileAdapter(dir, NewIDRegistry(), logger.Sugar())
	require.NoError(t, reopened.Connect(ctx))

	docs, err := reopened.ReadAll(ctx, "users")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, inserted.ID(), docs[0].ID())
}

func TestLocalFileWritesAreAtomic(t *testing.T) {
	adapter, dir := setupLocalAdapter(t)
	ctx := context.Background()

	_, err := adapter.InsertOne(ctx, "users", core.Document{"name": "Ada"})
	require.NoError(t, err)

	// The durable file exists and is valid JSON; no temp file remains.
	data, err := os.ReadFile(filepath.Join(dir, "users.json"))
	require.NoError(t, err)
	var docs []core.Document
	require.NoError(t, json.Unmarshal(data, &docs))
	assert.Len(t, docs, 1)

	_, err = os.Stat(filepath.Join(dir, "users.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalFileReplaceAll(t *testing.T) {
	adapter, _ := setupLocalAdapter(t)
	ctx := context.Background()

	_, err := adapter.InsertOne(ctx, "users", core.Document{"name": "Ada"})
	require.NoError(t, err)

	replacement := []core.Document{
		{"id": "usr_a", "name": "Grace"},
		{"id": "usr_b", "name": "Edsger"},
	}
	require.NoError(t, adapter.ReplaceAll(ctx, "users", replacement))

	docs, err := adapter.ReadAll(ctx, "users")
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	// Empty replacement clears the collection.
	require.NoError(t, adapter.ReplaceAll(ctx, "users", nil))
	docs, err = adapter.ReadAll(ctx, "users")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLocalFileReadAllReturnsCopies(t *testing.T) {
	adapter, _ := setupLocalAdapter(t)
	ctx := context.Background()

	inserted, err := adapter.InsertOne(ctx, "users", core.Document{"name": "Ada"})
	require.NoError(t, err)

	docs, err := adapter.ReadAll(ctx, "users")
	require.NoError(t, err)
	docs[0]["name"] = "mutated"

	found, err := adapter.FindOne(ctx, "users", core.Predicate{core.IDField: inserted.ID()})
	require.NoError(t, err)
	assert.Equal(t, "Ada", found["name"])
}

func TestLocalFileEnsureCollectionRegistersPrefix(t *testing.T) {
	dir := t.TempDir()
	logger, _ := zap.NewDevelopment()
	ids := NewIDRegistry()
	adapter := NewLocalFileAdapter(dir, ids, logger.Sugar())
	ctx := context.Background()
	require.NoError(t, adapter.Connect(ctx))

	require.NoError(t, adapter.EnsureCollection(ctx, CollectionSpec{Name: "orders", IDPrefix: "ord"}))

	inserted, err := adapter.InsertOne(ctx, "orders", core.Document{"total": float64(9)})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^ord_[0-9a-f]{32}$`), inserted.ID())
}
