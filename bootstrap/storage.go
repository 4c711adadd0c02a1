package bootstrap

import (
	"context"
	"fmt"

	"docstore/config"
	"docstore/core"
	"docstore/storage"

	"go.uber.org/zap"
)

// StorageComponents holds the wired persistence layer: the selector owning
// backend state, and Store, the Adapter the rest of the application calls
// (the selector router, optionally wrapped in a dual-writer).
type StorageComponents struct {
	Selector  *storage.Selector
	Store     storage.Adapter
	IDs       *storage.IDRegistry
	Manifest  *storage.Manifest
	secondary storage.Adapter
}

// BuildCandidates assembles the preference-ordered candidate list from
// configuration. Order is fixed: primary cloud, secondary cloud, local
// file. The local candidate is always configured, so selection can never
// come up empty.
func BuildCandidates(cfg *config.Config, ids *storage.IDRegistry, sugar *zap.SugaredLogger) []storage.Candidate {
	mongo := storage.NewMongoAdapter(cfg.MongoDB.URI, cfg.MongoDB.Database, cfg.MongoDB.MaxPoolSize, ids, sugar)
	dynamo := storage.NewDynamoAdapter(storage.DynamoConfig{
		Region:          cfg.DynamoDB.Region,
		Endpoint:        cfg.DynamoDB.Endpoint,
		TablePrefix:     cfg.DynamoDB.TablePrefix,
		AccessKeyID:     cfg.DynamoDB.AccessKeyID,
		SecretAccessKey: cfg.DynamoDB.SecretAccessKey,
	}, ids, sugar)
	local := storage.NewLocalFileAdapter(cfg.LocalFile.DataDir, ids, sugar)

	return []storage.Candidate{
		{
			Adapter:    mongo,
			Configured: cfg.MongoConfigured(),
			SkipReason: "primary: mongodb.uri not set",
		},
		{
			Adapter:    dynamo,
			Configured: cfg.DynamoConfigured(),
			SkipReason: "secondary: dynamodb credentials/endpoint not set",
		},
		{
			Adapter:    local,
			Configured: true,
		},
	}
}

// InitStorage runs backend selection, wires the optional dual-write
// mirror, and bootstraps declared collections. Connection failures on
// cloud candidates degrade to the next candidate; only an unexpected
// local-file failure surfaces as an error.
func InitStorage(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	ids := storage.NewIDRegistry()
	candidates := BuildCandidates(cfg, ids, sugar)

	selector := storage.NewSelector(candidates, cfg.Selector.ConnectTimeout, sugar)
	if err := selector.Select(ctx); err != nil {
		return nil, fmt.Errorf("backend selection failed: %w", err)
	}

	var store storage.Adapter = storage.NewRouter(selector)

	comps := &StorageComponents{
		Selector: selector,
		IDs:      ids,
	}

	if cfg.DualWrite.Enabled {
		mirror, err := initMirror(ctx, cfg, candidates, selector, sugar)
		if err != nil {
			return nil, err
		}
		comps.secondary = mirror
		// The mirror must never become the routed backend on a later
		// re-evaluation swap.
		selector.ExcludeBackend(mirror.Name())
		store = storage.NewDualWriter(store, mirror, sugar)
		sugar.Infow("Dual-write enabled",
			"primary", selector.Active().Name(),
			"secondary", mirror.Name())
	}
	comps.Store = store

	manifest, err := storage.LoadManifest(cfg.CollectionsManifest)
	if err != nil {
		return nil, err
	}
	comps.Manifest = manifest

	bootstrapper := storage.NewBootstrapper(manifest, sugar)
	if err := bootstrapper.Run(ctx, store); err != nil {
		return nil, fmt.Errorf("collection bootstrap failed: %w", err)
	}
	sugar.Infow("Collections bootstrapped",
		"declared", len(manifest.Collections),
		"backend", selector.Active().Name())

	return comps, nil
}

// Close releases the active backend and, when dual-write is on, the
// mirror.
func (s *StorageComponents) Close(ctx context.Context) error {
	var firstErr error
	if s.secondary != nil {
		if err := s.secondary.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if active := s.Selector.Active(); active != nil {
		if err := active.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// initMirror connects the dual-write target. The mirror must not be the
// backend already serving as primary.
func initMirror(ctx context.Context, cfg *config.Config, candidates []storage.Candidate, selector *storage.Selector, sugar *zap.SugaredLogger) (storage.Adapter, error) {
	var target core.Backend
	switch cfg.DualWrite.Secondary {
	case "secondary":
		target = core.BackendSecondary
	default:
		target = core.BackendLocal
	}

	active := selector.Active().Name()
	if active == target {
		return nil, fmt.Errorf("dual-write secondary %q is already the active backend", target)
	}

	for _, cand := range candidates {
		if cand.Adapter.Name() != target {
			continue
		}
		label := fmt.Sprintf("%s mirror connect", target)
		if err := storage.Guard(ctx, cfg.Selector.ConnectTimeout, label, sugar, cand.Adapter.Connect); err != nil {
			return nil, fmt.Errorf("failed to connect dual-write secondary %s: %w", target, err)
		}
		return cand.Adapter, nil
	}
	return nil, fmt.Errorf("no candidate adapter for dual-write secondary %q", target)
}
