package storage

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Manifest declares the collections and index specifications this layer
// expects to exist. Loaded once at startup from a YAML file and applied to
// the active backend on every start; application must be idempotent.
type Manifest struct {
	Collections []CollectionSpec `yaml:"collections"`
}

// LoadManifest reads and parses a collection manifest. A missing path
// yields an empty manifest, not an error: collections then appear lazily
// on first write with default id prefixes.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return &Manifest{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("failed to read collection manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: malformed collection manifest %s: %v", ErrConfiguration, path, err)
	}
	for _, spec := range m.Collections {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: collection manifest %s declares a collection without a name", ErrConfiguration, path)
		}
	}
	return &m, nil
}

// Bootstrapper ensures declared collections and indexes exist on an
// adapter. Index failures other than "already exists" (which adapters
// swallow themselves) are warnings: a missing index degrades performance,
// not correctness.
type Bootstrapper struct {
	manifest *Manifest
	logger   *zap.SugaredLogger
}

// NewBootstrapper creates a bootstrapper for the given manifest.
func NewBootstrapper(manifest *Manifest, logger *zap.SugaredLogger) *Bootstrapper {
	return &Bootstrapper{manifest: manifest, logger: logger}
}

// Run applies every declared collection spec to the adapter. Safe to call
// on every startup; nothing existing is mutated.
func (b *Bootstrapper) Run(ctx context.Context, adapter Adapter) error {
	for _, spec := range b.manifest.Collections {
		if err := adapter.EnsureCollection(ctx, spec); err != nil {
			b.logger.Warnw("Failed to ensure collection; continuing without it",
				"collection", spec.Name,
				"backend", adapter.Name(),
				"error", err)
			continue
		}
		b.logger.Debugw("Collection ensured",
			"collection", spec.Name,
			"backend", adapter.Name(),
			"indexes", len(spec.Indexes))
	}
	return nil
}
