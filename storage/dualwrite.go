package storage

import (
	"context"

	"docstore/core"
	"docstore/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DualWriter mirrors every successful write on the primary adapter to a
// secondary adapter, supporting live migration between backends. The
// primary is the sole source of truth: a primary failure aborts the whole
// operation and the secondary is never touched; a secondary failure is
// logged with a reconciliation reference and swallowed, leaving the
// backends diverged until an operator reconciles them. Reads always come
// from the primary.
type DualWriter struct {
	primary   Adapter
	secondary Adapter
	logger    *zap.SugaredLogger
}

// NewDualWriter composes primary and secondary into one Adapter.
func NewDualWriter(primary, secondary Adapter, logger *zap.SugaredLogger) *DualWriter {
	return &DualWriter{primary: primary, secondary: secondary, logger: logger}
}

func (w *DualWriter) Name() core.Backend { return w.primary.Name() }

func (w *DualWriter) Connect(ctx context.Context) error {
	return w.primary.Connect(ctx)
}

func (w *DualWriter) Close(ctx context.Context) error {
	if err := w.secondary.Close(ctx); err != nil {
		w.logger.Warnw("Failed to close dual-write secondary", "error", err)
	}
	return w.primary.Close(ctx)
}

func (w *DualWriter) HealthCheck(ctx context.Context) error {
	return w.primary.HealthCheck(ctx)
}

func (w *DualWriter) ReadAll(ctx context.Context, collection string) ([]core.Document, error) {
	return w.primary.ReadAll(ctx, collection)
}

func (w *DualWriter) FindOne(ctx context.Context, collection string, predicate core.Predicate) (core.Document, error) {
	return w.primary.FindOne(ctx, collection, predicate)
}

func (w *DualWriter) InsertOne(ctx context.Context, collection string, doc core.Document) (core.Document, error) {
	inserted, err := w.primary.InsertOne(ctx, collection, doc)
	if err != nil {
		return nil, err
	}
	w.mirror(ctx, "insertOne", collection, inserted.ID(), func(ctx context.Context) error {
		// Replay with the id the primary assigned so both sides agree.
		_, err := w.secondary.InsertOne(ctx, collection, inserted)
		return err
	})
	return inserted, nil
}

func (w *DualWriter) UpdateOne(ctx context.Context, collection, id string, patch core.Document) (core.Document, error) {
	updated, err := w.primary.UpdateOne(ctx, collection, id, patch)
	if err != nil {
		return nil, err
	}
	w.mirror(ctx, "updateOne", collection, id, func(ctx context.Context) error {
		_, err := w.secondary.UpdateOne(ctx, collection, id, patch)
		return err
	})
	return updated, nil
}

func (w *DualWriter) DeleteOne(ctx context.Context, collection, id string) (bool, error) {
	removed, err := w.primary.DeleteOne(ctx, collection, id)
	if err != nil {
		return false, err
	}
	if removed {
		w.mirror(ctx, "deleteOne", collection, id, func(ctx context.Context) error {
			_, err := w.secondary.DeleteOne(ctx, collection, id)
			return err
		})
	}
	return removed, nil
}

func (w *DualWriter) ReplaceAll(ctx context.Context, collection string, docs []core.Document) error {
	if err := w.primary.ReplaceAll(ctx, collection, docs); err != nil {
		return err
	}
	w.mirror(ctx, "replaceAll", collection, "", func(ctx context.Context) error {
		return w.secondary.ReplaceAll(ctx, collection, docs)
	})
	return nil
}

func (w *DualWriter) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if err := w.primary.EnsureCollection(ctx, spec); err != nil {
		return err
	}
	if err := w.secondary.EnsureCollection(ctx, spec); err != nil {
		w.logger.Warnw("Failed to ensure collection on dual-write secondary",
			"collection", spec.Name,
			"backend", w.secondary.Name(),
			"error", err)
	}
	return nil
}

// mirror runs the mirrored write in isolation. Failures never alter the
// result already reported for the primary; they are logged with a
// reconciliation reference an operator can grep for, and counted.
func (w *DualWriter) mirror(ctx context.Context, operation, collection, id string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.MirrorWriteFailures.Inc()
			w.logger.Errorw("Mirrored write panicked on secondary",
				"operation", operation,
				"collection", collection,
				"panic", r)
		}
	}()

	if err := fn(ctx); err != nil {
		metrics.MirrorWriteFailures.Inc()
		w.logger.Errorw("Mirrored write failed on secondary; backends have diverged",
			"reconciliation_ref", uuid.NewString(),
			"operation", operation,
			"collection", collection,
			"document_id", id,
			"primary", w.primary.Name(),
			"secondary", w.secondary.Name(),
			"error", err)
	}
}
