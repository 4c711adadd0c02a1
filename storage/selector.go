package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docstore/core"
	"docstore/metrics"

	"go.uber.org/zap"
)

// DefaultConnectTimeout bounds each candidate's connect attempt.
const DefaultConnectTimeout = 10 * time.Second

// Candidate is one entry in the selector's preference-ordered list. An
// unconfigured candidate is skipped without a connect attempt.
type Candidate struct {
	Adapter    Adapter
	Configured bool
	// SkipReason explains an unconfigured candidate in health output.
	SkipReason string
}

// Selector picks the active backend by walking candidates in preference
// order and guarding each connect attempt. Availability beats preference:
// the local file candidate requires nothing external, so selection never
// fails outright. All mutation of the active backend and connection state
// goes through one mutex; readers only ever observe a fully swapped state.
type Selector struct {
	candidates     []Candidate
	connectTimeout time.Duration
	logger         *zap.SugaredLogger

	mu       sync.RWMutex
	active   Adapter
	state    core.ConnectionState
	reasons  []string
	excluded core.Backend
}

// NewSelector creates a selector over the preference-ordered candidates.
// State starts as connecting; readiness probes stay not-ready until Select
// completes.
func NewSelector(candidates []Candidate, connectTimeout time.Duration, logger *zap.SugaredLogger) *Selector {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Selector{
		candidates:     candidates,
		connectTimeout: connectTimeout,
		logger:         logger,
		state:          core.StateConnecting,
	}
}

// Select walks the candidate list and activates the first backend whose
// guarded connect succeeds. Connect failures and timeouts become
// skip-reasons, never fatal errors, as long as a later candidate remains.
func (s *Selector) Select(ctx context.Context) error {
	var reasons []string
	sawConfiguredFailure := false

	for _, cand := range s.candidates {
		backend := cand.Adapter.Name()

		if !cand.Configured {
			reason := cand.SkipReason
			if reason == "" {
				reason = fmt.Sprintf("%s backend not configured", backend)
			}
			reasons = append(reasons, reason)
			s.logger.Infow("Skipping backend candidate", "backend", backend, "reason", reason)
			continue
		}

		label := fmt.Sprintf("%s backend connect", backend)
		err := Guard(ctx, s.connectTimeout, label, s.logger, cand.Adapter.Connect)
		if err == nil {
			s.activate(cand.Adapter, reasons, sawConfiguredFailure)
			return nil
		}

		if !isSelectionFailure(err) && ctx.Err() != nil {
			// Startup itself was cancelled; don't keep dialing backends.
			return ctx.Err()
		}
		sawConfiguredFailure = true
		reasons = append(reasons, fmt.Sprintf("%s: %v", backend, err))
		metrics.SelectionFallbacks.WithLabelValues(string(backend)).Inc()
		s.logger.Warnw("Backend candidate failed, trying next",
			"backend", backend,
			"error", err,
			"diagnosis", ClassifyConnectionError(err, string(backend)+" backend"))
	}

	s.mu.Lock()
	s.state = core.StateError
	s.reasons = reasons
	s.mu.Unlock()
	return fmt.Errorf("%w: no backend could be activated: %v", ErrConnection, reasons)
}

// activate installs the adapter as the active backend. Degraded means a
// configured, higher-preference backend failed; merely-unconfigured
// candidates do not degrade the state.
func (s *Selector) activate(adapter Adapter, reasons []string, degraded bool) {
	s.mu.Lock()
	s.active = adapter
	s.reasons = reasons
	if degraded {
		s.state = core.StateDegraded
	} else {
		s.state = core.StateConnected
	}
	state := s.state
	s.mu.Unlock()

	metrics.BackendSelections.WithLabelValues(string(adapter.Name())).Inc()
	s.logger.Infow("Active backend selected",
		"backend", adapter.Name(),
		"state", state,
		"skipped", reasons)
}

// ExcludeBackend removes a backend from re-evaluation swaps. Set when the
// backend serves as the dual-write mirror: routing regular traffic to it
// while also mirroring to it would write one store twice.
func (s *Selector) ExcludeBackend(backend core.Backend) {
	s.mu.Lock()
	s.excluded = backend
	s.mu.Unlock()
}

// Reevaluate retries candidates preferred over the current active backend
// and atomically swaps to the first that connects. The displaced adapter
// is closed after the swap so no caller ever observes two active backends.
func (s *Selector) Reevaluate(ctx context.Context) (bool, error) {
	s.mu.RLock()
	current := s.active
	excluded := s.excluded
	s.mu.RUnlock()
	if current == nil {
		return false, fmt.Errorf("%w: no active backend to re-evaluate from", ErrConnection)
	}

	for _, cand := range s.candidates {
		if cand.Adapter.Name() == current.Name() {
			break
		}
		if !cand.Configured || cand.Adapter.Name() == excluded {
			continue
		}

		label := fmt.Sprintf("%s backend reconnect", cand.Adapter.Name())
		err := Guard(ctx, s.connectTimeout, label, s.logger, cand.Adapter.Connect)
		if err != nil {
			s.logger.Debugw("Re-evaluation candidate still unavailable",
				"backend", cand.Adapter.Name(),
				"error", err)
			continue
		}

		s.mu.Lock()
		displaced := s.active
		s.active = cand.Adapter
		s.state = core.StateConnected
		s.reasons = nil
		s.mu.Unlock()

		metrics.BackendSelections.WithLabelValues(string(cand.Adapter.Name())).Inc()
		s.logger.Infow("Swapped to higher-preference backend",
			"backend", cand.Adapter.Name(),
			"displaced", displaced.Name())

		if displaced.Name() != cand.Adapter.Name() {
			if err := displaced.Close(context.Background()); err != nil {
				s.logger.Warnw("Failed to close displaced backend", "backend", displaced.Name(), "error", err)
			}
		}
		return true, nil
	}
	return false, nil
}

// Active returns the current active adapter, or nil before selection.
func (s *Selector) Active() Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Health snapshots the backend descriptor and connection state for the
// readiness surface. The returned value shares nothing with the selector.
func (s *Selector) Health() core.Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := core.Health{ConnectionState: s.state}
	if s.active != nil {
		h.ActiveBackend = s.active.Name()
	}
	h.DegradedReasons = append([]string(nil), s.reasons...)
	return h
}

// Router exposes the selector as an Adapter so CRUD callers transparently
// follow backend swaps. Every call resolves the active adapter afresh.
type Router struct {
	selector *Selector
}

// NewRouter wraps the selector in the Adapter interface.
func NewRouter(selector *Selector) *Router {
	return &Router{selector: selector}
}

func (r *Router) resolve() (Adapter, error) {
	a := r.selector.Active()
	if a == nil {
		return nil, fmt.Errorf("%w: no active backend", ErrConnection)
	}
	return a, nil
}

func (r *Router) Name() core.Backend {
	if a := r.selector.Active(); a != nil {
		return a.Name()
	}
	return ""
}

func (r *Router) Connect(ctx context.Context) error {
	return r.selector.Select(ctx)
}

func (r *Router) Close(ctx context.Context) error {
	a, err := r.resolve()
	if err != nil {
		return nil
	}
	return a.Close(ctx)
}

func (r *Router) HealthCheck(ctx context.Context) error {
	a, err := r.resolve()
	if err != nil {
		return err
	}
	return a.HealthCheck(ctx)
}

func (r *Router) ReadAll(ctx context.Context, collection string) ([]core.Document, error) {
	a, err := r.resolve()
	if err != nil {
		return nil, err
	}
	return a.ReadAll(ctx, collection)
}

func (r *Router) FindOne(ctx context.Context, collection string, predicate core.Predicate) (core.Document, error) {
	a, err := r.resolve()
	if err != nil {
		return nil, err
	}
	return a.FindOne(ctx, collection, predicate)
}

func (r *Router) InsertOne(ctx context.Context, collection string, doc core.Document) (core.Document, error) {
	a, err := r.resolve()
	if err != nil {
		return nil, err
	}
	return a.InsertOne(ctx, collection, doc)
}

func (r *Router) UpdateOne(ctx context.Context, collection, id string, patch core.Document) (core.Document, error) {
	a, err := r.resolve()
	if err != nil {
		return nil, err
	}
	return a.UpdateOne(ctx, collection, id, patch)
}

func (r *Router) DeleteOne(ctx context.Context, collection, id string) (bool, error) {
	a, err := r.resolve()
	if err != nil {
		return false, err
	}
	return a.DeleteOne(ctx, collection, id)
}

func (r *Router) ReplaceAll(ctx context.Context, collection string, docs []core.Document) error {
	a, err := r.resolve()
	if err != nil {
		return err
	}
	return a.ReplaceAll(ctx, collection, docs)
}

func (r *Router) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	a, err := r.resolve()
	if err != nil {
		return err
	}
	return a.EnsureCollection(ctx, spec)
}
