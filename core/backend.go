package core

// Backend identifies one of the three storage engines.
type Backend string

const (
	BackendPrimary   Backend = "primary"
	BackendSecondary Backend = "secondary"
	BackendLocal     Backend = "local"
)

// ConnectionState tracks the lifecycle of the active backend connection.
type ConnectionState string

const (
	// StateConnecting is the initial state; readiness probes must report
	// not-ready until selection completes.
	StateConnecting ConnectionState = "connecting"
	// StateConnected means the first-preference configured backend is
	// serving.
	StateConnected ConnectionState = "connected"
	// StateDegraded means a lower-preference backend is serving because a
	// higher-preference one was skipped or failed.
	StateDegraded ConnectionState = "degraded"
	// StateError means no backend could be activated. The local file
	// backend makes this unreachable in normal operation.
	StateError ConnectionState = "error"
)

// Health is the snapshot consumed by an external readiness probe.
type Health struct {
	ActiveBackend   Backend         `json:"activeBackend"`
	ConnectionState ConnectionState `json:"connectionState"`
	DegradedReasons []string        `json:"degradedReasons"`
}

// Ready reports whether the layer can serve CRUD traffic.
func (h Health) Ready() bool {
	return h.ConnectionState == StateConnected || h.ConnectionState == StateDegraded
}
