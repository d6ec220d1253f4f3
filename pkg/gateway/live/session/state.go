package session

// State is a lifecycle state of a voice session.
type State int32

const (
	StateHandshake State = iota
	StateConfiguring
	StateGreeting
	StateListening
	StateProcessing
	StateTeardown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "HANDSHAKE"
	case StateConfiguring:
		return "CONFIGURING"
	case StateGreeting:
		return "GREETING"
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateTeardown:
		return "TEARDOWN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Mode says whether a session resolved a runtime configuration.
type Mode string

const (
	ModeAnonymous  Mode = "anonymous"
	ModeIdentified Mode = "identified"
)

// FallbackReason records why a session ended up anonymous.
type FallbackReason string

const (
	FallbackNone FallbackReason = ""

	// FallbackMissingIdentity covers a handshake without user_id, a
	// non-JSON or binary first frame, a handshake read failure and the
	// handshake timeout.
	FallbackMissingIdentity FallbackReason = "missing_identity"

	// FallbackConfigFetchFailed means an identity was given but its
	// runtime configuration could not be resolved.
	FallbackConfigFetchFailed FallbackReason = "config_fetch_failed"
)
