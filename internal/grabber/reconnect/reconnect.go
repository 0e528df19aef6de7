// Package reconnect implements the ConnectionState machine and the
// bookkeeping ReconnectState described in spec §3/§4.4. It is grounded on
// ofxIpVideoGrabber's connect/disconnect/getTimeTillNextAutoRetry logic,
// with the historical unsigned-subtraction underflow in
// getTimeTillNextAutoRetry fixed per spec §9: the Go equivalent
// (TimeTillNextRetry) always clamps to zero.
package reconnect

// ConnectionState mirrors spec §3's enumeration.
type ConnectionState int

const (
	Idle ConnectionState = iota
	Connecting
	Streaming
	Stalled
	WaitingToRetry
	FailedPermanently
)

func (s ConnectionState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Streaming:
		return "Streaming"
	case Stalled:
		return "Stalled"
	case WaitingToRetry:
		return "WaitingToRetry"
	case FailedPermanently:
		return "FailedPermanently"
	default:
		return "Unknown"
	}
}

// State bundles ConnectionState with the reconnect bookkeeping spec §3
// calls ReconnectState. It is not safe for concurrent use; the owning
// facade guards it with its single grabber-wide mutex.
type State struct {
	Connection        ConnectionState
	ReconnectCount    int
	NextRetryAtMs     int64
	FailedPermanently bool
	NeedsReconnect    bool
}

// New returns a State in Idle with zeroed counters.
func New() *State {
	return &State{Connection: Idle}
}

// TimeTillNextRetry returns how many milliseconds remain until
// NextRetryAtMs, clamped to zero once now has reached or passed it. This
// is the spec §9-mandated fix for the historical unsigned underflow.
func (s *State) TimeTillNextRetry(nowMs int64) int64 {
	remaining := s.NextRetryAtMs - nowMs
	if remaining < 0 {
		return 0
	}
	return remaining
}

// BeginConnect transitions Idle -> Connecting: bumps ReconnectCount,
// clears NeedsReconnect. Returns false if the state was not Idle.
func (s *State) BeginConnect() bool {
	if s.Connection != Idle {
		return false
	}
	s.Connection = Connecting
	s.ReconnectCount++
	s.NeedsReconnect = false
	return true
}

// MarkStreaming transitions Connecting -> Streaming on first byte
// received.
func (s *State) MarkStreaming() {
	if s.Connection == Connecting {
		s.Connection = Streaming
	}
}

// MarkStalled transitions Streaming -> Stalled and sets NeedsReconnect.
// Stopping the worker is left to the caller.
func (s *State) MarkStalled() {
	if s.Connection == Streaming {
		s.Connection = Stalled
		s.NeedsReconnect = true
	}
}

// WorkerExited transitions Connecting/Streaming/Stalled -> WaitingToRetry
// (and is a no-op from any other state) after the
// worker goroutine has returned (with or without error), scheduling the
// next retry autoRetryDelayMs from now.
func (s *State) WorkerExited(nowMs, autoRetryDelayMs int64) {
	switch s.Connection {
	case Streaming, Stalled, Connecting:
		s.Connection = WaitingToRetry
		s.NextRetryAtMs = nowMs + autoRetryDelayMs
		s.NeedsReconnect = true
	}
}

// RetryConnect transitions WaitingToRetry -> Connecting, bumping
// ReconnectCount the same way BeginConnect does for the first attempt.
// Callers should only invoke this after ReadyToRetry reports true.
func (s *State) RetryConnect() bool {
	if s.Connection != WaitingToRetry {
		return false
	}
	s.Connection = Connecting
	s.ReconnectCount++
	s.NeedsReconnect = false
	return true
}

// ReadyToRetry reports whether WaitingToRetry should spawn a new worker:
// the scheduled retry time has arrived and the reconnect budget is not
// exhausted. maxReconnects < 0 means unbounded.
func (s *State) ReadyToRetry(nowMs int64, maxReconnects int) bool {
	if s.Connection != WaitingToRetry {
		return false
	}
	if s.TimeTillNextRetry(nowMs) > 0 {
		return false
	}
	return maxReconnects < 0 || s.ReconnectCount < maxReconnects
}

// Exhausted reports whether WaitingToRetry has used up its reconnect
// budget and should transition to FailedPermanently.
func (s *State) Exhausted(maxReconnects int) bool {
	if s.Connection != WaitingToRetry {
		return false
	}
	return maxReconnects >= 0 && s.ReconnectCount >= maxReconnects
}

// MarkFailedPermanently transitions WaitingToRetry -> FailedPermanently.
func (s *State) MarkFailedPermanently() {
	s.Connection = FailedPermanently
	s.FailedPermanently = true
}

// Reset transitions FailedPermanently -> Idle, clearing counters. Spec
// §4.5: Reset does not itself disconnect; callers must ensure any worker
// has already been joined.
func (s *State) Reset() {
	s.Connection = Idle
	s.ReconnectCount = 0
	s.NextRetryAtMs = 0
	s.FailedPermanently = false
	s.NeedsReconnect = false
}

// ForceIdle transitions any state to Idle, used by Disconnect.
func (s *State) ForceIdle() {
	s.Connection = Idle
	s.NeedsReconnect = false
}
