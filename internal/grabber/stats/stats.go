// Package stats tracks the cumulative byte/frame counters and derived
// liveness rates described in spec §3/§4.2, grounded on the bitrate and
// framerate bookkeeping in ofxIpVideoGrabber::update().
package stats

import "sync"

// Statistics holds the raw counters needed to derive current bitrate and
// framerate, plus the timestamp of the last observation that met the
// minimum bitrate threshold. All fields are guarded by Statistics' own
// internal mutex, separate from the owning grabber's mutex and from the
// FrameSlot's lock.
type Statistics struct {
	mu sync.Mutex

	connectTimeMs int64
	elapsedMs     int64
	bytesIn       int64
	framesIn      int64
	// lastValidBitrateMs is elapsedMs as of the last tick where the
	// derived bitrate met minBitrateBps.
	lastValidBitrateMs int64
}

// Snapshot is a consistent, immutable read of Statistics at one instant.
type Snapshot struct {
	ConnectTimeMs      int64
	ElapsedMs          int64
	BytesIn            int64
	FramesIn           int64
	LastValidBitrateMs int64
}

// Framerate derives frames/second from the snapshot.
func (s Snapshot) Framerate() float64 {
	if s.ElapsedMs <= 0 {
		return 0
	}
	return float64(s.FramesIn) / (float64(s.ElapsedMs) / 1000.0)
}

// BitrateBps derives bits/second from the snapshot.
func (s Snapshot) BitrateBps() float64 {
	if s.ElapsedMs <= 0 {
		return 0
	}
	return float64(s.BytesIn) * 8 / (float64(s.ElapsedMs) / 1000.0)
}

// Reset zeroes all counters and records connectTimeMs as the new origin;
// called when the ReconnectController spawns a worker for a fresh
// connection (spec §4.4's Idle->Connecting transition).
func (s *Statistics) Reset(nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectTimeMs = nowMs
	s.elapsedMs = 0
	s.bytesIn = 0
	s.framesIn = 0
	s.lastValidBitrateMs = 0
}

// MarkConnected records the moment the worker saw its first byte (the
// Connecting->Streaming transition).
func (s *Statistics) MarkConnected(nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectTimeMs = nowMs
}

// AddBytes increments the byte counter; invoked by the worker for every
// chunk read off the HTTP body.
func (s *Statistics) AddBytes(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesIn += n
}

// AddFrame increments the frame counter; invoked by the worker only after
// a successful decode.
func (s *Statistics) AddFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.framesIn++
}

// Tick recomputes elapsedMs from nowMs and updates lastValidBitrateMs if
// the derived bitrate currently meets minBitrateBps. Called once per
// consumer Tick.
func (s *Statistics) Tick(nowMs int64, minBitrateBps float64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elapsedMs = nowMs - s.connectTimeMs
	if s.elapsedMs < 0 {
		s.elapsedMs = 0
	}
	snap := Snapshot{
		ConnectTimeMs: s.connectTimeMs,
		ElapsedMs:     s.elapsedMs,
		BytesIn:       s.bytesIn,
		FramesIn:      s.framesIn,
	}
	if snap.BitrateBps() >= minBitrateBps {
		s.lastValidBitrateMs = s.elapsedMs
	}
	snap.LastValidBitrateMs = s.lastValidBitrateMs
	return snap
}

// Snapshot returns a consistent read without advancing elapsedMs or
// lastValidBitrateMs.
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ConnectTimeMs:      s.connectTimeMs,
		ElapsedMs:          s.elapsedMs,
		BytesIn:            s.bytesIn,
		FramesIn:           s.framesIn,
		LastValidBitrateMs: s.lastValidBitrateMs,
	}
}
