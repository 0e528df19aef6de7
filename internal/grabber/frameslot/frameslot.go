// Package frameslot implements the lock-protected double buffer used to
// hand decoded frames from a GrabberWorker goroutine to the consumer
// goroutine that calls Tick. It restates the original
// ofxIpVideoGrabber "image[2] + isBackBufferReady" pattern as a single
// small mutex-guarded aggregate (spec §9 redesign note).
package frameslot

import "sync"

// PixelFormat identifies the layout of PixelBuffer.Bytes. RGB24 is the
// only format the spec requires.
type PixelFormat int

const RGB24 PixelFormat = 0

// PixelBuffer is an immutable decoded frame.
type PixelBuffer struct {
	Width  int
	Height int
	Format PixelFormat
	Bytes  []byte
}

// placeholder is the 1x1 zero-initialized frame returned before the first
// successful decode (spec §7).
func placeholder() PixelBuffer {
	return PixelBuffer{Width: 1, Height: 1, Format: RGB24, Bytes: make([]byte, 3)}
}

// Slot is the two-element rotating buffer plus back-ready flag.
type Slot struct {
	mu        sync.Mutex
	buffers   [2]PixelBuffer
	frontIdx  int
	backReady bool
}

// New returns a Slot with both buffers initialized to the placeholder
// frame.
func New() *Slot {
	s := &Slot{}
	s.buffers[0] = placeholder()
	s.buffers[1] = placeholder()
	return s
}

// InstallBack replaces the back-slot pixels and marks it ready for
// promotion. Called only by the worker goroutine.
func (s *Slot) InstallBack(pixels PixelBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[1-s.frontIdx] = pixels
	s.backReady = true
}

// PromoteResult reports the dimensions observed across a TryPromote call,
// and whether a promotion actually happened.
type PromoteResult struct {
	Promoted           bool
	OldWidth, OldHeight int
	NewWidth, NewHeight int
}

// TryPromote swaps front/back if the back buffer is ready, clearing the
// ready flag. Called only by the consumer goroutine, normally once per
// Tick.
func (s *Slot) TryPromote() PromoteResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.buffers[s.frontIdx]
	if !s.backReady {
		return PromoteResult{
			Promoted:  false,
			OldWidth:  old.Width,
			OldHeight: old.Height,
			NewWidth:  old.Width,
			NewHeight: old.Height,
		}
	}
	s.frontIdx = 1 - s.frontIdx
	s.backReady = false
	next := s.buffers[s.frontIdx]
	return PromoteResult{
		Promoted:  true,
		OldWidth:  old.Width,
		OldHeight: old.Height,
		NewWidth:  next.Width,
		NewHeight: next.Height,
	}
}

// Front returns a copy of the current front buffer. Consumer-only.
func (s *Slot) Front() PixelBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers[s.frontIdx]
}

// Reset puts both buffers back to the placeholder frame and clears the
// ready flag; used when a grabber is Reset() back to Idle.
func (s *Slot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[0] = placeholder()
	s.buffers[1] = placeholder()
	s.frontIdx = 0
	s.backReady = false
}
