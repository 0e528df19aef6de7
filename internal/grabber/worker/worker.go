// Package worker implements GrabberWorker (spec §4.2): the goroutine that
// owns one HTTP session, drives an MjpegParser over its body, and installs
// decoded frames into a FrameSlot. Its producer-loop shape (read chunk,
// update stats under lock, feed parser, react to events) is adapted from
// an N-consumer compression-farm producer loop down to a single-worker,
// single-slot handoff.
package worker

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/warpcomdev/ipvideograbber/internal/grabber/camconfig"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/frameslot"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/grabberclock"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/grabbermetrics"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/grabbertransport"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/jpegdecoder"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/mjpegparser"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/reconnect"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/servicelog"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/stats"
)

// Outcome is the worker's terminal result (spec §4.2).
type Outcome int

const (
	EndOfStream Outcome = iota
	Stopped
	TransportFailed
)

// Deps bundles the shared handles and injected capabilities a Worker is
// constructed with. The HTTP response body is owned exclusively by the
// worker; Slot and Stats each carry their own internal lock; Mu, the
// grabber-wide mutex, guards State (ReconnectState).
type Deps struct {
	Config    camconfig.CameraConfig
	Slot      *frameslot.Slot
	Stats     *stats.Statistics
	State     *reconnect.State
	Mu        *sync.Mutex // the single grabber-wide mutex, spec §5
	Transport *grabbertransport.Transport
	Decoder   jpegdecoder.Decoder
	Clock     grabberclock.Clock
	Logger    servicelog.Logger

	// Stopping reports whether the facade has requested a cooperative,
	// permanent shutdown (Disconnect), as opposed to a context
	// cancellation used only to unblock a stalled read (spec §4.4's
	// Streaming->Stalled "request worker stop"). The former ends the
	// worker with Stopped; the latter still schedules a reconnect.
	Stopping func() bool

	// OnTransportError, OnDecodeError and OnParseOverflow surface the
	// worker's per-attempt failures onto the facade's last-error
	// accessor (spec §7's error taxonomy). All three are optional; the
	// worker still logs and schedules a retry on its own when unset.
	OnTransportError func(op string, err error)
	OnDecodeError    func(frame int, err error)
	OnParseOverflow  func(limit int)
}

// Worker drives exactly one streaming HTTP session.
type Worker struct {
	deps Deps
}

// New constructs a Worker for one connection attempt. A fresh Worker
// must be created for every reconnect; it is not reusable.
func New(deps Deps) *Worker {
	return &Worker{deps: deps}
}

// Run executes the worker's protocol (spec §4.2 steps 1-9) until the
// stream ends, ctx is cancelled, or a transport error occurs. It returns
// the Outcome and, for TransportFailed, the causing error.
func (w *Worker) Run(ctx context.Context) (Outcome, error) {
	d := w.deps
	logger := d.Logger.With(servicelog.String("camera", d.Config.Name))

	req := grabbertransport.Request{
		URL:            d.Config.URL,
		Username:       d.Config.Username,
		Password:       d.Config.Password,
		AuthMode:       d.Config.AuthMode,
		Cookies:        d.Config.Cookies,
		Proxy:          d.Config.Proxy,
		SessionTimeout: time.Duration(d.Config.SessionTimeoutMs) * time.Millisecond,
	}

	headers, resp, refresher, err := d.Transport.Open(ctx, req)
	if err != nil {
		logger.Error("failed to open stream", servicelog.Error(err))
		grabbermetrics.ObserveTransportError(d.Config.Name)
		if d.OnTransportError != nil {
			d.OnTransportError("open", err)
		}
		w.scheduleRetry()
		return TransportFailed, err
	}
	defer resp.Body.Close()

	boundary, err := extractBoundary(headers, d.Config.DefaultBoundaryMarker)
	if err != nil {
		logger.Error("failed to parse content-type", servicelog.Error(err))
		grabbermetrics.ObserveTransportError(d.Config.Name)
		if d.OnTransportError != nil {
			d.OnTransportError("content-type", err)
		}
		w.scheduleRetry()
		return TransportFailed, err
	}

	frameCount := 0
	parser := mjpegparser.New(boundary, d.Config.MaxFrameBytes, mjpegparser.Events{
		FrameComplete: func(frame []byte) {
			frameCount++
			w.handleFrame(logger, frame, frameCount)
		},
		Overflow: func() {
			grabbermetrics.ObserveParseOverflow(d.Config.Name)
			logger.Warn("mjpeg parser overflow, resynchronizing at next boundary")
			if d.OnParseOverflow != nil {
				d.OnParseOverflow(d.Config.MaxFrameBytes)
			}
		},
	})

	firstByte := true
	buf := make([]byte, 32*1024)
	for {
		if d.Stopping != nil && d.Stopping() {
			return Stopped, nil
		}

		refresher.RefreshReadDeadline(req.SessionTimeout)
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if firstByte {
				firstByte = false
				d.Mu.Lock()
				d.State.MarkStreaming()
				d.Mu.Unlock()
				d.Stats.MarkConnected(d.Clock.NowMs())
			}
			d.Stats.AddBytes(int64(n))
			parser.Feed(buf[:n])
		}
		if readErr != nil {
			if readErr == io.EOF {
				// The server closed the part cleanly; still schedule a
				// reconnect; a live camera keeps the session open
				// indefinitely, so a clean EOF is itself a liveness
				// signal worth recovering from (spec §4.2 step 9 groups
				// end-of-stream with the other loop-exit reasons that
				// request reconnect, distinct from an explicit Stopped).
				w.scheduleRetry()
				return EndOfStream, nil
			}
			if d.Stopping != nil && d.Stopping() {
				return Stopped, nil
			}
			logger.Error("stream read failed", servicelog.Error(readErr))
			grabbermetrics.ObserveTransportError(d.Config.Name)
			if d.OnTransportError != nil {
				d.OnTransportError("read", readErr)
			}
			w.scheduleRetry()
			return TransportFailed, readErr
		}
	}
}

func (w *Worker) handleFrame(logger servicelog.Logger, frame []byte, frameNumber int) {
	pixels, err := w.deps.Decoder.Decode(frame)
	if err != nil {
		grabbermetrics.ObserveDecodeFailure(w.deps.Config.Name)
		logger.Error("jpeg decode failed", servicelog.Int("frame", frameNumber), servicelog.Error(err))
		if w.deps.OnDecodeError != nil {
			w.deps.OnDecodeError(frameNumber, err)
		}
		return
	}
	w.deps.Slot.InstallBack(pixels)
	w.deps.Stats.AddFrame()
}

// scheduleRetry marks ReconnectState for a future reconnect, under the
// shared grabber mutex (spec §4.2 step 9).
func (w *Worker) scheduleRetry() {
	d := w.deps
	d.Mu.Lock()
	defer d.Mu.Unlock()
	d.State.WorkerExited(d.Clock.NowMs(), d.Config.AutoRetryDelayMs)
}

func extractBoundary(headers http.Header, fallback string) (string, error) {
	contentType := headers.Get("Content-Type")
	if contentType == "" {
		return mjpegparser.NormalizeBoundary(fallback), nil
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return mjpegparser.NormalizeBoundary(fallback), nil
	}
	boundary := params["boundary"]
	if boundary == "" {
		boundary = fallback
	}
	return mjpegparser.NormalizeBoundary(boundary), nil
}
