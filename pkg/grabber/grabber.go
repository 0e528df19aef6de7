// Package grabber is the public API of this module: IpVideoGrabber, an
// MJPEG-over-HTTP client that maintains one live connection per camera,
// decodes frames into an RGB24 double buffer, and reconnects on failure
// according to a fixed-delay, bounded-retry policy (spec §1-§4).
//
// IpVideoGrabber composes the internal/grabber packages into one
// long-lived facade value per camera: a single mutex guards the shared
// mutable state, and a goroutine (GrabberWorker) is spawned per
// connection attempt and joined before the next one starts.
package grabber

import (
	"context"
	"log"
	"sync"

	"github.com/warpcomdev/ipvideograbber/internal/grabber/camconfig"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/frameslot"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/grabberclock"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/grabbertransport"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/jpegdecoder"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/reconnect"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/servicelog"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/stats"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/worker"
)

// IpVideoGrabber is the facade type described by spec §4.5. A zero value
// is not usable; construct with New.
type IpVideoGrabber struct {
	mu sync.Mutex

	config     camconfig.CameraConfig
	configured bool

	// pendingConfig holds a Configure call received while a session was
	// active (spec §9's "duplicated configuration setters" note: the
	// live config is snapshotted per-worker, so a running grabber keeps
	// streaming under the old config and the new one applies at the
	// next Connect).
	pendingConfig camconfig.CameraConfig
	hasPending    bool

	lastErr error

	slot  *frameslot.Slot
	stats *stats.Statistics
	state *reconnect.State

	transport *grabbertransport.Transport
	decoder   jpegdecoder.Decoder
	clock     grabberclock.Clock
	logger    servicelog.Logger

	cancel        context.CancelFunc
	wg            sync.WaitGroup
	disconnecting bool

	lastPromote frameslot.PromoteResult

	resizeHandlers []func(VideoResized)
}

// fallbackLogger is used only if servicelog.NewProduction's zap/lumberjack
// wiring itself fails to build (e.g. an unwritable log path); it keeps New
// from ever handing a worker a nil Logger.
type fallbackLogger struct{}

func (fallbackLogger) With(_ ...servicelog.Attrib) servicelog.Logger { return fallbackLogger{} }
func (fallbackLogger) Info(msg string, _ ...servicelog.Attrib)       { log.Println("INFO", msg) }
func (fallbackLogger) Error(msg string, _ ...servicelog.Attrib)      { log.Println("ERROR", msg) }
func (fallbackLogger) Warn(msg string, _ ...servicelog.Attrib)       { log.Println("WARN", msg) }
func (fallbackLogger) Debug(msg string, _ ...servicelog.Attrib)      { log.Println("DEBUG", msg) }
func (fallbackLogger) Fatal(msg string, _ ...servicelog.Attrib)      { log.Fatal("FATAL ", msg) }

// Option configures optional collaborators at construction time. Tests
// inject fake Transport/Decoder/Clock implementations this way; cmd/grabberd
// leaves them at their production defaults.
type Option func(*IpVideoGrabber)

// WithTransportClient overrides the HTTP client the grabber issues GET
// requests through. Defaults to a plain *http.Client. A client that is
// itself an *http.Client is not used as given: each connection attempt
// builds its own *http.Client (see grabbertransport.Transport).
func WithTransportClient(client grabbertransport.Client) Option {
	return func(g *IpVideoGrabber) { g.transport = grabbertransport.New(client) }
}

// WithDecoder overrides the JPEG decoder. Defaults to jpegdecoder.NewStdlib().
func WithDecoder(d jpegdecoder.Decoder) Option {
	return func(g *IpVideoGrabber) { g.decoder = d }
}

// WithClock overrides the wall-clock source. Defaults to grabberclock.NewSystem().
func WithClock(c grabberclock.Clock) Option {
	return func(g *IpVideoGrabber) { g.clock = c }
}

// WithLogger overrides the structured logger. Defaults to
// servicelog.NewProduction(""), which writes through the standard library
// log package (stderr), falling back to fallbackLogger if that fails.
func WithLogger(l servicelog.Logger) Option {
	return func(g *IpVideoGrabber) { g.logger = l }
}

// New constructs an IpVideoGrabber in the Idle state. Call Configure, then
// Connect, to begin streaming.
func New(opts ...Option) *IpVideoGrabber {
	logger, err := servicelog.NewProduction("")
	if err != nil {
		logger = fallbackLogger{}
	}
	g := &IpVideoGrabber{
		slot:      frameslot.New(),
		stats:     &stats.Statistics{},
		state:     reconnect.New(),
		transport: grabbertransport.New(nil),
		decoder:   jpegdecoder.NewStdlib(),
		clock:     grabberclock.NewSystem(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Configure installs cfg, defaulting and validating it (spec §3). While
// the grabber is Idle it takes effect immediately. While a session is
// active, the new config is accepted but deferred: it becomes pending
// and is logged at warning level, then applied at the next Connect,
// since the running worker already snapshotted the old config at spawn
// time and cannot have it changed out from under it (spec §4.5, §9).
func (g *IpVideoGrabber) Configure(cfg camconfig.CameraConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := cfg.Validate(); err != nil {
		return &ConfigurationError{Field: "CameraConfig", Err: err}
	}
	if g.state.Connection != reconnect.Idle {
		g.logger.Warn("configure called while a session is active; deferring to next connect",
			servicelog.String("camera", cfg.Name))
		g.pendingConfig = cfg
		g.hasPending = true
		return nil
	}
	g.config = cfg
	g.configured = true
	return nil
}

// Connect starts the first connection attempt: Idle -> Connecting, and
// spawns the GrabberWorker goroutine (spec §4.2/§4.4).
func (g *IpVideoGrabber) Connect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hasPending {
		g.config = g.pendingConfig
		g.configured = true
		g.hasPending = false
	}
	if !g.configured {
		return ErrNotConfigured
	}
	if !g.state.BeginConnect() {
		return ErrNotIdle
	}
	g.stats.Reset(g.clock.NowMs())
	g.spawnWorkerLocked()
	return nil
}

// spawnWorkerLocked starts a fresh worker goroutine for the current
// configuration. The caller must hold g.mu; the spawned goroutine runs
// without it and takes g.mu only for the worker's shared-state updates.
func (g *IpVideoGrabber) spawnWorkerLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	w := worker.New(worker.Deps{
		Config:    g.config,
		Slot:      g.slot,
		Stats:     g.stats,
		State:     g.state,
		Mu:        &g.mu,
		Transport: g.transport,
		Decoder:   g.decoder,
		Clock:     g.clock,
		Logger:    g.logger,
		Stopping: func() bool {
			g.mu.Lock()
			defer g.mu.Unlock()
			return g.disconnecting
		},
		OnTransportError: func(op string, err error) {
			g.mu.Lock()
			g.lastErr = &TransportError{Op: op, Err: err}
			g.mu.Unlock()
		},
		OnDecodeError: func(frame int, err error) {
			g.mu.Lock()
			g.lastErr = &DecodeError{Frame: frame, Err: err}
			g.mu.Unlock()
		},
		OnParseOverflow: func(limit int) {
			g.mu.Lock()
			g.lastErr = &ParseOverflowError{Limit: limit}
			g.mu.Unlock()
		},
	})
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		w.Run(ctx)
	}()
}

// Disconnect requests the active worker stop and blocks until it has
// exited, then forces the state back to Idle (spec §4.5). Safe to call
// from any state.
func (g *IpVideoGrabber) Disconnect() {
	g.mu.Lock()
	g.disconnecting = true
	cancel := g.cancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	g.wg.Wait()
	g.mu.Lock()
	g.state.ForceIdle()
	g.cancel = nil
	g.disconnecting = false
	g.mu.Unlock()
}

// WaitForDisconnect blocks until any in-flight worker goroutine has
// returned, without altering ConnectionState. Useful in tests that need
// to observe a worker's terminal effects before asserting on them.
func (g *IpVideoGrabber) WaitForDisconnect() {
	g.wg.Wait()
}

// Reset transitions FailedPermanently back to Idle, clearing reconnect
// bookkeeping and the frame buffer (spec §4.5). It does not implicitly
// disconnect; callers must have already observed the worker's exit
// (FailedPermanently only ever follows a worker exit, so none is running).
func (g *IpVideoGrabber) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Reset()
	g.slot.Reset()
	g.lastErr = nil
}

// Tick drives the reconnect state machine and promotes any pending frame.
// It must be called periodically by the consumer (spec §4.3): it spawns
// the next worker when WaitingToRetry's delay has elapsed, transitions to
// FailedPermanently once the reconnect budget is exhausted, and dispatches
// VideoResized to registered handlers outside the lock.
func (g *IpVideoGrabber) Tick() {
	g.mu.Lock()

	now := g.clock.NowMs()
	snap := g.stats.Tick(now, g.config.MinBitrateBps)

	if g.state.Connection == reconnect.Streaming &&
		snap.ElapsedMs-snap.LastValidBitrateMs > g.config.ReconnectTimeoutMs {
		g.state.MarkStalled()
		if g.cancel != nil {
			g.cancel()
		}
	}

	switch {
	case g.state.Exhausted(g.config.MaxReconnects):
		g.state.MarkFailedPermanently()
		g.lastErr = &RetriesExhaustedError{Reconnects: g.state.ReconnectCount}
	case g.state.ReadyToRetry(now, g.config.MaxReconnects):
		// WaitingToRetry is only entered from the worker's final locked
		// step, so the previous worker no longer needs g.mu: join it
		// before spawning the next one.
		g.wg.Wait()
		g.state.RetryConnect()
		g.stats.Reset(now)
		g.spawnWorkerLocked()
	}

	result := g.slot.TryPromote()
	g.lastPromote = result
	g.mu.Unlock()

	if result.Promoted && (result.NewWidth != result.OldWidth || result.NewHeight != result.OldHeight) {
		g.dispatchResize(VideoResized{Width: result.NewWidth, Height: result.NewHeight})
	}
}

// Frame returns the current front buffer. Safe to call from any goroutine.
func (g *IpVideoGrabber) Frame() frameslot.PixelBuffer {
	return g.slot.Front()
}

// IsFrameNew reports whether the most recent Tick promoted a new frame.
func (g *IpVideoGrabber) IsFrameNew() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastPromote.Promoted
}

// Name returns the camera name from the installed CameraConfig.
func (g *IpVideoGrabber) Name() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.config.Name
}

// ConnectionState returns the current lifecycle state.
func (g *IpVideoGrabber) ConnectionState() reconnect.ConnectionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Connection
}

// ReconnectCount returns the number of reconnect attempts since the last Reset.
func (g *IpVideoGrabber) ReconnectCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.ReconnectCount
}

// HasConnectionFailed reports whether the grabber is FailedPermanently.
func (g *IpVideoGrabber) HasConnectionFailed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.FailedPermanently
}

// IsConnected reports whether the grabber is currently Streaming.
func (g *IpVideoGrabber) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Connection == reconnect.Streaming
}

// StatsSnapshot returns the latest statistics snapshot computed by Tick.
func (g *IpVideoGrabber) StatsSnapshot() stats.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats.Snapshot()
}

// LastError returns the most recent TransportError, DecodeError,
// ParseOverflowError or RetriesExhaustedError observed since the last
// Reset (or New), or nil if none has occurred. Errors inside the worker
// never propagate onto the consumer thread directly (spec §7); this is
// the getter that surfaces them instead.
func (g *IpVideoGrabber) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

// URL returns the configured stream URL.
func (g *IpVideoGrabber) URL() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.config.URL
}
