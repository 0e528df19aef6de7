package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/warpcomdev/ipvideograbber/internal/grabber/camconfig"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/frameslot"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/grabbertransport"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/reconnect"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/servicelog"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/stats"
)

// noopLogger discards everything; avoids pulling the real zap/lumberjack
// sink (and its file I/O) into a package-level unit test.
type noopLogger struct{}

func (noopLogger) With(_ ...servicelog.Attrib) servicelog.Logger { return noopLogger{} }
func (noopLogger) Info(string, ...servicelog.Attrib)             {}
func (noopLogger) Error(string, ...servicelog.Attrib)            {}
func (noopLogger) Warn(string, ...servicelog.Attrib)             {}
func (noopLogger) Debug(string, ...servicelog.Attrib)            {}
func (noopLogger) Fatal(string, ...servicelog.Attrib)            {}

type fixedClient struct {
	resp *http.Response
	err  error
}

func (c fixedClient) Do(req *http.Request) (*http.Response, error) {
	return c.resp, c.err
}

type stubClock struct{ now int64 }

func (c *stubClock) NowMs() int64 { return c.now }

type stubDecoder struct {
	mu    sync.Mutex
	calls int
}

func (d *stubDecoder) Decode(data []byte) (frameslot.PixelBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return frameslot.PixelBuffer{Width: 320, Height: 240, Format: frameslot.RGB24, Bytes: make([]byte, 3)}, nil
}

func okResponse(body io.ReadCloser) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", "multipart/x-mixed-replace; boundary=myboundary")
	return &http.Response{StatusCode: http.StatusOK, Header: h, Body: body}
}

func multipartFrame(boundary string, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString("Content-Type: image/jpeg\r\n\r\n")
	buf.Write(payload)
	buf.WriteString("\r\n--" + boundary + "--")
	return buf.Bytes()
}

func validJPEG(n int) []byte {
	buf := make([]byte, n)
	buf[0], buf[1] = 0xFF, 0xD8
	buf[n-2], buf[n-1] = 0xFF, 0xD9
	return buf
}

func newDeps(client grabbertransport.Client, decoder *stubDecoder, clock *stubClock, state *reconnect.State, stopping func() bool) Deps {
	return Deps{
		Config: camconfig.CameraConfig{
			Name:                  "cam1",
			URL:                   "http://camera.example/stream",
			DefaultBoundaryMarker: "--myboundary",
			MaxFrameBytes:         1 << 20,
			AutoRetryDelayMs:      1000,
		},
		Slot:      frameslot.New(),
		Stats:     &stats.Statistics{},
		State:     state,
		Mu:        &sync.Mutex{},
		Transport: grabbertransport.New(client),
		Decoder:   decoder,
		Clock:     clock,
		Logger:    noopLogger{},
		Stopping:  stopping,
	}
}

func TestRunEndOfStreamSchedulesRetry(t *testing.T) {
	frame := multipartFrame("myboundary", validJPEG(200))
	client := fixedClient{resp: okResponse(io.NopCloser(bytes.NewReader(frame)))}
	decoder := &stubDecoder{}
	clock := &stubClock{now: 42}
	state := reconnect.New()
	state.BeginConnect()

	w := New(newDeps(client, decoder, clock, state, nil))
	outcome, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if outcome != EndOfStream {
		t.Fatalf("Run() outcome = %v, want EndOfStream", outcome)
	}
	if decoder.calls != 1 {
		t.Fatalf("decoder invoked %d times, want 1", decoder.calls)
	}
	if state.Connection != reconnect.WaitingToRetry {
		t.Fatalf("state.Connection = %v, want WaitingToRetry (EOF still schedules a reconnect)", state.Connection)
	}
}

func TestRunTransportFailureSchedulesRetry(t *testing.T) {
	client := fixedClient{err: errors.New("dial tcp: connection refused")}
	decoder := &stubDecoder{}
	clock := &stubClock{now: 10}
	state := reconnect.New()
	state.BeginConnect()

	w := New(newDeps(client, decoder, clock, state, nil))
	outcome, err := w.Run(context.Background())
	if err == nil {
		t.Fatalf("expected a non-nil error from a failed transport open")
	}
	if outcome != TransportFailed {
		t.Fatalf("Run() outcome = %v, want TransportFailed", outcome)
	}
	if state.Connection != reconnect.WaitingToRetry {
		t.Fatalf("state.Connection = %v, want WaitingToRetry", state.Connection)
	}
	if state.NextRetryAtMs != 1010 {
		t.Fatalf("NextRetryAtMs = %d, want 1010 (now=10 + AutoRetryDelayMs=1000)", state.NextRetryAtMs)
	}
}

func TestRunStoppingExitsWithoutSchedulingRetry(t *testing.T) {
	// A body that would otherwise stream forever; Stopping() being true
	// from the first loop iteration means it must never even be read.
	pr, pw := io.Pipe()
	defer pw.Close()
	client := fixedClient{resp: okResponse(pr)}
	decoder := &stubDecoder{}
	clock := &stubClock{now: 5}
	state := reconnect.New()
	state.BeginConnect()

	w := New(newDeps(client, decoder, clock, state, func() bool { return true }))
	outcome, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if outcome != Stopped {
		t.Fatalf("Run() outcome = %v, want Stopped", outcome)
	}
	if state.Connection != reconnect.Connecting {
		t.Fatalf("state.Connection = %v, want unchanged Connecting (no retry scheduled on a cooperative stop)", state.Connection)
	}
	if decoder.calls != 0 {
		t.Fatalf("decoder invoked %d times, want 0", decoder.calls)
	}
}

func TestExtractBoundaryFallsBackWhenContentTypeMissing(t *testing.T) {
	got, err := extractBoundary(http.Header{}, "--fallback")
	if err != nil {
		t.Fatalf("extractBoundary: %v", err)
	}
	if got != "--fallback" {
		t.Fatalf("extractBoundary() = %q, want %q", got, "--fallback")
	}
}

func TestExtractBoundaryNormalizesMissingDashes(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "multipart/x-mixed-replace;boundary=myboundary")
	got, err := extractBoundary(h, "--fallback")
	if err != nil {
		t.Fatalf("extractBoundary: %v", err)
	}
	if got != "--myboundary" {
		t.Fatalf("extractBoundary() = %q, want %q", got, "--myboundary")
	}
}

func TestExtractBoundaryFallsBackOnNonMultipartContentType(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	got, err := extractBoundary(h, "--fallback")
	if err != nil {
		t.Fatalf("extractBoundary: %v", err)
	}
	if got != "--fallback" {
		t.Fatalf("extractBoundary() = %q, want %q", got, "--fallback")
	}
}

func TestExtractBoundaryRejectsMalformedContentType(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", ";;;not a media type")
	if _, err := extractBoundary(h, "--fallback"); err == nil {
		t.Fatalf("expected an error for a malformed Content-Type header")
	}
}
