// Package grabbermetrics mirrors per-camera Statistics and ReconnectState
// into prometheus gauges/counters: one GaugeVec per exported field, kept
// current by a periodic Monitor(ctx, interval) polling loop per camera.
package grabbermetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warpcomdev/ipvideograbber/internal/grabber/reconnect"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/stats"
)

var (
	bytesIn = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ipvideograbber_bytes_in",
		Help: "Cumulative bytes received for the current connection",
	}, []string{"camera"})

	framesIn = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ipvideograbber_frames_in",
		Help: "Cumulative decoded frames for the current connection",
	}, []string{"camera"})

	bitrateBps = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ipvideograbber_bitrate_bps",
		Help: "Derived current bitrate in bits per second",
	}, []string{"camera"})

	framerate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ipvideograbber_framerate",
		Help: "Derived current framerate in frames per second",
	}, []string{"camera"})

	connectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ipvideograbber_connection_state",
		Help: "Current ConnectionState, as its ordinal value",
	}, []string{"camera"})

	reconnectCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ipvideograbber_reconnect_count",
		Help: "Number of reconnect attempts since the last Reset",
	}, []string{"camera"})

	decodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipvideograbber_decode_failures_total",
		Help: "Per-frame JPEG decode failures",
	}, []string{"camera"})

	parseOverflows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipvideograbber_parse_overflows_total",
		Help: "Number of MjpegParser scratch-buffer overflows",
	}, []string{"camera"})

	transportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipvideograbber_transport_errors_total",
		Help: "Number of TransportError worker exits",
	}, []string{"camera"})
)

// Source is the minimal read-only surface grabbermetrics polls; the
// public facade in pkg/grabber satisfies it.
type Source interface {
	Name() string
	StatsSnapshot() stats.Snapshot
	ConnectionState() reconnect.ConnectionState
	ReconnectCount() int
}

// ObserveDecodeFailure increments the per-camera decode-failure counter.
func ObserveDecodeFailure(camera string) {
	decodeFailures.WithLabelValues(camera).Inc()
}

// ObserveParseOverflow increments the per-camera overflow counter.
func ObserveParseOverflow(camera string) {
	parseOverflows.WithLabelValues(camera).Inc()
}

// ObserveTransportError increments the per-camera transport-error counter.
func ObserveTransportError(camera string) {
	transportErrors.WithLabelValues(camera).Inc()
}

// Monitor polls src every interval and publishes its state into the
// package's gauge vectors until ctx is cancelled. One Monitor goroutine is
// expected per camera.
func Monitor(ctx context.Context, src Source, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish(src)
		}
	}
}

func publish(src Source) {
	name := src.Name()
	snap := src.StatsSnapshot()
	bytesIn.WithLabelValues(name).Set(float64(snap.BytesIn))
	framesIn.WithLabelValues(name).Set(float64(snap.FramesIn))
	bitrateBps.WithLabelValues(name).Set(snap.BitrateBps())
	framerate.WithLabelValues(name).Set(snap.Framerate())
	connectionState.WithLabelValues(name).Set(float64(src.ConnectionState()))
	reconnectCount.WithLabelValues(name).Set(float64(src.ReconnectCount()))
}
