// Package camconfig defines CameraConfig, the immutable settings snapshot
// captured at connect time (spec §3), and its defaulting/validation,
// grounded on cmd/driver/config.go's Config.Check() pattern: fill in
// sane defaults for zero-valued fields, return an error only for fields
// that have no sane default.
package camconfig

import (
	"fmt"
	"net/url"

	"github.com/warpcomdev/ipvideograbber/internal/grabber/grabbertransport"
)

// Re-exported so callers only need to import this package for the auth
// enumeration and proxy shape, even though the concrete types live in
// grabbertransport (shared with the transport adapter, see worker.go).
type AuthMode = grabbertransport.AuthMode
type ProxyConfig = grabbertransport.ProxyConfig

const (
	AuthNone   = grabbertransport.AuthNone
	AuthBasic  = grabbertransport.AuthBasic
	AuthCookie = grabbertransport.AuthCookie
)

// Defaults, taken from the original ofxIpVideoGrabber constructor values
// and spec §1/§3.
const (
	DefaultSessionTimeoutMs   = 2000
	DefaultReconnectTimeoutMs = 5000
	DefaultAutoRetryDelayMs   = 1000
	DefaultMinBitrateBps      = 8
	DefaultMaxReconnects      = 20
	DefaultMaxFrameBytes      = 512 * 1024
	DefaultBoundaryMarker     = "--myboundary"
)

// CameraConfig is the immutable settings snapshot a GrabberWorker is
// spawned with.
type CameraConfig struct {
	Name     string
	URL      string
	Username string
	Password string
	AuthMode AuthMode
	Cookies  map[string]string
	Proxy    *ProxyConfig

	DefaultBoundaryMarker string

	SessionTimeoutMs   int64
	ReconnectTimeoutMs int64
	AutoRetryDelayMs   int64
	MinBitrateBps      float64
	MaxReconnects      int // -1 means unbounded
	MaxFrameBytes      int
}

// Validate checks the fields that have no sane default (currently just
// the URL) and fills in zero-valued timeouts/limits with the defaults
// above. It mirrors Config.Check()'s shape: mutate in place, return an
// error only when a required field truly cannot be defaulted.
func (c *CameraConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("camera %q: url is required", c.Name)
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("camera %q: invalid url: %w", c.Name, err)
	}
	if c.DefaultBoundaryMarker == "" {
		c.DefaultBoundaryMarker = DefaultBoundaryMarker
	}
	if c.SessionTimeoutMs <= 0 {
		c.SessionTimeoutMs = DefaultSessionTimeoutMs
	}
	if c.ReconnectTimeoutMs <= 0 {
		c.ReconnectTimeoutMs = DefaultReconnectTimeoutMs
	}
	if c.AutoRetryDelayMs <= 0 {
		c.AutoRetryDelayMs = DefaultAutoRetryDelayMs
	}
	if c.MinBitrateBps <= 0 {
		c.MinBitrateBps = DefaultMinBitrateBps
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = DefaultMaxReconnects
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.Name == "" {
		c.Name = c.URL
	}
	return nil
}
