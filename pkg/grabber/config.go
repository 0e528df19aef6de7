package grabber

import "github.com/warpcomdev/ipvideograbber/internal/grabber/camconfig"

// CameraConfig is the immutable per-camera settings snapshot a caller
// builds (by hand, or via settings.LoadJSON/LoadXML) and passes to
// Configure. See camconfig.CameraConfig for field documentation.
type CameraConfig = camconfig.CameraConfig

// AuthMode selects how credentials are attached to the outbound request.
type AuthMode = camconfig.AuthMode

// ProxyConfig optionally routes the request through an HTTP proxy.
type ProxyConfig = camconfig.ProxyConfig

const (
	AuthNone   = camconfig.AuthNone
	AuthBasic  = camconfig.AuthBasic
	AuthCookie = camconfig.AuthCookie
)

const (
	DefaultSessionTimeoutMs   = camconfig.DefaultSessionTimeoutMs
	DefaultReconnectTimeoutMs = camconfig.DefaultReconnectTimeoutMs
	DefaultAutoRetryDelayMs   = camconfig.DefaultAutoRetryDelayMs
	DefaultMinBitrateBps      = camconfig.DefaultMinBitrateBps
	DefaultMaxReconnects      = camconfig.DefaultMaxReconnects
	DefaultMaxFrameBytes      = camconfig.DefaultMaxFrameBytes
	DefaultBoundaryMarker     = camconfig.DefaultBoundaryMarker
)
