package grabber

import "github.com/warpcomdev/ipvideograbber/internal/grabber/reconnect"

// ConnectionState is the grabber's connection lifecycle state (spec §3).
type ConnectionState = reconnect.ConnectionState

const (
	Idle              = reconnect.Idle
	Connecting        = reconnect.Connecting
	Streaming         = reconnect.Streaming
	Stalled           = reconnect.Stalled
	WaitingToRetry    = reconnect.WaitingToRetry
	FailedPermanently = reconnect.FailedPermanently
)
