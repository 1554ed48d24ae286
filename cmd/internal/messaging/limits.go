package messaging

import "time"

// Security/performance limits for the realtime channel and message content.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Max message content length (runes) after trimming.
	maxContentChars = 1000

	// History pagination bounds.
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

const (
	// Heartbeat defaults (can be overridden by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)
