package shared

import "time"

// HTTP Client Configuration
const (
	DefaultHTTPTimeout     = 180 * time.Second
	DefaultProbeTimeout    = 3 * time.Second
	DefaultShutdownTimeout = 10 * time.Minute
)

// Streaming Configuration
const (
	// HeartbeatInterval bounds the encoder's wait on the result channel;
	// each empty interval produces one heartbeat frame.
	HeartbeatInterval = 1 * time.Second
)

// Generation defaults
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.1
)

// Video keyframe extraction
const (
	// DefaultFrameCount is the target number of keyframes sampled from a clip.
	DefaultFrameCount = 8
	// MinFrameInterval avoids degenerate zero-length steps on very short clips.
	MinFrameInterval = 500 * time.Millisecond
	// FallbackClipDuration is assumed when probing the container fails.
	FallbackClipDuration = 10 * time.Second
	// Frame bounding box; extracted frames are downscaled to fit.
	MaxFrameWidth  = 800
	MaxFrameHeight = 600
)

// Cache Configuration
const (
	DeployStatusCacheTTL = 5 * time.Minute
)

// Usage flushing
const (
	BucketFlushInterval = 1 * time.Minute
	BucketRetryDelay    = 30 * time.Second
	MaxFlushRetries     = 3
)
