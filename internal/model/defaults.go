package model

import "time"

// Shared defaults used across the daemon.
const (
	DefaultQueryTimeout   = 30 * time.Second
	DefaultContextWindow  = 64 // rolling classification context for streamed lines
	DefaultUnknownAddress = "unknown"
)
