package logsource

import "github.com/threatlens/threatlens/internal/model"

// LogSource is the unified interface for streaming log inputs (TCP, stdin).
type LogSource interface {
	Lines() <-chan model.IngestEnvelope // read-only channel of raw lines
	Stop()                              // graceful shutdown
	Name() string                       // "tcp", "stdin"
}
