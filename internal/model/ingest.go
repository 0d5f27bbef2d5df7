package model

// IngestEnvelope carries one raw log line with source metadata.
// It is the transport contract between intake sources and processing.
type IngestEnvelope struct {
	Source string
	Line   string
}
