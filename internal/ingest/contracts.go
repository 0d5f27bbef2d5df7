package ingest

import (
	"context"

	"github.com/threatlens/threatlens/internal/model"
)

// RecordSink receives analyzed entries bound for storage.
type RecordSink interface {
	Add(entry *model.AnalyzedEntry)
}

// Analyzer annotates parsed entries with a classification verdict. The
// prior slice carries already-analyzed context in arrival order.
type Analyzer interface {
	AnalyzeEntry(ctx context.Context, entry *model.ParsedLogEntry, prior []*model.AnalyzedEntry) *model.AnalysisResult
	AnalyzeBatch(ctx context.Context, entries []*model.ParsedLogEntry) []*model.AnalyzedEntry
}

// ProcessResult holds the outcome of processing one ingest line.
type ProcessResult struct {
	Entry *model.AnalyzedEntry
}

// EnvelopeProcessor consumes source-tagged ingest lines and emits analyzed
// entries.
type EnvelopeProcessor interface {
	Name() string
	ProcessEnvelope(env model.IngestEnvelope) *ProcessResult
}
