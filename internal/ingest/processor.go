package ingest

import (
	"context"
	"sync"

	"github.com/threatlens/threatlens/internal/logparse"
	"github.com/threatlens/threatlens/internal/model"
)

// StreamProcessor handles line-at-a-time ingestion from streaming sources
// (tcp, stdin). Each line is format-detected on its own, parsed, classified
// against a bounded window of recent entries, and routed to the sink.
type StreamProcessor struct {
	mu         sync.Mutex
	sink       RecordSink
	analyzer   Analyzer
	sourceName string

	// recent is the rolling classification context, newest last.
	recent        []*model.AnalyzedEntry
	contextWindow int
	lineCount     int
}

// NewStreamProcessor creates a processor for one streaming source.
func NewStreamProcessor(sink RecordSink, analyzer Analyzer, sourceName string) *StreamProcessor {
	return &StreamProcessor{
		sink:          sink,
		analyzer:      analyzer,
		sourceName:    sourceName,
		contextWindow: model.DefaultContextWindow,
	}
}

func (p *StreamProcessor) Name() string { return "stream" }

// ProcessLine processes an untagged line using the processor source name.
func (p *StreamProcessor) ProcessLine(line string) *ProcessResult {
	return p.ProcessEnvelope(model.IngestEnvelope{
		Source: p.getSourceName(),
		Line:   line,
	})
}

// ProcessEnvelope parses, classifies, and stores one source-tagged line.
// Blank lines are dropped; any other line yields an entry, via the generic
// parser if nothing structured matches.
func (p *StreamProcessor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	if env.Line == "" {
		return nil
	}

	source := env.Source
	if source == "" {
		source = p.getSourceName()
	}

	format := logparse.DetectFormat([]string{env.Line})

	p.mu.Lock()
	p.lineCount++
	lineNumber := p.lineCount
	p.mu.Unlock()

	entry := logparse.ParseLine(env.Line, lineNumber, format)
	if entry == nil {
		// A structured format matched on detection but the line itself did
		// not parse; keep the raw line rather than dropping it.
		entry = logparse.ParseLine(env.Line, lineNumber, model.FormatGeneric)
	}
	if entry == nil {
		return nil
	}
	entry.Source = source

	var analyzed *model.AnalyzedEntry
	if p.analyzer != nil {
		p.mu.Lock()
		prior := make([]*model.AnalyzedEntry, len(p.recent))
		copy(prior, p.recent)
		p.mu.Unlock()

		result := p.analyzer.AnalyzeEntry(context.Background(), entry, prior)
		analyzed = &model.AnalyzedEntry{ParsedLogEntry: *entry, Analysis: *result}

		p.mu.Lock()
		p.recent = append(p.recent, analyzed)
		if len(p.recent) > p.contextWindow {
			p.recent = p.recent[len(p.recent)-p.contextWindow:]
		}
		p.mu.Unlock()
	} else {
		analyzed = &model.AnalyzedEntry{ParsedLogEntry: *entry}
	}

	if p.sink != nil {
		p.sink.Add(analyzed)
	}

	return &ProcessResult{Entry: analyzed}
}

// SetSourceName updates the default source name for untagged lines.
func (p *StreamProcessor) SetSourceName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceName = name
}

func (p *StreamProcessor) getSourceName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sourceName
}
