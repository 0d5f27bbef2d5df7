package ingest

import (
	"context"

	"github.com/threatlens/threatlens/internal/logparse"
	"github.com/threatlens/threatlens/internal/model"
)

// FileReport is the outcome of processing one uploaded log file.
type FileReport struct {
	Filename   string                 `json:"filename"`
	Format     model.LogFormat        `json:"format"`
	TotalLines int                    `json:"total_lines"`
	Skipped    int                    `json:"skipped_lines"`
	Entries    []*model.AnalyzedEntry `json:"entries"`
	Summary    model.LogSummary       `json:"summary"`
}

// FileProcessor handles whole-file ingestion: one format detection for the
// file, batch parsing, order-sensitive batch classification, and routing
// to the sink.
type FileProcessor struct {
	sink     RecordSink
	analyzer Analyzer
}

// NewFileProcessor creates a processor for uploaded files.
func NewFileProcessor(sink RecordSink, analyzer Analyzer) *FileProcessor {
	return &FileProcessor{sink: sink, analyzer: analyzer}
}

// ProcessFile parses and classifies a complete log file. Entries are
// tagged with the upload source and queued for storage; the report carries
// the analyzed entries and the file summary.
func (p *FileProcessor) ProcessFile(ctx context.Context, filename, content string) (*FileReport, error) {
	parsed, err := logparse.ParseLogFile(content)
	if err != nil {
		return nil, err
	}

	var analyzed []*model.AnalyzedEntry
	if p.analyzer != nil {
		analyzed = p.analyzer.AnalyzeBatch(ctx, parsed.Entries)
	} else {
		analyzed = make([]*model.AnalyzedEntry, 0, len(parsed.Entries))
		for _, e := range parsed.Entries {
			analyzed = append(analyzed, &model.AnalyzedEntry{ParsedLogEntry: *e})
		}
	}

	for _, e := range analyzed {
		e.Source = "upload"
		if p.sink != nil {
			p.sink.Add(e)
		}
	}

	return &FileReport{
		Filename:   filename,
		Format:     parsed.Format,
		TotalLines: parsed.TotalLines,
		Skipped:    parsed.Skipped,
		Entries:    analyzed,
		Summary:    parsed.Summary,
	}, nil
}
