package ingest

import (
	"sync"
	"testing"

	"github.com/threatlens/threatlens/internal/classify"
	"github.com/threatlens/threatlens/internal/model"
)

type captureSink struct {
	mu      sync.Mutex
	entries []*model.AnalyzedEntry
}

func (s *captureSink) Add(e *model.AnalyzedEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *captureSink) all() []*model.AnalyzedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.AnalyzedEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func newTestAnalyzer(t *testing.T) Analyzer {
	t.Helper()
	c, err := classify.New(classify.Config{})
	if err != nil {
		t.Fatalf("classify.New: %v", err)
	}
	return c
}

func TestStreamProcessor_ParsesPerLine(t *testing.T) {
	sink := &captureSink{}
	p := NewStreamProcessor(sink, newTestAnalyzer(t), "tcp")

	result := p.ProcessLine(`192.168.1.10 - frank [10/Oct/2026:13:55:36 -0700] "GET /index.html HTTP/1.0" 200 2326`)
	if result == nil || result.Entry == nil {
		t.Fatal("ProcessLine returned nil for a valid apache line")
	}
	if result.Entry.LogType != model.FormatApache {
		t.Errorf("LogType = %q, want apache", result.Entry.LogType)
	}
	if result.Entry.IPAddress != "192.168.1.10" {
		t.Errorf("IPAddress = %q", result.Entry.IPAddress)
	}
	if result.Entry.Source != "tcp" {
		t.Errorf("Source = %q, want tcp", result.Entry.Source)
	}
	if !result.Entry.Analysis.Status.Valid() {
		t.Errorf("entry was not classified: %+v", result.Entry.Analysis)
	}

	if len(sink.all()) != 1 {
		t.Errorf("sink received %d entries, want 1", len(sink.all()))
	}
}

func TestStreamProcessor_BlankLineDropped(t *testing.T) {
	sink := &captureSink{}
	p := NewStreamProcessor(sink, newTestAnalyzer(t), "stdin")

	if result := p.ProcessLine(""); result != nil {
		t.Errorf("blank line produced %+v, want nil", result)
	}
	if len(sink.all()) != 0 {
		t.Error("blank line reached the sink")
	}
}

func TestStreamProcessor_UnstructuredFallsBackToGeneric(t *testing.T) {
	sink := &captureSink{}
	p := NewStreamProcessor(sink, newTestAnalyzer(t), "stdin")

	result := p.ProcessLine("something completely freeform happened")
	if result == nil || result.Entry == nil {
		t.Fatal("unstructured line was dropped")
	}
	if result.Entry.LogType != model.FormatGeneric {
		t.Errorf("LogType = %q, want generic", result.Entry.LogType)
	}
	if result.Entry.RawLogLine != "something completely freeform happened" {
		t.Errorf("RawLogLine = %q", result.Entry.RawLogLine)
	}
}

func TestStreamProcessor_EnvelopeSourceWins(t *testing.T) {
	sink := &captureSink{}
	p := NewStreamProcessor(sink, newTestAnalyzer(t), "stdin")

	result := p.ProcessEnvelope(model.IngestEnvelope{Source: "tcp", Line: "hello"})
	if result.Entry.Source != "tcp" {
		t.Errorf("Source = %q, want envelope source tcp", result.Entry.Source)
	}

	result = p.ProcessEnvelope(model.IngestEnvelope{Line: "hello again"})
	if result.Entry.Source != "stdin" {
		t.Errorf("Source = %q, want default stdin", result.Entry.Source)
	}
}

func TestStreamProcessor_RepetitionContextCarries(t *testing.T) {
	sink := &captureSink{}
	p := NewStreamProcessor(sink, newTestAnalyzer(t), "tcp")

	// Same source address repeating a weak signal escalates once more than
	// five prior entries share the address.
	line := `203.0.113.50 - - [10/Oct/2026:13:55:36 -0700] "GET /login HTTP/1.0" 401 128 failed login`
	for i := 0; i < 7; i++ {
		p.ProcessLine(line)
	}

	entries := sink.all()
	if len(entries) != 7 {
		t.Fatalf("sink received %d entries, want 7", len(entries))
	}
	if entries[0].Analysis.Status != model.StatusNormal {
		t.Errorf("first entry status = %q, want normal", entries[0].Analysis.Status)
	}
	if entries[6].Analysis.Status == model.StatusNormal {
		t.Errorf("seventh entry status = %q, want escalated", entries[6].Analysis.Status)
	}
}

func TestStreamProcessor_ContextWindowBounded(t *testing.T) {
	sink := &captureSink{}
	p := NewStreamProcessor(sink, newTestAnalyzer(t), "tcp")

	for i := 0; i < model.DefaultContextWindow+50; i++ {
		p.ProcessLine("routine heartbeat ok")
	}

	p.mu.Lock()
	size := len(p.recent)
	p.mu.Unlock()
	if size > model.DefaultContextWindow {
		t.Errorf("context window grew to %d, want <= %d", size, model.DefaultContextWindow)
	}
}

func TestStreamProcessor_LineNumbersIncrease(t *testing.T) {
	sink := &captureSink{}
	p := NewStreamProcessor(sink, newTestAnalyzer(t), "stdin")

	p.ProcessLine("first")
	p.ProcessLine("second")

	entries := sink.all()
	if entries[0].LineNumber != 1 || entries[1].LineNumber != 2 {
		t.Errorf("line numbers = %d, %d", entries[0].LineNumber, entries[1].LineNumber)
	}
}
