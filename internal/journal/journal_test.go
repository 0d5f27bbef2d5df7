package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/threatlens/threatlens/internal/model"
)

func testEntry(desc string) *model.AnalyzedEntry {
	return &model.AnalyzedEntry{
		ParsedLogEntry: model.ParsedLogEntry{
			Timestamp:        time.Now().UTC(),
			IPAddress:        "192.0.2.1",
			EventDescription: desc,
			RawLogLine:       desc,
			LogType:          model.FormatGeneric,
			Source:           "tcp",
		},
		Analysis: model.AnalysisResult{
			Status:            model.StatusNormal,
			Confidence:        0.5,
			ThreatLevel:       model.ThreatLow,
			RecommendedAction: "Monitor",
			Tier:              "rules",
		},
	}
}

func TestAppendReplayCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	seq1, err := j.Append(testEntry("first"))
	if err != nil {
		t.Fatalf("Append first: %v", err)
	}
	seq2, err := j.Append(testEntry("second"))
	if err != nil {
		t.Fatalf("Append second: %v", err)
	}
	if seq2 <= seq1 {
		t.Fatalf("sequence did not advance: seq1=%d seq2=%d", seq1, seq2)
	}

	if err := j.Commit(seq1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var replayed []string
	err = j.Replay(func(_ uint64, r *model.AnalyzedEntry) error {
		replayed = append(replayed, r.EventDescription)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != 1 || replayed[0] != "second" {
		t.Fatalf("Replay descriptions=%v, want [second]", replayed)
	}
}

func TestReplayPreservesAnalysis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	in := testEntry("annotated")
	in.Analysis.Status = model.StatusAnomaly
	in.Analysis.Confidence = 0.95
	in.Attributes = map[string]string{"action": "BLOCK"}
	if _, err := j.Append(in); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var out *model.AnalyzedEntry
	err = j.Replay(func(_ uint64, r *model.AnalyzedEntry) error {
		out = r
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if out == nil {
		t.Fatal("Replay returned no entries")
	}
	if out.Analysis.Status != model.StatusAnomaly || out.Analysis.Confidence != 0.95 {
		t.Errorf("analysis not preserved: %+v", out.Analysis)
	}
	if out.Attributes["action"] != "BLOCK" {
		t.Errorf("attributes not preserved: %v", out.Attributes)
	}
}

func TestOpenIgnoresPartialTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := j.Append(testEntry("ok")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate torn write.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteString(`{"seq":999,"record":`); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close torn writer: %v", err)
	}

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	defer func() { _ = j2.Close() }()

	var replayed []string
	err = j2.Replay(func(_ uint64, r *model.AnalyzedEntry) error {
		replayed = append(replayed, r.EventDescription)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay second: %v", err)
	}
	if len(replayed) != 1 || replayed[0] != "ok" {
		t.Fatalf("Replay after torn write=%v, want [ok]", replayed)
	}
}

func TestCompactDropsCommittedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var last uint64
	for i := 0; i < 5; i++ {
		last, err = j.Append(testEntry("entry"))
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := j.Commit(last); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen compacts fully committed entries away.
	j2, err := Open(path)
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	defer func() { _ = j2.Close() }()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("journal size after compact = %d, want 0", info.Size())
	}

	// Sequence numbering continues past the committed point.
	seq, err := j2.Append(testEntry("after"))
	if err != nil {
		t.Fatalf("Append after compact: %v", err)
	}
	if seq <= last {
		t.Errorf("seq after compact = %d, want > %d", seq, last)
	}
}
