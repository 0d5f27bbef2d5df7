package duckdb

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/threatlens/threatlens/internal/journal"
	"github.com/threatlens/threatlens/internal/model"
)

func TestInsertBuffer_AddAndStop(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	for i := 0; i < 10; i++ {
		buf.Add(testEntry())
	}

	// Stop should flush all pending entries.
	buf.Stop()

	count, err := store.TotalEntryCount()
	if err != nil {
		t.Fatalf("TotalEntryCount: %v", err)
	}
	if count != 10 {
		t.Errorf("after Stop, TotalEntryCount = %d, want 10", count)
	}
}

func TestInsertBuffer_BatchThreshold(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 100})

	// More than one full batch forces immediate flushes.
	for i := 0; i < 250; i++ {
		buf.Add(testEntry())
	}

	buf.Stop()

	count, err := store.TotalEntryCount()
	if err != nil {
		t.Fatalf("TotalEntryCount: %v", err)
	}
	if count != 250 {
		t.Errorf("after batch insert, TotalEntryCount = %d, want 250", count)
	}
}

func TestInsertBuffer_ConcurrentAdd(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	var wg sync.WaitGroup
	numGoroutines := 10
	entriesPerGoroutine := 50

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < entriesPerGoroutine; i++ {
				buf.Add(testEntry())
			}
		}()
	}

	wg.Wait()
	buf.Stop()

	expected := int64(numGoroutines * entriesPerGoroutine)
	count, err := store.TotalEntryCount()
	if err != nil {
		t.Fatalf("TotalEntryCount: %v", err)
	}
	if count != expected {
		t.Errorf("concurrent insert TotalEntryCount = %d, want %d", count, expected)
	}
}

func TestInsertBuffer_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	buf.Add(testEntry())

	buf.Stop()
	buf.Stop()

	count, err := store.TotalEntryCount()
	if err != nil {
		t.Fatalf("TotalEntryCount: %v", err)
	}
	if count != 1 {
		t.Errorf("after double Stop, TotalEntryCount = %d, want 1", count)
	}
}

func TestInsertBuffer_AssignsEntryID(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	e := testEntry()
	e.EntryID = ""
	buf.Add(e)
	buf.Stop()

	if e.EntryID == "" {
		t.Error("Add did not assign an entry ID")
	}
}

func TestInsertBuffer_JournalCommitOnFlush(t *testing.T) {
	store := newTestStore(t)

	j, err := journal.Open(filepath.Join(t.TempDir(), "ingest.journal"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	buf := NewInsertBuffer(store, InsertBufferConfig{Journal: j})

	for i := 0; i < 5; i++ {
		buf.Add(testEntry())
	}
	buf.Stop()

	// After a clean Stop every journaled entry is committed.
	if got := j.Committed(); got < 5 {
		t.Errorf("Committed = %d, want >= 5", got)
	}

	count, err := store.TotalEntryCount()
	if err != nil {
		t.Fatalf("TotalEntryCount: %v", err)
	}
	if count != 5 {
		t.Errorf("TotalEntryCount = %d, want 5", count)
	}
}

func TestInsertEntryBatch_Empty(t *testing.T) {
	store := newTestStore(t)
	if err := store.InsertEntryBatch(nil); err != nil {
		t.Errorf("InsertEntryBatch(nil) = %v, want nil", err)
	}
}

func TestInsertEntryBatch_PersistsAnalysis(t *testing.T) {
	store := newTestStore(t)

	in := testEntry(func(e *model.AnalyzedEntry) {
		e.EventDescription = "sql injection detected"
		e.Attributes = map[string]string{"action": "BLOCK", "url": "http://evil.test"}
		e.Analysis = model.AnalysisResult{
			Status:            model.StatusAnomaly,
			Confidence:        0.95,
			Explanation:       "Matched: injection attempt",
			ThreatLevel:       model.ThreatHigh,
			RecommendedAction: "Investigate immediately",
			Tier:              "rules",
		}
	})
	if err := store.InsertEntryBatch([]*model.AnalyzedEntry{in}); err != nil {
		t.Fatalf("InsertEntryBatch: %v", err)
	}

	out, err := store.RecentEntriesFiltered(10, nil, nil, "")
	if err != nil {
		t.Fatalf("RecentEntriesFiltered: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d entries, want 1", len(out))
	}
	got := out[0]
	if got.Analysis.Status != model.StatusAnomaly || got.Analysis.Confidence != 0.95 {
		t.Errorf("analysis = %+v", got.Analysis)
	}
	if got.Analysis.ThreatLevel != model.ThreatHigh || got.Analysis.Tier != "rules" {
		t.Errorf("analysis = %+v", got.Analysis)
	}
	if got.Attributes["action"] != "BLOCK" {
		t.Errorf("attributes = %v", got.Attributes)
	}
	if got.RawLogLine != "raw test line" {
		t.Errorf("RawLogLine = %q", got.RawLogLine)
	}
}
