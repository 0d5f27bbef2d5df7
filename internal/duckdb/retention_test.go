package duckdb

import (
	"testing"
	"time"

	"github.com/threatlens/threatlens/internal/model"
)

func TestRetentionCleaner_DisabledWhenZero(t *testing.T) {
	store := newTestStore(t)
	if rc := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 0}); rc != nil {
		rc.Stop()
		t.Error("NewRetentionCleaner with 0 days should return nil")
	}
}

func TestRetentionCleaner_StartupCleanup(t *testing.T) {
	store := newTestStore(t)

	old := testEntry(func(e *model.AnalyzedEntry) {
		e.Timestamp = time.Now().Add(-40 * 24 * time.Hour)
	})
	fresh := testEntry()
	if err := store.InsertEntryBatch([]*model.AnalyzedEntry{old, fresh}); err != nil {
		t.Fatalf("InsertEntryBatch: %v", err)
	}

	rc := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 30})
	if rc == nil {
		t.Fatal("NewRetentionCleaner returned nil")
	}
	rc.Stop()

	count, err := store.TotalEntryCount()
	if err != nil {
		t.Fatalf("TotalEntryCount: %v", err)
	}
	if count != 1 {
		t.Errorf("count after startup cleanup = %d, want 1", count)
	}
}

func TestRetentionCleaner_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	rc := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 30})
	rc.Stop()
	rc.Stop()
}
