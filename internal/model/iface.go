package model

import "time"

// EntryQuerier provides read-only queries on analyzed entries.
type EntryQuerier interface {
	TotalEntryCount() (int64, error)
	CountsByStatus() (map[string]int64, error)
	CountsByThreatLevel() (map[string]int64, error)
	CountsByFormat() (map[string]int64, error)
	TopSourceIPs(limit int) ([]IPCount, error)
	TimeRange() (time.Time, time.Time, error)
	RecentEntriesFiltered(limit int, statuses []string, threatLevels []string, messagePattern string) ([]AnalyzedEntry, error)
}

// SchemaQuerier provides schema introspection and guarded read-only SQL.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
}

// EntryWriter provides append-oriented write operations for analyzed entries.
type EntryWriter interface {
	InsertEntryBatch(entries []*AnalyzedEntry) error
}

// EntryReader is the unified read contract for query surfaces.
type EntryReader interface {
	EntryQuerier
	SchemaQuerier
}
