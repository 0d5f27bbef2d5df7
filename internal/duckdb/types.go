package duckdb

import "github.com/threatlens/threatlens/internal/model"

// Type aliases re-export model types and contracts so consumers importing
// duckdb for these continue to compile.
type AnalyzedEntry = model.AnalyzedEntry
type IPCount = model.IPCount
type EntryQuerier = model.EntryQuerier
type SchemaQuerier = model.SchemaQuerier
type EntryWriter = model.EntryWriter
type EntryReader = model.EntryReader
