package model

import "time"

// LogFormat identifies the textual log format detected for a file or line.
// The set is closed: adding a format means adding a constant here and a
// parse arm in logparse.
type LogFormat string

const (
	FormatZScaler LogFormat = "zscaler"
	FormatApache  LogFormat = "apache"
	FormatNginx   LogFormat = "nginx"
	FormatWindows LogFormat = "windows"
	FormatLinux   LogFormat = "linux"
	FormatGeneric LogFormat = "generic"
)

// Formats lists every supported log format in detection priority order.
var Formats = []LogFormat{
	FormatZScaler, FormatApache, FormatNginx,
	FormatWindows, FormatLinux, FormatGeneric,
}

// Valid reports whether f is one of the supported formats.
func (f LogFormat) Valid() bool {
	switch f {
	case FormatZScaler, FormatApache, FormatNginx, FormatWindows, FormatLinux, FormatGeneric:
		return true
	}
	return false
}

// AnalysisStatus is the classification verdict for one entry.
type AnalysisStatus string

const (
	StatusNormal     AnalysisStatus = "normal"
	StatusSuspicious AnalysisStatus = "suspicious"
	StatusAnomaly    AnalysisStatus = "anomaly"
)

// Valid reports whether s is a known analysis status.
func (s AnalysisStatus) Valid() bool {
	switch s {
	case StatusNormal, StatusSuspicious, StatusAnomaly:
		return true
	}
	return false
}

// ThreatLevel is the coarse severity bucket attached to an analysis result.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Valid reports whether t is a known threat level.
func (t ThreatLevel) Valid() bool {
	switch t {
	case ThreatLow, ThreatMedium, ThreatHigh, ThreatCritical:
		return true
	}
	return false
}

// ParsedLogEntry is the normalized record produced by parsing one log line.
// It is the canonical type for classification, storage, and the read API.
// RawLogLine always holds the source line verbatim.
type ParsedLogEntry struct {
	Timestamp        time.Time         `json:"timestamp"`
	IPAddress        string            `json:"ip_address"`
	EventDescription string            `json:"event_description"`
	RawLogLine       string            `json:"raw_log_line"`
	LogType          LogFormat         `json:"log_type"`
	LineNumber       int               `json:"line_number,omitempty"`
	StatusCode       int               `json:"status_code,omitempty"` // 0 = not an HTTP-style record
	Hostname         string            `json:"hostname,omitempty"`
	Service          string            `json:"service,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"` // format-specific extras
	Source           string            `json:"source,omitempty"`     // "upload", "tcp", "stdin"
	EntryID          string            `json:"entry_id,omitempty"`
}

// AnalysisResult holds the risk annotation produced by exactly one
// classification tier.
type AnalysisResult struct {
	Status            AnalysisStatus `json:"status"`
	Confidence        float64        `json:"confidence_score"` // [0.0, 1.0]
	Explanation       string         `json:"explanation"`
	ThreatLevel       ThreatLevel    `json:"threat_level"`
	RecommendedAction string         `json:"recommended_action"`
	Tier              string         `json:"tier,omitempty"` // strategy that produced the result
}

// AnalyzedEntry is a parsed entry merged with its analysis result.
// It is the unit persisted and returned externally.
type AnalyzedEntry struct {
	ParsedLogEntry
	Analysis AnalysisResult `json:"analysis"`
}

// IPCount represents a source address and its occurrence count.
type IPCount struct {
	IP    string `json:"ip"`
	Count int64  `json:"count"`
}

// LogSummary holds aggregate statistics over one parsed file.
type LogSummary struct {
	TotalEntries   int               `json:"total_entries"`
	UniqueIPs      int               `json:"unique_ips"`
	EarliestTime   time.Time         `json:"earliest_time"`
	LatestTime     time.Time         `json:"latest_time"`
	CountsByFormat map[LogFormat]int `json:"counts_by_format"`
	CountsByStatus map[int]int       `json:"counts_by_status_code"`
	TopIPs         map[string]int    `json:"top_ips"`
	TopEvents      map[string]int    `json:"top_events"`
}
