package logparse

import (
	"github.com/threatlens/threatlens/internal/model"
)

const maxSummaryEvent = 50

// GenerateSummary aggregates statistics over parsed entries. It is pure:
// no IO, no mutation of the input.
func GenerateSummary(entries []*model.ParsedLogEntry) model.LogSummary {
	summary := model.LogSummary{
		TotalEntries:   len(entries),
		CountsByFormat: make(map[model.LogFormat]int),
		CountsByStatus: make(map[int]int),
		TopIPs:         make(map[string]int),
		TopEvents:      make(map[string]int),
	}

	for _, entry := range entries {
		summary.CountsByFormat[entry.LogType]++
		if entry.StatusCode > 0 {
			summary.CountsByStatus[entry.StatusCode]++
		}
		summary.TopIPs[entry.IPAddress]++
		summary.TopEvents[Truncate(entry.EventDescription, maxSummaryEvent)]++

		if summary.EarliestTime.IsZero() || entry.Timestamp.Before(summary.EarliestTime) {
			summary.EarliestTime = entry.Timestamp
		}
		if entry.Timestamp.After(summary.LatestTime) {
			summary.LatestTime = entry.Timestamp
		}
	}

	summary.UniqueIPs = len(summary.TopIPs)
	return summary
}
