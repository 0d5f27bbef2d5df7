package logparse

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/threatlens/threatlens/internal/model"
)

const maxGenericDescription = 100

var (
	apacheLineRegex = regexp.MustCompile(
		`^(\d{1,3}(?:\.\d{1,3}){3})\s+(\S+)\s+(\S+)\s+\[([^\]]+)\]\s+"(\S+)\s+(\S+)\s+(\S+)"\s+(\d{3})\s+(\d+|-)`)

	nginxLineRegex = regexp.MustCompile(
		`^(\d{1,3}(?:\.\d{1,3}){3})\s+\S+\s+\S+\s+\[([^\]]+)\]\s+"(\S+)\s+(\S+)\s+(\S+)"\s+(\d{3})\s+(\d+)(?:\s+"([^"]*)"\s+"([^"]*)")?`)

	linuxLineRegex = regexp.MustCompile(
		`^([A-Z][a-z]{2}\s{1,2}\d{1,2}\s\d{2}:\d{2}:\d{2})\s+(\S+)\s+([^:\s\[]+)(?:\[(\d+)\])?:\s+(.+)$`)

	windowsEventIDRegex   = regexp.MustCompile(`Event ID:\s*(\d+)`)
	windowsSourceRegex    = regexp.MustCompile(`Source:\s*(\S+)`)
	windowsTimestampRegex = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}\s+\d{1,2}:\d{2}:\d{2}(?:\s*[AP]M)?`)

	ipv4Regex         = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)
	isoTimestampRegex = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
)

// ErrEmptyInput indicates the input has no parseable content at all.
var ErrEmptyInput = errors.New("logparse: input is empty")

// ParseResult is the outcome of parsing one file.
type ParseResult struct {
	Format     model.LogFormat
	TotalLines int
	Skipped    int
	Entries    []*model.ParsedLogEntry
	Summary    model.LogSummary
}

// ParseLogFile detects the format of content once, parses every line with
// the chosen format, and aggregates a summary. Individual malformed lines
// are skipped; only unreadable input fails the whole file.
func ParseLogFile(content string) (*ParseResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyInput
	}

	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	format := DetectFormat(lines)
	if !format.Valid() {
		// Guarded impossible case: DetectFormat only returns enum members.
		return nil, fmt.Errorf("logparse: unsupported log format %q", format)
	}

	result := &ParseResult{Format: format}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		result.TotalLines++
		entry := ParseLine(line, i+1, format)
		if entry == nil {
			result.Skipped++
			log.Printf("logparse: skipping malformed %s line %d", format, i+1)
			continue
		}
		result.Entries = append(result.Entries, entry)
	}

	result.Summary = GenerateSummary(result.Entries)
	return result, nil
}

// ParseLine converts one raw line into a ParsedLogEntry, or nil when the
// line does not match the expected shape for the format. The switch is
// exhaustive over the LogFormat enum.
func ParseLine(line string, lineNumber int, format model.LogFormat) *model.ParsedLogEntry {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	switch format {
	case model.FormatZScaler:
		return parseZScalerLine(line, lineNumber)
	case model.FormatApache:
		return parseApacheLine(line, lineNumber)
	case model.FormatNginx:
		return parseNginxLine(line, lineNumber)
	case model.FormatWindows:
		return parseWindowsLine(line, lineNumber)
	case model.FormatLinux:
		return parseLinuxLine(line, lineNumber)
	case model.FormatGeneric:
		return parseGenericLine(line, lineNumber)
	default:
		return nil
	}
}

// parseZScalerLine parses a proxy CSV line:
// timestamp, src_ip, dst_ip, action, url, category, user, reason, ...
func parseZScalerLine(line string, lineNumber int) *model.ParsedLogEntry {
	fields := strings.Split(line, ",")
	if len(fields) < 8 {
		return nil
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	action, url, category := fields[3], fields[4], fields[5]
	return &model.ParsedLogEntry{
		Timestamp:        ParseTimestamp(fields[0], model.FormatZScaler),
		IPAddress:        orUnknown(fields[1]),
		EventDescription: fmt.Sprintf("%s access to %s (Category: %s)", action, url, category),
		RawLogLine:       line,
		LogType:          model.FormatZScaler,
		LineNumber:       lineNumber,
		Attributes: map[string]string{
			"action":         action,
			"url":            url,
			"category":       category,
			"destination_ip": fields[2],
			"user":           fields[6],
			"reason":         fields[7],
		},
	}
}

func parseApacheLine(line string, lineNumber int) *model.ParsedLogEntry {
	m := apacheLineRegex.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	status, _ := strconv.Atoi(m[8])
	method, path, protocol := m[5], m[6], m[7]
	return &model.ParsedLogEntry{
		Timestamp:        ParseTimestamp(m[4], model.FormatApache),
		IPAddress:        m[1],
		EventDescription: fmt.Sprintf("%s %s (status %d)", method, path, status),
		RawLogLine:       line,
		LogType:          model.FormatApache,
		LineNumber:       lineNumber,
		StatusCode:       status,
		Attributes: map[string]string{
			"method":   method,
			"path":     path,
			"protocol": protocol,
			"bytes":    m[9],
			"user":     m[3],
		},
	}
}

func parseNginxLine(line string, lineNumber int) *model.ParsedLogEntry {
	m := nginxLineRegex.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	status, _ := strconv.Atoi(m[6])
	method, path, protocol := m[3], m[4], m[5]
	attrs := map[string]string{
		"method":   method,
		"path":     path,
		"protocol": protocol,
		"bytes":    m[7],
	}
	if m[8] != "" {
		attrs["referer"] = m[8]
	}
	if m[9] != "" {
		attrs["user_agent"] = m[9]
	}

	return &model.ParsedLogEntry{
		Timestamp:        ParseTimestamp(m[2], model.FormatNginx),
		IPAddress:        m[1],
		EventDescription: fmt.Sprintf("%s %s (status %d)", method, path, status),
		RawLogLine:       line,
		LogType:          model.FormatNginx,
		LineNumber:       lineNumber,
		StatusCode:       status,
		Attributes:       attrs,
	}
}

func parseWindowsLine(line string, lineNumber int) *model.ParsedLogEntry {
	eventID := firstSubmatch(windowsEventIDRegex, line)
	sourceName := firstSubmatch(windowsSourceRegex, line)
	if eventID == "" && sourceName == "" {
		return nil
	}

	rawTS := windowsTimestampRegex.FindString(line)

	description := line
	switch {
	case eventID != "" && sourceName != "":
		description = fmt.Sprintf("Event %s from %s", eventID, sourceName)
	case eventID != "":
		description = fmt.Sprintf("Event %s", eventID)
	case sourceName != "":
		description = fmt.Sprintf("Event from %s", sourceName)
	}

	attrs := map[string]string{}
	if eventID != "" {
		attrs["event_id"] = eventID
	}
	if sourceName != "" {
		attrs["source_name"] = sourceName
	}

	return &model.ParsedLogEntry{
		Timestamp:        ParseTimestamp(rawTS, model.FormatWindows),
		IPAddress:        "localhost",
		EventDescription: description,
		RawLogLine:       line,
		LogType:          model.FormatWindows,
		LineNumber:       lineNumber,
		Attributes:       attrs,
	}
}

func parseLinuxLine(line string, lineNumber int) *model.ParsedLogEntry {
	m := linuxLineRegex.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	hostname, service, message := m[2], m[3], m[5]
	attrs := map[string]string{"message": message}
	if m[4] != "" {
		attrs["pid"] = m[4]
	}

	return &model.ParsedLogEntry{
		Timestamp:        ParseTimestamp(m[1], model.FormatLinux),
		IPAddress:        hostname,
		EventDescription: fmt.Sprintf("%s: %s", service, message),
		RawLogLine:       line,
		LogType:          model.FormatLinux,
		LineNumber:       lineNumber,
		Hostname:         hostname,
		Service:          service,
		Attributes:       attrs,
	}
}

// parseGenericLine never returns nil for non-blank input: it extracts what
// it can and substitutes defaults for the rest.
func parseGenericLine(line string, lineNumber int) *model.ParsedLogEntry {
	ip := ipv4Regex.FindString(line)
	if ip == "" {
		ip = model.DefaultUnknownAddress
	}

	ts := ParseTimestamp(isoTimestampRegex.FindString(line), model.FormatGeneric)

	return &model.ParsedLogEntry{
		Timestamp:        ts,
		IPAddress:        ip,
		EventDescription: Truncate(line, maxGenericDescription),
		RawLogLine:       line,
		LogType:          model.FormatGeneric,
		LineNumber:       lineNumber,
	}
}

func firstSubmatch(re *regexp.Regexp, line string) string {
	m := re.FindStringSubmatch(line)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func orUnknown(s string) string {
	if s == "" {
		return model.DefaultUnknownAddress
	}
	return s
}

// Truncate shortens s to at most n runes, appending an ellipsis marker when
// anything was cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
