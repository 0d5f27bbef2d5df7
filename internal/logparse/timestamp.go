package logparse

import (
	"strings"
	"time"

	"github.com/threatlens/threatlens/internal/model"
)

// Layout sets tried per format family. Order matters: more specific first.
var (
	clfLayouts = []string{
		"02/Jan/2006:15:04:05 -0700",
		"02/Jan/2006:15:04:05",
	}

	syslogLayouts = []string{
		"Jan _2 15:04:05",
		"Jan 2 15:04:05",
	}

	windowsLayouts = []string{
		"01/02/2006 3:04:05 PM",
		"1/2/2006 3:04:05 PM",
		"01/02/2006 15:04:05",
	}

	genericLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05,000",
		"2006-01-02 15:04:05",
		"2006-01-02",
		time.RFC1123Z,
		time.RFC1123,
	}
)

// ParseTimestamp converts a raw timestamp string into a time.Time using
// format-aware layouts. It is total: any input that cannot be parsed yields
// the current instant, never an error.
func ParseTimestamp(raw string, format model.LogFormat) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now()
	}

	var layouts []string
	switch format {
	case model.FormatApache, model.FormatNginx:
		layouts = clfLayouts
	case model.FormatLinux:
		return parseSyslogTimestamp(raw)
	case model.FormatWindows:
		layouts = append(windowsLayouts, genericLayouts...)
	default:
		layouts = genericLayouts
	}

	if ts, ok := tryLayouts(raw, layouts); ok {
		return ts
	}
	// Last resort for odd inputs (e.g. proxy epoch exports) before giving up.
	if ts, ok := tryLayouts(raw, genericLayouts); ok {
		return ts
	}
	return time.Now()
}

func tryLayouts(raw string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// parseSyslogTimestamp handles the yearless syslog prefix by injecting the
// current calendar year.
func parseSyslogTimestamp(raw string) time.Time {
	for _, layout := range syslogLayouts {
		ts, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		now := time.Now()
		ts = time.Date(now.Year(), ts.Month(), ts.Day(),
			ts.Hour(), ts.Minute(), ts.Second(), 0, time.Local)
		return ts
	}
	return time.Now()
}
