package logparse

import (
	"regexp"
	"strings"

	"github.com/threatlens/threatlens/internal/model"
)

// detectSampleSize caps how many non-blank lines detection inspects.
const detectSampleSize = 5

var (
	apacheDetectRegex = regexp.MustCompile(`^\d{1,3}(?:\.\d{1,3}){3}\s+\S+\s+\S+\s+\[[^\]]+\]`)
	nginxDetectRegex  = regexp.MustCompile(`^\d{1,3}(?:\.\d{1,3}){3}\s.*HTTP/\d`)
	linuxDetectRegex  = regexp.MustCompile(`^[A-Z][a-z]{2}\s{1,2}\d{1,2}\s\d{2}:\d{2}:\d{2}\s`)
)

// proxyActions are the action verbs accepted in a proxy CSV action field.
var proxyActions = map[string]bool{
	"ALLOW": true,
	"BLOCK": true,
	"DENY":  true,
}

// DetectFormat classifies raw log lines into one of the supported formats.
// It inspects at most the first detectSampleSize non-blank lines and checks
// formats in fixed priority order: a higher-priority format matching any
// sample line wins over a lower-priority format matching an earlier one.
func DetectFormat(lines []string) model.LogFormat {
	sample := make([]string, 0, detectSampleSize)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sample = append(sample, line)
		if len(sample) == detectSampleSize {
			break
		}
	}

	checks := []struct {
		format model.LogFormat
		match  func(string) bool
	}{
		{model.FormatZScaler, looksLikeZScaler},
		{model.FormatApache, apacheDetectRegex.MatchString},
		{model.FormatNginx, nginxDetectRegex.MatchString},
		{model.FormatWindows, looksLikeWindows},
		{model.FormatLinux, linuxDetectRegex.MatchString},
	}

	for _, check := range checks {
		for _, line := range sample {
			if check.match(line) {
				return check.format
			}
		}
	}
	return model.FormatGeneric
}

// looksLikeZScaler matches the proxy CSV shape: at least 8 comma fields with
// an action verb in field 3 and a URL in field 4.
func looksLikeZScaler(line string) bool {
	fields := strings.Split(line, ",")
	if len(fields) < 8 {
		return false
	}
	action := strings.TrimSpace(fields[3])
	url := strings.TrimSpace(fields[4])
	return proxyActions[action] && strings.HasPrefix(url, "http")
}

func looksLikeWindows(line string) bool {
	return strings.Contains(line, "Event ID") || strings.Contains(line, "Source:")
}
