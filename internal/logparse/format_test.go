package logparse

import (
	"testing"

	"github.com/threatlens/threatlens/internal/model"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		expected model.LogFormat
	}{
		{
			"zscaler csv",
			[]string{"2024,10.0.0.5,10.0.0.9,BLOCK,http://evil.test,malware,alice,policy"},
			model.FormatZScaler,
		},
		{
			"zscaler allow",
			[]string{"2024-01-15 10:30:45,192.168.1.10,8.8.8.8,ALLOW,https://example.com,news,bob,ok"},
			model.FormatZScaler,
		},
		{
			"apache combined",
			[]string{`127.0.0.1 - - [10/Oct/2023:13:55:36 +0000] "GET /admin HTTP/1.1" 403 2326`},
			model.FormatApache,
		},
		{
			"windows event",
			[]string{"Event ID: 4625 Source: Microsoft-Windows-Security-Auditing An account failed to log on"},
			model.FormatWindows,
		},
		{
			"linux syslog",
			[]string{"Jan 15 10:30:45 web01 sshd[1234]: Failed password for root from 10.0.0.1"},
			model.FormatLinux,
		},
		{
			"generic text",
			[]string{"something happened and nobody knows why"},
			model.FormatGeneric,
		},
		{
			"empty sample",
			[]string{"", "   ", ""},
			model.FormatGeneric,
		},
		{
			"blank lines before match",
			[]string{"", "", "Jan 15 10:30:45 web01 cron[1]: job started"},
			model.FormatLinux,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectFormat(tt.lines)
			if got != tt.expected {
				t.Errorf("DetectFormat(%v) = %q, want %q", tt.lines, got, tt.expected)
			}
		})
	}
}

func TestDetectFormat_PriorityBeatsPosition(t *testing.T) {
	// A zscaler line on line 3 outranks a linux line on line 1.
	lines := []string{
		"Jan 15 10:30:45 web01 sshd[1234]: session opened",
		"noise line",
		"2024,10.0.0.5,10.0.0.9,DENY,http://bad.example,phishing,carol,policy",
	}
	if got := DetectFormat(lines); got != model.FormatZScaler {
		t.Errorf("DetectFormat = %q, want zscaler (priority over position)", got)
	}
}

func TestDetectFormat_SampleLimit(t *testing.T) {
	// The matching line is the 6th non-blank line, outside the sample window.
	lines := []string{
		"one", "two", "three", "four", "five",
		"2024,10.0.0.5,10.0.0.9,BLOCK,http://evil.test,malware,alice,policy",
	}
	if got := DetectFormat(lines); got != model.FormatGeneric {
		t.Errorf("DetectFormat = %q, want generic (sample capped at 5 lines)", got)
	}
}

func TestDetectFormat_NginxVsApache(t *testing.T) {
	// Apache-shaped lines (bracketed timestamp after identity fields) win over
	// the looser nginx HTTP/ check.
	lines := []string{`10.1.2.3 - - [10/Oct/2023:13:55:36 +0000] "GET / HTTP/1.1" 200 512 "-" "curl/8.0"`}
	if got := DetectFormat(lines); got != model.FormatApache {
		t.Errorf("DetectFormat = %q, want apache", got)
	}
}
