package logparse

import (
	"strings"
	"testing"

	"github.com/tinytelemetry/diaglog/internal/model"
)

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Standard forms
		{"TRACE", "TRACE"}, {"DEBUG", "DEBUG"}, {"INFO", "INFO"},
		{"WARN", "WARN"}, {"ERROR", "ERROR"}, {"FATAL", "FATAL"},
		// Variants
		{"TRAC", "TRACE"}, {"TRC", "TRACE"}, {"VRB", "TRACE"}, {"VERBOSE", "TRACE"},
		{"DEBU", "DEBUG"}, {"DBG", "DEBUG"}, {"DEB", "DEBUG"},
		{"INFORMATION", "INFO"}, {"INF", "INFO"},
		{"WARNING", "WARN"}, {"WRNG", "WARN"}, {"WRN", "WARN"},
		{"ERR", "ERROR"}, {"ERRO", "ERROR"},
		{"FATL", "FATAL"}, {"FTL", "FATAL"},
		{"CRITICAL", "FATAL"}, {"CRIT", "FATAL"}, {"CRT", "FATAL"},
		{"PANIC", "FATAL"}, {"PNC", "FATAL"},
		// Case insensitive
		{"info", "INFO"}, {"warn", "WARN"}, {"error", "ERROR"},
		{"debug", "DEBUG"}, {"trace", "TRACE"}, {"fatal", "FATAL"},
		// Prefix matching
		{"INFORMATION_EXTRA", "INFO"}, {"WARNING_LEVEL", "WARN"},
		{"ERROR_CODE_42", "ERROR"}, {"DEBUG_VERBOSE", "DEBUG"},
		{"TRACE_ALL", "TRACE"}, {"FATAL_CRASH", "FATAL"},
		{"CRITICAL_ALERT", "FATAL"},
		// Unknown defaults to INFO
		{"", "INFO"}, {"UNKNOWN", "INFO"}, {"foo", "INFO"},
		// Whitespace
		{"  INFO  ", "INFO"}, {"\tWARN\t", "WARN"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeSeverity(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeSeverity(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLineSeverity(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"2026-10-19 12:00:00.000 +00:00 [INF] [ME3TWEAKSCORE] Starting", "INFO", true},
		{"2026-10-19 12:00:00.000 +00:00 [FTL] crash", "FATAL", true},
		{"2026-10-19 12:00:00.000 +00:00 [VRB] tick", "TRACE", true},
		{"[DBG] cache hit", "DEBUG", true},
		{"warning: deprecated", "WARN", true},
		{"   at main.run (main.go:12)", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := LineSeverity(tt.input)
			if got != tt.want || ok != tt.ok {
				t.Errorf("LineSeverity(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCountSeverities(t *testing.T) {
	text := strings.Join([]string{
		"2026-10-19 12:00:00.000 +00:00 [INF] [ME3TWEAKSCORE] Starting",
		"2026-10-19 12:00:00.001 +00:00 [INF] [ME3TWEAKSCORE] Loaded 4 mods",
		"2026-10-19 12:00:00.002 +00:00 [WRN] [ME3TWEAKSCORE] Slow disk",
		"2026-10-19 12:00:00.003 +00:00 [ERR] [ME3TWEAKSCORE] Handled error uploading log",
		"2026-10-19 12:00:00.003 +00:00 [ERR] [ME3TWEAKSCORE] HTTPError: post log",
		"   at uploader.(*Uploader).submit (uploader.go:170)",
		"",
		"2026-10-19 12:00:00.004 +00:00 [FTL] [ME3TWEAKSCORE] Unrecoverable",
	}, "\n")

	got := CountSeverities(text)
	want := model.SeverityCounts{Info: 2, Warn: 1, Error: 2, Fatal: 1, Total: 6}
	if got != want {
		t.Fatalf("CountSeverities = %+v, want %+v", got, want)
	}

	if empty := CountSeverities(""); empty != (model.SeverityCounts{}) {
		t.Fatalf("CountSeverities(\"\") = %+v, want zero", empty)
	}
}
