package logparse

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/tinytelemetry/diaglog/internal/model"
)

// SeverityRegex matches common severity levels in log text.
var SeverityRegex = regexp.MustCompile(`(?i)\b(TRACE|VERBOSE|DEBUG|INFO|WARN|WARNING|ERROR|FATAL|CRITICAL)\b`)

// LevelTagRegex matches the bracketed three-letter level code Serilog-style
// text sinks write after the timestamp, e.g. "[INF]".
var LevelTagRegex = regexp.MustCompile(`\[(VRB|DBG|INF|WRN|ERR|FTL)\]`)

// NormalizeSeverity converts various severity level formats to consistent all caps short forms.
func NormalizeSeverity(severity string) string {
	normalized := strings.ToUpper(strings.TrimSpace(severity))

	switch normalized {
	case "TRACE", "TRAC", "TRC", "VERBOSE", "VRB":
		return "TRACE"
	case "DEBUG", "DEBU", "DBG", "DEB":
		return "DEBUG"
	case "INFO", "INFORMATION", "INF":
		return "INFO"
	case "WARN", "WARNING", "WRNG", "WRN":
		return "WARN"
	case "ERROR", "ERR", "ERRO":
		return "ERROR"
	case "FATAL", "FATL", "FTL", "CRITICAL", "CRIT", "CRT":
		return "FATAL"
	case "PANIC", "PNC":
		return "FATAL"
	default:
		if len(normalized) >= 4 {
			prefix := normalized[:4]
			switch prefix {
			case "INFO":
				return "INFO"
			case "WARN":
				return "WARN"
			case "ERRO":
				return "ERROR"
			case "DEBU":
				return "DEBUG"
			case "TRAC", "VERB":
				return "TRACE"
			case "FATA", "CRIT":
				return "FATAL"
			}
		}
		return "INFO"
	}
}

// LineSeverity reports the severity a single line declares. A bracketed level
// code wins over a bare keyword; ok is false when the line declares neither,
// as with stack frames and other continuation lines.
func LineSeverity(line string) (severity string, ok bool) {
	if m := LevelTagRegex.FindStringSubmatch(line); len(m) > 1 {
		return NormalizeSeverity(m[1]), true
	}
	if m := SeverityRegex.FindStringSubmatch(line); len(m) > 1 {
		return NormalizeSeverity(m[1]), true
	}
	return "", false
}

// CountSeverities tallies the lines of text that declare a severity.
// Lines without one are not counted.
func CountSeverities(text string) model.SeverityCounts {
	var counts model.SeverityCounts
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if sev, ok := LineSeverity(sc.Text()); ok {
			counts.Add(sev)
		}
	}
	return counts
}
