package model

import "testing"

func TestSeverityCountsAdd(t *testing.T) {
	var c SeverityCounts
	for _, s := range []string{"TRACE", "DEBUG", "INFO", "INFO", "WARN", "ERROR", "FATAL", "BOGUS"} {
		c.Add(s)
	}

	want := SeverityCounts{Trace: 1, Debug: 1, Info: 2, Warn: 1, Error: 1, Fatal: 1, Total: 8}
	if c != want {
		t.Fatalf("counts = %+v, want %+v", c, want)
	}
}
