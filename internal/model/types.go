package model

import "time"

// Submission is one log received by the collector.
// It is the canonical type for the index store and the JSON API.
type Submission struct {
	ID             string         `json:"id"`
	ReceivedAt     time.Time      `json:"received_at"`
	Tool           string         `json:"tool"`
	ToolVersion    string         `json:"tool_version"`
	LZMAMD5        string         `json:"lzma_md5"`
	CompressedSize int64          `json:"compressed_size"`
	LogSize        int64          `json:"log_size"` // decompressed UTF-8 bytes
	RemoteAddr     string         `json:"remote_addr,omitempty"`
	Severity       SeverityCounts `json:"severity"`
	Attachments    []Attachment   `json:"attachments,omitempty"`
}

// Attachment describes one extra file sent with a submission.
type Attachment struct {
	Field string `json:"field"`
	Size  int64  `json:"size"`
}

// SeverityCounts holds per-level line counts for one log.
type SeverityCounts struct {
	Trace int64 `json:"trace"`
	Debug int64 `json:"debug"`
	Info  int64 `json:"info"`
	Warn  int64 `json:"warn"`
	Error int64 `json:"error"`
	Fatal int64 `json:"fatal"`
	Total int64 `json:"total"`
}

// Add counts one line of the given normalized severity
// (TRACE/DEBUG/INFO/WARN/ERROR/FATAL). Unknown values count toward Total only.
func (c *SeverityCounts) Add(severity string) {
	switch severity {
	case "TRACE":
		c.Trace++
	case "DEBUG":
		c.Debug++
	case "INFO":
		c.Info++
	case "WARN":
		c.Warn++
	case "ERROR":
		c.Error++
	case "FATAL":
		c.Fatal++
	}
	c.Total++
}
