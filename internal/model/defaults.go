package model

// Shared defaults used by both the collector and CLI.
const (
	DefaultRetentionDays = 30
	DefaultMaxUploadMB   = 32
	DefaultListLimit     = 50
	MaxListLimit         = 500
)
