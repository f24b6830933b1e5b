package duckdb

import "github.com/tinytelemetry/diaglog/internal/model"

// Type aliases re-export model types used in Store method signatures.
type (
	Submission = model.Submission
	Attachment = model.Attachment
)

var _ model.SubmissionStore = (*Store)(nil)
