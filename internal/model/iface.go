package model

import (
	"errors"
	"time"
)

// SubmissionWriter records received submissions.
type SubmissionWriter interface {
	InsertSubmission(s *Submission) error
}

// SubmissionReader provides read-only queries over recorded submissions.
type SubmissionReader interface {
	GetSubmission(id string) (*Submission, error)
	RecentSubmissions(limit int) ([]Submission, error)
	CountSubmissions() (int64, error)
}

// SubmissionStore is the unified index contract used by the collector.
type SubmissionStore interface {
	SubmissionWriter
	SubmissionReader
	DeleteBefore(cutoff time.Time) ([]string, error)
}

// ErrSubmissionNotFound is returned by stores for unknown submission IDs.
var ErrSubmissionNotFound = errors.New("submission not found")
