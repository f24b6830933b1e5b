package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/diaglog/internal/model"
)

// ErrNotFound is returned when a submission ID is not in the index.
var ErrNotFound = model.ErrSubmissionNotFound

const submissionColumns = `id, received_at, tool, tool_version, lzma_md5, compressed_size, log_size, remote_addr,
	trace_count, debug_count, info_count, warn_count, error_count, fatal_count, line_count`

// InsertSubmission records a submission and its attachments in one transaction.
func (s *Store) InsertSubmission(sub *Submission) error {
	if sub == nil || sub.ID == "" {
		return errors.New("duckdb: submission id is empty")
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	c := sub.Severity
	_, err = tx.ExecContext(ctx, `INSERT INTO submissions (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ReceivedAt.UTC(), sub.Tool, sub.ToolVersion, sub.LZMAMD5,
		sub.CompressedSize, sub.LogSize, sub.RemoteAddr,
		c.Trace, c.Debug, c.Info, c.Warn, c.Error, c.Fatal, c.Total)
	if err != nil {
		return fmt.Errorf("insert submission %s: %w", sub.ID, err)
	}

	if len(sub.Attachments) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO attachments (submission_id, field, size) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range sub.Attachments {
			if _, err := stmt.ExecContext(ctx, sub.ID, a.Field, a.Size); err != nil {
				return fmt.Errorf("insert attachment %s/%s: %w", sub.ID, a.Field, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetSubmission returns one submission with its attachments, or ErrNotFound.
func (s *Store) GetSubmission(id string) (*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	byID, err := s.attachmentsFor(ctx, `submission_id = ?`, id)
	if err != nil {
		return nil, err
	}
	sub.Attachments = byID[id]
	return sub, nil
}

// RecentSubmissions returns up to limit submissions, newest first.
func (s *Store) RecentSubmissions(limit int) ([]Submission, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+submissionColumns+` FROM submissions
		ORDER BY received_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Submission
	var ids []any
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
		ids = append(ids, sub.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return subs, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	byID, err := s.attachmentsFor(ctx, `submission_id IN (`+placeholders+`)`, ids...)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Attachments = byID[subs[i].ID]
	}
	return subs, nil
}

// CountSubmissions returns the number of indexed submissions.
func (s *Store) CountSubmissions() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&count)
	return count, err
}

// DeleteBefore removes submissions received before cutoff, with their
// attachment rows, and returns the deleted IDs so callers can drop blobs.
func (s *Store) DeleteBefore(cutoff time.Time) ([]string, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	cutoff = cutoff.UTC()
	rows, err := tx.QueryContext(ctx, `SELECT id FROM submissions WHERE received_at < ? ORDER BY received_at`, cutoff)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE submission_id IN
		(SELECT id FROM submissions WHERE received_at < ?)`, cutoff); err != nil {
		return nil, fmt.Errorf("delete attachments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE received_at < ?`, cutoff); err != nil {
		return nil, fmt.Errorf("delete submissions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return ids, nil
}

func (s *Store) attachmentsFor(ctx context.Context, where string, args ...any) (map[string][]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT submission_id, field, size FROM attachments WHERE `+where+` ORDER BY field`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]Attachment)
	for rows.Next() {
		var id string
		var a Attachment
		if err := rows.Scan(&id, &a.Field, &a.Size); err != nil {
			return nil, err
		}
		out[id] = append(out[id], a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var sub Submission
	c := &sub.Severity
	err := row.Scan(&sub.ID, &sub.ReceivedAt, &sub.Tool, &sub.ToolVersion, &sub.LZMAMD5,
		&sub.CompressedSize, &sub.LogSize, &sub.RemoteAddr,
		&c.Trace, &c.Debug, &c.Info, &c.Warn, &c.Error, &c.Fatal, &c.Total)
	if err != nil {
		return nil, err
	}
	sub.ReceivedAt = sub.ReceivedAt.UTC()
	return &sub, nil
}
