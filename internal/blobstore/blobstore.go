// Package blobstore keeps received logs and attachments on disk, each
// compressed with zstd, under one directory per submission.
package blobstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755

	logFile       = "log.zst"
	attachmentDir = "attachments"
	blobExt       = ".zst"
)

var (
	// ErrNotFound is returned when a blob does not exist.
	ErrNotFound = errors.New("blobstore: not found")
	// ErrInvalidID is returned for submission IDs that are not safe path elements.
	ErrInvalidID = errors.New("blobstore: invalid id")
)

// Store is a directory of zstd-compressed blobs. It is safe for concurrent use.
type Store struct {
	root    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open creates root if needed and returns a Store rooted there.
func Open(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("blobstore: root is empty")
	}
	if err := os.MkdirAll(root, defaultDirMode); err != nil {
		return nil, fmt.Errorf("blobstore: mkdir: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithZeroFrames(true))
	if err != nil {
		return nil, fmt.Errorf("blobstore: zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("blobstore: zstd reader: %w", err)
	}
	return &Store{root: root, encoder: enc, decoder: dec}, nil
}

// Root returns the directory the store writes to.
func (s *Store) Root() string {
	return s.root
}

// PutLog stores the text of submission id.
func (s *Store) PutLog(id string, data []byte) error {
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	return s.write(filepath.Join(dir, logFile), data)
}

// GetLog returns the text of submission id.
func (s *Store) GetLog(id string) ([]byte, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}
	return s.read(filepath.Join(dir, logFile))
}

// PutAttachment stores one attachment of submission id under its form field name.
func (s *Store) PutAttachment(id, field string, data []byte) error {
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	return s.write(attachmentPath(dir, field), data)
}

// GetAttachment returns one attachment of submission id.
func (s *Store) GetAttachment(id, field string) ([]byte, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}
	return s.read(attachmentPath(dir, field))
}

// Delete removes every blob of submission id. Deleting a missing
// submission is not an error.
func (s *Store) Delete(id string) error {
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("blobstore: delete %s: %w", id, err)
	}
	// Drop the shard directory once it is empty; failure just leaves it behind.
	_ = os.Remove(filepath.Dir(dir))
	return nil
}

// Close releases the codec resources.
func (s *Store) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}

// dir shards submissions by the first two characters of their ID.
func (s *Store) dir(id string) (string, error) {
	if !validID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.root, id[:2], id), nil
}

func validID(id string) bool {
	if len(id) < 2 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Field names come straight from the client, so they are hex encoded
// before touching the filesystem.
func attachmentPath(dir, field string) string {
	return filepath.Join(dir, attachmentDir, hex.EncodeToString([]byte(field))+blobExt)
}

func (s *Store) write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return fmt.Errorf("blobstore: mkdir: %w", err)
	}
	compressed := s.encoder.EncodeAll(data, nil)

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return fmt.Errorf("blobstore: open tmp: %w", err)
	}
	if _, err := f.Write(compressed); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("blobstore: write tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("blobstore: sync tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("blobstore: close tmp: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("blobstore: rename: %w", err)
	}
	return nil
}

func (s *Store) read(path string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: read: %w", err)
	}
	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: decode %s: %w", filepath.Base(path), err)
	}
	return data, nil
}
