// Package codec holds the compression codec and content digest shared by the
// uploader and the collector.
//
// Logs travel as LZMA "alone" streams (the classic .lzma container: a 13 byte
// header with properties, dictionary size, and uncompressed length) so that
// existing collectors that expect lzmafile.lzma can read them.
package codec

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// ErrEmpty is returned when decompressing an empty payload.
var ErrEmpty = errors.New("codec: empty payload")

// LZMA compresses with the classic LZMA container and the uncompressed size
// recorded in the header. The zero value is ready to use.
type LZMA struct {
	// DictCap overrides the dictionary capacity. Zero uses the library default.
	DictCap int
}

// Compress returns the .lzma encoding of data. Output is deterministic for a
// given input and DictCap.
//
// The header cannot record a size of zero, so empty input is written with an
// unknown size and an end-of-stream marker instead.
func (c LZMA) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	cfg := lzma.WriterConfig{
		DictCap:      c.DictCap,
		SizeInHeader: true,
		Size:         int64(len(data)),
	}
	if len(data) == 0 {
		cfg.SizeInHeader = false
		cfg.EOSMarker = true
	}
	w, err := cfg.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("codec: lzma writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("codec: lzma write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: lzma close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress. It also accepts streams that use an
// end-of-stream marker instead of a recorded size.
func (LZMA) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("codec: lzma reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codec: lzma read: %w", err)
	}
	return out, nil
}

// MD5Hex returns the lowercase hex MD5 digest of data.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
