package uploader

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"sort"
	"strings"

	"github.com/tinytelemetry/diaglog/internal/diagerr"
)

// Form field names of the upload wire contract.
const (
	FieldToolVersion = "toolversion"
	FieldTool        = "tool"
	FieldLZMAMD5     = "lzmamd5"
	FieldLZMAFile    = "lzmafile"

	// LZMAFileName is the file name sent with the compressed log.
	LZMAFileName = "lzmafile.lzma"
)

// MaxAttachmentSize is the exclusive upper bound on attachment size.
const MaxAttachmentSize = 3 * 1024 * 1024

// Attachment is one file sent alongside the log.
type Attachment struct {
	Field string
	Path  string
	Data  []byte
}

// Form is the multipart body of one upload.
type Form struct {
	ToolVersion string
	Tool        string
	LZMAMD5     string
	LZMAFile    []byte
	Attachments []Attachment
}

// Encode renders the form as multipart/form-data and returns the body and
// its Content-Type header value.
func (f Form) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{FieldToolVersion, f.ToolVersion},
		{FieldTool, f.Tool},
		{FieldLZMAMD5, f.LZMAMD5},
	}
	for _, field := range fields {
		if err := w.WriteField(field.name, field.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field.name, err)
		}
	}

	part, err := w.CreateFormFile(FieldLZMAFile, LZMAFileName)
	if err != nil {
		return nil, "", fmt.Errorf("create %s part: %w", FieldLZMAFile, err)
	}
	if _, err := part.Write(f.LZMAFile); err != nil {
		return nil, "", fmt.Errorf("write %s part: %w", FieldLZMAFile, err)
	}

	for _, a := range f.Attachments {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, escapeQuotes(a.Field)))
		h.Set("Content-Type", "application/octet-stream")
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create attachment part %s: %w", a.Field, err)
		}
		if _, err := part.Write(a.Data); err != nil {
			return nil, "", fmt.Errorf("write attachment part %s: %w", a.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// LoadAttachments reads every regular file in paths (local path to form
// field name) that is smaller than MaxAttachmentSize, in path order.
// Missing and oversized files are skipped without error.
func LoadAttachments(paths map[string]string) ([]Attachment, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	var out []Attachment
	for _, p := range keys {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() || info.Size() >= MaxAttachmentSize {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, diagerr.Wrap(err, diagerr.KindIO, "read attachment "+p)
		}
		out = append(out, Attachment{Field: paths[p], Path: p, Data: data})
	}
	return out, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// escapeQuotes matches the escaping mime/multipart applies to field names.
func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
