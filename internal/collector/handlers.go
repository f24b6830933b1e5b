package collector

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/diaglog/internal/blobstore"
	"github.com/tinytelemetry/diaglog/internal/codec"
	"github.com/tinytelemetry/diaglog/internal/logparse"
	"github.com/tinytelemetry/diaglog/internal/model"
	"github.com/tinytelemetry/diaglog/internal/uploader"
)

var requiredFields = []string{
	uploader.FieldToolVersion,
	uploader.FieldTool,
	uploader.FieldLZMAMD5,
	uploader.FieldLZMAFile,
}

// rejection is a validation failure answered with 200 and a plain-text
// reason, which uploaders surface to the user as the server's reply.
type rejection string

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	form, err := c.MultipartForm()
	if err != nil {
		if isTooLarge(err) {
			c.String(http.StatusRequestEntityTooLarge, "Upload exceeds %d bytes", s.maxUpload)
			return
		}
		s.reject(c, rejection("Upload is not a valid multipart form"))
		return
	}
	defer form.RemoveAll()

	sub, text, attachments, rej, err := s.parseUpload(form)
	if err != nil {
		if isTooLarge(err) {
			c.String(http.StatusRequestEntityTooLarge, "Upload exceeds %d bytes", s.maxUpload)
			return
		}
		s.log.Exception(err, "collector: failed to read upload", false)
		c.String(http.StatusInternalServerError, "Failed to read upload")
		return
	}
	if rej != "" {
		s.reject(c, rej)
		return
	}

	sub.ID = s.newID()
	sub.ReceivedAt = time.Now().UTC()
	sub.RemoteAddr = c.ClientIP()
	sub.Severity = logparse.CountSeverities(string(text))

	if err := s.persist(sub, text, attachments); err != nil {
		s.log.Exception(err, "collector: failed to store submission "+sub.ID, false)
		c.String(http.StatusInternalServerError, "Failed to store log")
		return
	}

	s.log.Information(fmt.Sprintf("collector: stored submission %s from %s %s (%d bytes, %d attachments)",
		sub.ID, sub.Tool, sub.ToolVersion, sub.LogSize, len(sub.Attachments)))
	c.String(http.StatusOK, s.linkFor(c, sub.ID))
}

// parseUpload validates the wire fields. A non-empty rejection means the
// upload was well-formed HTTP but not an acceptable log.
func (s *Server) parseUpload(form *multipart.Form) (*model.Submission, []byte, map[string][]byte, rejection, error) {
	for _, name := range requiredFields {
		if !hasField(form, name) {
			return nil, nil, nil, rejection("Missing required field: " + name), nil
		}
	}
	textValue := func(name string) string { return strings.TrimSpace(form.Value[name][0]) }

	compressed, err := fieldBytes(form, uploader.FieldLZMAFile)
	if err != nil {
		return nil, nil, nil, "", err
	}
	digest := textValue(uploader.FieldLZMAMD5)
	if !strings.EqualFold(digest, codec.MD5Hex(compressed)) {
		return nil, nil, nil, rejection("lzmamd5 does not match the uploaded lzmafile"), nil
	}

	text, err := s.codec.Decompress(compressed)
	if err != nil {
		return nil, nil, nil, rejection("lzmafile is not valid LZMA data"), nil
	}

	extra := extraFields(form)
	attachments := make(map[string][]byte, len(extra))
	for _, name := range extra {
		data, err := fieldBytes(form, name)
		if err != nil {
			return nil, nil, nil, "", err
		}
		attachments[name] = data
	}

	sub := &model.Submission{
		Tool:           textValue(uploader.FieldTool),
		ToolVersion:    textValue(uploader.FieldToolVersion),
		LZMAMD5:        strings.ToLower(digest),
		CompressedSize: int64(len(compressed)),
		LogSize:        int64(len(text)),
	}
	for _, name := range extra {
		sub.Attachments = append(sub.Attachments, model.Attachment{Field: name, Size: int64(len(attachments[name]))})
	}
	return sub, text, attachments, "", nil
}

// persist writes blobs before the index row so a listed submission is
// always readable; partial writes are removed on failure.
func (s *Server) persist(sub *model.Submission, text []byte, attachments map[string][]byte) error {
	cleanup := func(err error) error {
		if derr := s.blobs.Delete(sub.ID); derr != nil {
			return errors.Join(err, derr)
		}
		return err
	}

	if err := s.blobs.PutLog(sub.ID, text); err != nil {
		return cleanup(err)
	}
	for _, a := range sub.Attachments {
		if err := s.blobs.PutAttachment(sub.ID, a.Field, attachments[a.Field]); err != nil {
			return cleanup(err)
		}
	}
	if err := s.store.InsertSubmission(sub); err != nil {
		return cleanup(err)
	}
	return nil
}

func (s *Server) reject(c *gin.Context, reason rejection) {
	s.log.Warning("collector: rejected upload from " + c.ClientIP() + ": " + string(reason))
	c.String(http.StatusOK, string(reason))
}

func (s *Server) linkFor(c *gin.Context, id string) string {
	base := strings.TrimRight(s.publicURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		if proto := c.GetHeader("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/logs/" + id
}

func (s *Server) handleGetLog(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.GetSubmission(id); err != nil {
		s.notFoundOrError(c, err)
		return
	}
	data, err := s.blobs.GetLog(id)
	if err != nil {
		s.notFoundOrError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func (s *Server) handleGetAttachment(c *gin.Context) {
	id, field := c.Param("id"), c.Param("field")
	data, err := s.blobs.GetAttachment(id, field)
	if err != nil {
		s.notFoundOrError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", field))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *Server) handleListSubmissions(c *gin.Context) {
	limit := model.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, model.MaxListLimit)
	}

	subs, err := s.store.RecentSubmissions(limit)
	if err != nil {
		s.log.Exception(err, "collector: failed to list submissions", false)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list submissions"})
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	c.JSON(http.StatusOK, gin.H{
		"submissions": subs,
		"count":       len(subs),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.store.CountSubmissions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(s.startTime).String(),
		"submissions": count,
	})
}

func (s *Server) notFoundOrError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrSubmissionNotFound),
		errors.Is(err, blobstore.ErrNotFound),
		errors.Is(err, blobstore.ErrInvalidID):
		c.String(http.StatusNotFound, "Not found")
	default:
		s.log.Exception(err, "collector: read failed", false)
		c.String(http.StatusInternalServerError, "Failed to read submission")
	}
}

// hasField reports whether a required field is present. The compressed log
// may arrive as a file or a plain part; the text fields must be non-blank values.
func hasField(form *multipart.Form, name string) bool {
	if name == uploader.FieldLZMAFile && len(form.File[name]) > 0 {
		return true
	}
	v := form.Value[name]
	return len(v) > 0 && strings.TrimSpace(v[0]) != ""
}

// fieldBytes returns a part's content whether it was sent as a file or a plain field.
func fieldBytes(form *multipart.Form, name string) ([]byte, error) {
	if fhs := form.File[name]; len(fhs) > 0 {
		f, err := fhs[0].Open()
		if err != nil {
			return nil, fmt.Errorf("open part %s: %w", name, err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read part %s: %w", name, err)
		}
		return data, nil
	}
	return []byte(form.Value[name][0]), nil
}

// extraFields lists every non-wire field in name order.
func extraFields(form *multipart.Form) []string {
	seen := make(map[string]bool)
	for _, name := range requiredFields {
		seen[name] = true
	}
	var out []string
	for name := range form.Value {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for name := range form.File {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
