// Package uploader submits a diagnostic log, plus optional file attachments,
// to a collection endpoint and reports back a shareable link or a
// human-readable failure reason.
//
// UploadLog blocks until the exchange finishes. Call it from a background
// goroutine, never from one whose blocking would stall user interaction.
// Exactly one request is made per call; retrying is up to the caller.
package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tinytelemetry/diaglog/internal/codec"
	"github.com/tinytelemetry/diaglog/internal/diagerr"
	"github.com/tinytelemetry/diaglog/internal/i18n"
	"github.com/tinytelemetry/diaglog/internal/mlog"
)

// Codec compresses the encoded log text.
type Codec interface {
	Compress(data []byte) ([]byte, error)
}

// DigestFunc renders a content hash of data as a hex string.
type DigestFunc func(data []byte) string

// Localizer renders message templates.
type Localizer interface {
	String(key string, args ...any) string
}

// Config wires an Uploader's collaborators. Zero fields use defaults.
type Config struct {
	// Client sends the request. Defaults to a client without a timeout.
	Client *http.Client
	// Codec defaults to codec.LZMA.
	Codec Codec
	// Digest defaults to codec.MD5Hex.
	Digest DigestFunc
	// Identity defaults to DefaultIdentity().
	Identity Identity
	// Strings defaults to i18n.Default().
	Strings Localizer
	// Log defaults to mlog.Default().
	Log *mlog.Facade
}

// Uploader packages and posts logs. It holds no per-call state and is safe
// for concurrent use when its collaborators are.
type Uploader struct {
	client   *http.Client
	codec    Codec
	digest   DigestFunc
	identity Identity
	strings  Localizer
	log      *mlog.Facade
}

// New returns an Uploader using cfg, filling unset fields with defaults.
func New(cfg Config) *Uploader {
	u := &Uploader{
		client:   cfg.Client,
		codec:    cfg.Codec,
		digest:   cfg.Digest,
		identity: cfg.Identity,
		strings:  cfg.Strings,
		log:      cfg.Log,
	}
	if u.client == nil {
		u.client = &http.Client{}
	}
	if u.codec == nil {
		u.codec = codec.LZMA{}
	}
	if u.digest == nil {
		u.digest = codec.MD5Hex
	}
	if u.identity == nil {
		u.identity = DefaultIdentity()
	}
	if u.strings == nil {
		u.strings = i18n.Default()
	}
	if u.log == nil {
		u.log = mlog.Default()
	}
	return u
}

// UploadLog uploads logText with a default Uploader. See Uploader.UploadLog.
func UploadLog(logText, endpoint string, attachments map[string]string) (uploaded bool, result string) {
	return New(Config{}).UploadLog(context.Background(), logText, endpoint, attachments)
}

// UploadLog compresses logText, posts it with the files named in attachments
// (local path to form field name) to endpoint, and interprets the reply.
//
// On success it returns true and the link the server answered with. On any
// failure it returns false and a localized reason: the HTTP status for a
// non-2xx reply, the server's text when it answered with something other
// than an http(s) URL, or the error text when anything else went wrong.
// It never panics; every failure is also logged.
//
// Attachments that do not exist or are MaxAttachmentSize or larger are
// skipped silently.
func (u *Uploader) UploadLog(ctx context.Context, logText, endpoint string, attachments map[string]string) (uploaded bool, result string) {
	defer func() {
		if r := recover(); r != nil {
			err := diagerr.Newf(diagerr.KindPanic, "panic during log upload: %v", r)
			u.log.Exception(err, "Handled error uploading log", false)
			uploaded, result = false, u.strings.String(i18n.InterpErrorUploadingLog, err.Error())
		}
	}()

	resp, err := u.submit(ctx, logText, endpoint, attachments)
	if err != nil {
		u.log.Exception(err, "Handled error uploading log", false)
		return false, u.strings.String(i18n.InterpErrorUploadingLog, err.Error())
	}

	if resp.status < 200 || resp.status > 299 {
		u.log.Error("Error uploading log. The server returned status " + resp.statusText)
		return false, u.strings.String(i18n.ErrorUploadingLogResponse, resp.statusText)
	}

	if IsLink(resp.body) {
		u.log.Information("Result from server for log upload: " + resp.body)
		return true, resp.body
	}
	u.log.Error("Error uploading log. The server responded with: " + resp.body)
	return false, u.strings.String(i18n.InterpServerRejectedLogUpload, resp.body)
}

type reply struct {
	status     int
	statusText string
	body       string
}

func (u *Uploader) submit(ctx context.Context, logText, endpoint string, attachments map[string]string) (*reply, error) {
	compressed, err := u.codec.Compress([]byte(logText))
	if err != nil {
		return nil, diagerr.Wrap(err, diagerr.KindCompression, "compress log")
	}

	form := Form{
		ToolVersion: u.identity.AppVersion(),
		Tool:        u.identity.HostProcessName(),
		LZMAMD5:     u.digest(compressed),
		LZMAFile:    compressed,
	}
	if form.Attachments, err = LoadAttachments(attachments); err != nil {
		return nil, err
	}

	body, contentType, err := form.Encode()
	if err != nil {
		return nil, diagerr.Wrap(err, diagerr.KindUpload, "build multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, diagerr.Wrap(err, diagerr.KindHTTP, "create request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, diagerr.Wrap(err, diagerr.KindHTTP, "post log")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, diagerr.Wrap(err, diagerr.KindHTTP, "read response")
	}

	return &reply{
		status:     resp.StatusCode,
		statusText: statusText(resp),
		body:       strings.TrimSpace(string(data)),
	}, nil
}

// IsLink reports whether s is an absolute http or https URL with a host.
func IsLink(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func statusText(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
