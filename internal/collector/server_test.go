package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/diaglog/internal/blobstore"
	"github.com/tinytelemetry/diaglog/internal/codec"
	"github.com/tinytelemetry/diaglog/internal/duckdb"
	"github.com/tinytelemetry/diaglog/internal/mlog"
	"github.com/tinytelemetry/diaglog/internal/uploader"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	srv     *Server
	store   *duckdb.Store
	blobs   *blobstore.Store
	handler http.Handler
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	blobs, err := blobstore.Open(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("blobstore.Open: %v", err)
	}
	t.Cleanup(func() { blobs.Close() })

	var ids atomic.Int32
	cfg := Config{
		Addr:      "127.0.0.1:0",
		PublicURL: "https://logs.example.com/",
		Store:     store,
		Blobs:     blobs,
		Log:       mlog.New(nil),
		NewID: func() string {
			return fmt.Sprintf("sub-%d", ids.Add(1))
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	srv := NewServer(cfg)
	return &testEnv{srv: srv, store: store, blobs: blobs, handler: srv.Handler()}
}

func encodeUpload(t *testing.T, text string, extra ...uploader.Attachment) ([]byte, string) {
	t.Helper()
	compressed, err := codec.LZMA{}.Compress([]byte(text))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	form := uploader.Form{
		ToolVersion: "9.1.2",
		Tool:        "ME3TweaksModManager",
		LZMAMD5:     codec.MD5Hex(compressed),
		LZMAFile:    compressed,
		Attachments: extra,
	}
	body, ctype, err := form.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return body, ctype
}

func (e *testEnv) do(method, target string, body []byte, ctype string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestUpload_StoresAndLinks(t *testing.T) {
	env := newTestEnv(t)
	text := "2026-10-19 12:00:00.000 +00:00 [INF] [ME3TWEAKSCORE] hi\n2026-10-19 12:00:01.000 +00:00 [ERR] [ME3TWEAKSCORE] boom\n"
	body, ctype := encodeUpload(t, text, uploader.Attachment{Field: "diag", Data: []byte("extra data")})

	w := env.do(http.MethodPost, "/logupload", body, ctype)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != "https://logs.example.com/logs/sub-1" {
		t.Fatalf("link = %q", got)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}

	sub, err := env.store.GetSubmission("sub-1")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Tool != "ME3TweaksModManager" || sub.ToolVersion != "9.1.2" {
		t.Errorf("identity = %q %q", sub.Tool, sub.ToolVersion)
	}
	if sub.LogSize != int64(len(text)) {
		t.Errorf("LogSize = %d, want %d", sub.LogSize, len(text))
	}
	if sub.Severity.Info != 1 || sub.Severity.Error != 1 {
		t.Errorf("Severity = %+v", sub.Severity)
	}
	if len(sub.Attachments) != 1 || sub.Attachments[0].Field != "diag" || sub.Attachments[0].Size != 10 {
		t.Errorf("Attachments = %+v", sub.Attachments)
	}

	w = env.do(http.MethodGet, "/logs/sub-1", nil, "")
	if w.Code != http.StatusOK || w.Body.String() != text {
		t.Fatalf("GET log = %d %q", w.Code, w.Body.String())
	}
	w = env.do(http.MethodGet, "/logs/sub-1/attachments/diag", nil, "")
	if w.Code != http.StatusOK || w.Body.String() != "extra data" {
		t.Fatalf("GET attachment = %d %q", w.Code, w.Body.String())
	}
}

func TestUpload_Rejections(t *testing.T) {
	compressed, err := codec.LZMA{}.Compress([]byte("log"))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	tests := []struct {
		name string
		form uploader.Form
		want string
	}{
		{
			name: "md5 mismatch",
			form: uploader.Form{ToolVersion: "1", Tool: "t", LZMAMD5: strings.Repeat("0", 32), LZMAFile: compressed},
			want: "lzmamd5 does not match",
		},
		{
			name: "missing tool",
			form: uploader.Form{ToolVersion: "1", LZMAMD5: codec.MD5Hex(compressed), LZMAFile: compressed},
			want: "Missing required field: tool",
		},
		{
			name: "not lzma",
			form: uploader.Form{ToolVersion: "1", Tool: "t", LZMAMD5: codec.MD5Hex([]byte("plain")), LZMAFile: []byte("plain")},
			want: "not valid LZMA",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			body, ctype, err := tt.form.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			w := env.do(http.MethodPost, "/logupload", body, ctype)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Fatalf("body = %q, want %q", w.Body.String(), tt.want)
			}
			if uploader.IsLink(w.Body.String()) {
				t.Fatal("rejection body must not look like a link")
			}
			if n, _ := env.store.CountSubmissions(); n != 0 {
				t.Fatalf("CountSubmissions = %d, want 0", n)
			}
		})
	}
}

func TestUpload_MD5IsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	compressed, err := codec.LZMA{}.Compress([]byte("log"))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	form := uploader.Form{ToolVersion: "1", Tool: "t", LZMAMD5: strings.ToUpper(codec.MD5Hex(compressed)), LZMAFile: compressed}
	body, ctype, err := form.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	w := env.do(http.MethodPost, "/logupload", body, ctype)
	if !uploader.IsLink(w.Body.String()) {
		t.Fatalf("body = %q, want link", w.Body.String())
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/logupload", []byte("hello"), "text/plain")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "not a valid multipart form") {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}

func TestUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MaxUploadBytes = 1024 })
	body, ctype := encodeUpload(t, "log", uploader.Attachment{Field: "big", Data: bytes.Repeat([]byte("x"), 8192)})

	w := env.do(http.MethodPost, "/logupload", body, ctype)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413 (body %q)", w.Code, w.Body.String())
	}
}

type failingBlobs struct {
	*blobstore.Store
	deleted []string
}

func (f *failingBlobs) PutAttachment(string, string, []byte) error {
	return errors.New("disk full")
}

func (f *failingBlobs) Delete(id string) error {
	f.deleted = append(f.deleted, id)
	return f.Store.Delete(id)
}

func TestUpload_StorageFailureCleansUp(t *testing.T) {
	var fb *failingBlobs
	env := newTestEnv(t, func(c *Config) {
		fb = &failingBlobs{Store: c.Blobs.(*blobstore.Store)}
		c.Blobs = fb
	})
	body, ctype := encodeUpload(t, "log", uploader.Attachment{Field: "a", Data: []byte("1")})

	w := env.do(http.MethodPost, "/logupload", body, ctype)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if len(fb.deleted) != 1 || fb.deleted[0] != "sub-1" {
		t.Fatalf("deleted = %v, want [sub-1]", fb.deleted)
	}
	if _, err := env.blobs.GetLog("sub-1"); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("log blob left behind: %v", err)
	}
	if n, _ := env.store.CountSubmissions(); n != 0 {
		t.Fatalf("CountSubmissions = %d, want 0", n)
	}
}

func TestLinkDerivedFromRequest(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.PublicURL = "" })
	body, ctype := encodeUpload(t, "log")

	req := httptest.NewRequest(http.MethodPost, "http://collector.local:8080/logupload", bytes.NewReader(body))
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if got := w.Body.String(); got != "https://collector.local:8080/logs/sub-1" {
		t.Fatalf("link = %q", got)
	}
}

func TestGetUnknown(t *testing.T) {
	env := newTestEnv(t)
	for _, target := range []string{"/logs/nope", "/logs/nope/attachments/x", "/logs/x"} {
		if w := env.do(http.MethodGet, target, nil, ""); w.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", target, w.Code)
		}
	}
}

func TestListSubmissionsAndHealth(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		body, ctype := encodeUpload(t, "log")
		if w := env.do(http.MethodPost, "/logupload", body, ctype); w.Code != http.StatusOK {
			t.Fatalf("upload %d status = %d", i, w.Code)
		}
	}

	w := env.do(http.MethodGet, "/api/submissions?limit=2", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list struct {
		Count       int `json:"count"`
		Submissions []struct {
			ID string `json:"id"`
		} `json:"submissions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if list.Count != 2 || len(list.Submissions) != 2 {
		t.Fatalf("list = %+v", list)
	}

	if w := env.do(http.MethodGet, "/api/submissions?limit=abc", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}

	w = env.do(http.MethodGet, "/api/health", nil, "")
	var health map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health["status"] != "ok" || health["submissions"] != float64(3) {
		t.Fatalf("health = %v", health)
	}
}

func TestEndToEndWithUploader(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.PublicURL = "" })
	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	attach := filepath.Join(dir, "modlist.txt")
	if err := os.WriteFile(attach, []byte("mod-a\nmod-b\n"), 0644); err != nil {
		t.Fatal(err)
	}

	up := uploader.New(uploader.Config{
		Identity: uploader.ProcessIdentity{Version: "9.1.2", Name: "ME3TweaksModManager"},
		Log:      mlog.New(nil),
	})
	text := strings.Repeat("2026-10-19 12:00:00.000 +00:00 [WRN] [ME3TWEAKSCORE] check\n", 50)
	ok, link := up.UploadLog(context.Background(), text, ts.URL+"/logupload", map[string]string{attach: "modlist"})
	if !ok {
		t.Fatalf("UploadLog failed: %s", link)
	}
	if link != ts.URL+"/logs/sub-1" {
		t.Fatalf("link = %q", link)
	}

	resp, err := http.Get(link)
	if err != nil {
		t.Fatalf("GET link: %v", err)
	}
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	if string(got) != text {
		t.Fatal("log read back through the link differs from the upload")
	}

	sub, err := env.store.GetSubmission("sub-1")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Severity.Warn != 50 || len(sub.Attachments) != 1 || sub.Attachments[0].Field != "modlist" {
		t.Fatalf("submission = %+v", sub)
	}

	ok, reason := up.UploadLog(context.Background(), text, ts.URL+"/nothing-here", nil)
	if ok || !strings.Contains(reason, "404") {
		t.Fatalf("UploadLog to wrong path = (%v, %q)", ok, reason)
	}
}

func TestEndToEndEmptyLog(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.PublicURL = "" })
	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	up := uploader.New(uploader.Config{
		Identity: uploader.ProcessIdentity{Version: "9.1.2", Name: "ME3TweaksModManager"},
		Log:      mlog.New(nil),
	})
	ok, link := up.UploadLog(context.Background(), "", ts.URL+"/logupload", nil)
	if !ok {
		t.Fatalf("UploadLog of empty log failed: %s", link)
	}
	if link != ts.URL+"/logs/sub-1" {
		t.Fatalf("link = %q", link)
	}

	sub, err := env.store.GetSubmission("sub-1")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.LogSize != 0 || sub.Severity.Total != 0 {
		t.Fatalf("submission = %+v, want empty log", sub)
	}

	w := env.do(http.MethodGet, "/logs/sub-1", nil, "")
	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Fatalf("GET empty log = %d %q", w.Code, w.Body.String())
	}
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t)
	if err := env.srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := env.srv.Addr()
	if strings.HasSuffix(addr, ":0") {
		t.Fatalf("Addr = %q, want bound port", addr)
	}

	resp, err := http.Get("http://" + addr + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	if err := env.srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- env.srv.Serve(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for strings.HasSuffix(env.srv.Addr(), ":0") {
		if time.Now().After(deadline) {
			t.Fatal("server never bound a port")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeReturnsListenerFailure(t *testing.T) {
	env := newTestEnv(t)
	if err := env.srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- env.srv.Serve(context.Background()) }()

	env.srv.mu.Lock()
	ln := env.srv.listener
	env.srv.mu.Unlock()
	ln.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Serve returned nil after its listener failed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve kept blocking after its listener failed")
	}
}
