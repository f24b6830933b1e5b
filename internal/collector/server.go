// Package collector is a reference collection endpoint for uploaded logs.
// It accepts the multipart upload the uploader sends, stores the log and its
// attachments, and answers with a link where the log can be read back.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tinytelemetry/diaglog/internal/codec"
	"github.com/tinytelemetry/diaglog/internal/mlog"
	"github.com/tinytelemetry/diaglog/internal/model"
)

// Blobs stores log text and attachment bytes per submission.
type Blobs interface {
	PutLog(id string, data []byte) error
	GetLog(id string) ([]byte, error)
	PutAttachment(id, field string, data []byte) error
	GetAttachment(id, field string) ([]byte, error)
	Delete(id string) error
}

// Decompressor restores the log text from the uploaded lzmafile.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Config wires a Server.
type Config struct {
	// Addr to listen on. Defaults to 0.0.0.0:8080.
	Addr string
	// PublicURL is the base of returned links. When empty it is derived
	// from each request's scheme and host.
	PublicURL string
	// MaxUploadBytes caps the request body. Defaults to DefaultMaxUploadMB.
	MaxUploadBytes int64

	Store model.SubmissionStore
	Blobs Blobs
	// Codec defaults to codec.LZMA.
	Codec Decompressor
	// Log defaults to mlog.Default().
	Log *mlog.Facade
	// NewID defaults to random UUIDs.
	NewID func() string
}

// Server provides the upload endpoint and the read-back API.
type Server struct {
	addr      string
	publicURL string
	maxUpload int64
	store     model.SubmissionStore
	blobs     Blobs
	codec     Decompressor
	log       *mlog.Facade
	newID     func() string

	mu        sync.Mutex
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	serveErr  chan error
}

// NewServer creates a collector server.
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:8080"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = model.DefaultMaxUploadMB << 20
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.LZMA{}
	}
	if cfg.Log == nil {
		cfg.Log = mlog.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      cfg.Addr,
		publicURL: cfg.PublicURL,
		maxUpload: cfg.MaxUploadBytes,
		store:     cfg.Store,
		blobs:     cfg.Blobs,
		codec:     cfg.Codec,
		log:       cfg.Log,
		newID:     cfg.NewID,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
		serveErr:  make(chan error, 1),
	}
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	// Multipart parts beyond this spill to temp files; the body cap bounds the total.
	r.MaxMultipartMemory = s.maxUpload

	r.POST("/logupload", s.handleUpload)
	r.GET("/logs/:id", s.handleGetLog)
	r.GET("/logs/:id/attachments/:field", s.handleGetAttachment)
	r.GET("/api/submissions", s.handleListSubmissions)
	r.GET("/api/health", s.handleHealth)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.startTime = time.Now()
	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Exception(err, "collector: serve failed", false)
			s.serveErr <- err
		}
	}()
	s.log.Information("collector: listening on " + listener.Addr().String())
	return nil
}

// Serve starts the server unless Start was already called, then blocks until
// ctx is canceled or the serve loop fails. The server is stopped on return.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	started := s.server != nil
	s.mu.Unlock()
	if !started {
		if err := s.Start(); err != nil {
			return err
		}
	}

	select {
	case err := <-s.serveErr:
		if stopErr := s.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		return fmt.Errorf("collector: serve: %w", err)
	case <-ctx.Done():
		return s.Stop()
	}
}

// Addr returns the bound listen address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
