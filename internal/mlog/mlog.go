package mlog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// DefaultPrefix is prepended to every line unless a call overrides it.
const DefaultPrefix = "[ME3TWEAKSCORE] "

// LevelFatal sits above slog.LevelError. Logging at it never exits the process.
const LevelFatal = slog.Level(12)

// Logger is the structured logger the facade forwards to.
// *slog.Logger satisfies it.
type Logger interface {
	Log(ctx context.Context, level slog.Level, msg string, args ...any)
}

// Facade forwards prefixed, leveled messages to an installed Logger.
// It is safe for concurrent use, but SetLogger is meant to be called once
// during startup.
type Facade struct {
	mu     sync.RWMutex
	logger Logger
	prefix string
}

// New returns a facade forwarding to l. A nil l yields a facade that drops
// everything until SetLogger is called.
func New(l Logger) *Facade {
	return &Facade{logger: l, prefix: DefaultPrefix}
}

// SetLogger installs l, replacing any previously installed logger.
func (f *Facade) SetLogger(l Logger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logger = l
}

// Option adjusts a single log call.
type Option func(*callOptions)

type callOptions struct {
	skip   bool
	prefix *string
}

// If drops the call when shouldLog is false.
func If(shouldLog bool) Option {
	return func(o *callOptions) {
		if !shouldLog {
			o.skip = true
		}
	}
}

// WithPrefix replaces the default prefix for one call.
func WithPrefix(prefix string) Option {
	return func(o *callOptions) {
		o.prefix = &prefix
	}
}

// Information logs msg at info level.
func (f *Facade) Information(msg string, opts ...Option) {
	f.logAt(slog.LevelInfo, msg, opts)
}

// Warning logs msg at warn level.
func (f *Facade) Warning(msg string, opts ...Option) {
	f.logAt(slog.LevelWarn, msg, opts)
}

// Error logs msg at error level.
func (f *Facade) Error(msg string, opts ...Option) {
	f.logAt(slog.LevelError, msg, opts)
}

// Fatal logs msg at LevelFatal.
func (f *Facade) Fatal(msg string, opts ...Option) {
	f.logAt(LevelFatal, msg, opts)
}

// Debug logs msg at debug level.
func (f *Facade) Debug(msg string, opts ...Option) {
	f.logAt(slog.LevelDebug, msg, opts)
}

// Err logs the full chain of err at error level. Only If is honoured.
func (f *Facade) Err(err error, opts ...Option) {
	if resolve(opts).skip {
		return
	}
	f.Exception(err, "", false)
}

// Exception logs preMessage, then every link of err's wrap chain from the
// outermost error inwards: a "Kind: message" line followed by the link's
// captured stack frames. All lines use LevelFatal when fatal is set and
// error level otherwise. An empty preMessage is not logged.
func (f *Facade) Exception(err error, preMessage string, fatal bool) {
	level := slog.LevelError
	if fatal {
		level = LevelFatal
	}

	l, prefix := f.snapshot()
	if l == nil {
		return
	}

	if preMessage != "" {
		l.Log(context.Background(), level, prefix+preMessage)
	}
	for _, link := range Chain(err) {
		for _, line := range strings.Split(link.Kind+": "+link.Message, "\n") {
			l.Log(context.Background(), level, prefix+line)
		}
		for _, frame := range link.Stack {
			l.Log(context.Background(), level, prefix+frame)
		}
	}
}

// CloseAndFlush flushes and releases the installed logger, then uninstalls
// it so later calls are dropped. It is safe to call more than once.
func (f *Facade) CloseAndFlush() error {
	f.mu.Lock()
	l := f.logger
	f.logger = nil
	f.mu.Unlock()

	if l == nil {
		return nil
	}
	var firstErr error
	if s, ok := l.(interface{ Sync() error }); ok {
		firstErr = s.Sync()
	}
	if c, ok := l.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *Facade) logAt(level slog.Level, msg string, opts []Option) {
	o := resolve(opts)
	if o.skip {
		return
	}
	l, prefix := f.snapshot()
	if l == nil {
		return
	}
	if o.prefix != nil {
		prefix = *o.prefix
	}
	l.Log(context.Background(), level, prefix+msg)
}

func (f *Facade) snapshot() (Logger, string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.logger, f.prefix
}

func resolve(opts []Option) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
