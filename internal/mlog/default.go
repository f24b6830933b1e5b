package mlog

var std = New(nil)

// Default returns the process-wide facade used by the package-level helpers.
// Install its logger with SetLogger before starting goroutines that log.
func Default() *Facade { return std }

// SetLogger installs l on the process-wide facade.
func SetLogger(l Logger) { std.SetLogger(l) }

// Information logs msg at info level on the process-wide facade.
func Information(msg string, opts ...Option) { std.Information(msg, opts...) }

// Warning logs msg at warn level on the process-wide facade.
func Warning(msg string, opts ...Option) { std.Warning(msg, opts...) }

// Error logs msg at error level on the process-wide facade.
func Error(msg string, opts ...Option) { std.Error(msg, opts...) }

// Err logs the chain of err at error level on the process-wide facade.
func Err(err error, opts ...Option) { std.Err(err, opts...) }

// Fatal logs msg at LevelFatal on the process-wide facade.
func Fatal(msg string, opts ...Option) { std.Fatal(msg, opts...) }

// Debug logs msg at debug level on the process-wide facade.
func Debug(msg string, opts ...Option) { std.Debug(msg, opts...) }

// Exception logs the chain of err on the process-wide facade.
func Exception(err error, preMessage string, fatal bool) { std.Exception(err, preMessage, fatal) }

// CloseAndFlush flushes and uninstalls the process-wide logger.
func CloseAndFlush() error { return std.CloseAndFlush() }
