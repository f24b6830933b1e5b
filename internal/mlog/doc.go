// Package mlog is the single choke point for diagnostic output.
//
// Call sites log through a [Facade] (or the package-level helpers, which use
// the process-wide facade returned by [Default]). The facade prefixes every
// line and forwards it to whatever structured [Logger] the hosting
// application installed, so the host can redirect, reformat, or silence
// output without touching call sites.
//
// # Installing a logger
//
// Install the backend once during startup, before spawning goroutines that
// log:
//
//	l, err := logging.New(logging.Config{Path: "/path/to/diaglog.log"})
//	if err != nil {
//	    return err
//	}
//	mlog.SetLogger(l)
//	defer mlog.CloseAndFlush()
//
// Until a logger is installed, every call is a no-op.
//
// # Guards and prefixes
//
// Options let a call site pass a guard inline instead of branching:
//
//	mlog.Debug("cache miss", mlog.If(verbose))
//	mlog.Error("bad header", mlog.WithPrefix("[COLLECTOR] "))
//
// # Error chains
//
// [Facade.Exception] flattens a wrapped error into one line per link plus one
// line per captured stack frame (see [Chain]), outermost first.
package mlog
