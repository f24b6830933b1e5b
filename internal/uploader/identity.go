package uploader

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

// Identity names the application a log came from.
type Identity interface {
	AppVersion() string
	HostProcessName() string
}

// ProcessIdentity is a fixed Identity.
type ProcessIdentity struct {
	Version string
	Name    string
}

// AppVersion returns the configured version.
func (p ProcessIdentity) AppVersion() string { return p.Version }

// HostProcessName returns the configured process name.
func (p ProcessIdentity) HostProcessName() string { return p.Name }

// DefaultIdentity describes the running process: the executable's base name
// without extension and the main module version from build info.
func DefaultIdentity() ProcessIdentity {
	return ProcessIdentity{Version: buildVersion(), Name: processName()}
}

func processName() string {
	exe, err := os.Executable()
	if err != nil || exe == "" {
		if len(os.Args) == 0 {
			return "unknown"
		}
		exe = os.Args[0]
	}
	base := filepath.Base(exe)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "0.0.0"
	}
	return strings.TrimPrefix(info.Main.Version, "v")
}
