package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinytelemetry/diaglog/internal/logging"
	"github.com/tinytelemetry/diaglog/internal/mlog"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "diaglog",
		Short: "Upload diagnostic logs and run a log collection endpoint",
		Long: `diaglog compresses a diagnostic log, uploads it with optional attachments
to a collection endpoint and prints the link the endpoint answers with.

It can also run that endpoint itself with "diaglog serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default is $HOME/.config/diaglog/config.yml)")
	cmd.PersistentFlags().String("log-path", "", "diagnostic log file (default is $HOME/.local/state/diaglog/diaglog.log)")
	cmd.PersistentFlags().String("log-level", "", "minimum log level: DEBUG, INFO, WARN, ERROR, FATAL")
	cmd.PersistentFlags().Bool("log-console", false, "also write diagnostics to stderr")

	cmd.AddCommand(newUploadCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// setupLogging installs the configured logger behind the process-wide
// facade. The returned func flushes and uninstalls it.
func setupLogging(cfg appConfig) (func(), error) {
	l, err := logging.New(logging.Config{
		Path:    cfg.LogPath,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Console: cfg.LogConsole,
	})
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	mlog.SetLogger(l)
	return func() { _ = mlog.CloseAndFlush() }, nil
}
