package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/diaglog/internal/blobstore"
	"github.com/tinytelemetry/diaglog/internal/collector"
	"github.com/tinytelemetry/diaglog/internal/duckdb"
	"github.com/tinytelemetry/diaglog/internal/mlog"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a log collection endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			stopSignals := handleSignals(cancel, cmd.OutOrStdout())
			defer stopSignals()

			return runServer(ctx, cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("listen-addr", "", "address to listen on (default 127.0.0.1:8080)")
	cmd.Flags().String("public-url", "", "base URL of returned links (default derived from requests)")
	cmd.Flags().String("data-dir", "", "directory for the index and stored logs")
	cmd.Flags().String("db-path", "", "DuckDB index path (default <data-dir>/index.duckdb)")
	cmd.Flags().Int("retention-days", 0, "delete submissions older than this many days, 0 to keep forever")
	cmd.Flags().Int("max-upload-mb", 0, "largest accepted upload in MiB")
	return cmd
}

// handleSignals cancels on the first SIGINT/SIGTERM and force-exits on the
// second or when shutdown exceeds its deadline.
func handleSignals(cancel context.CancelFunc, out io.Writer) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		fmt.Fprintln(out, "\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Fprintln(out, "\nForce shutdown.")
		case <-deadline.C:
			fmt.Fprintln(out, "Shutdown timed out, forcing exit.")
		case <-done:
			return
		}
		os.Exit(1)
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// runServer starts the collector and blocks until ctx is canceled or the
// collector fails.
func runServer(ctx context.Context, cfg appConfig, out io.Writer) error {
	cleanupLogger, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanupLogger()

	store, err := duckdb.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	blobs, err := blobstore.Open(cfg.blobDir())
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}
	defer blobs.Close()

	// Start retention cleaner for automatic expiry of stored logs.
	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.RetentionDays,
		OnExpired: func(ids []string) {
			for _, id := range ids {
				if err := blobs.Delete(id); err != nil {
					mlog.Exception(err, "retention: failed to delete blobs of "+id, false)
				}
			}
		},
	})
	defer retentionCleaner.Stop()

	srv := collector.NewServer(collector.Config{
		Addr:           cfg.ListenAddr,
		PublicURL:      cfg.PublicURL,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		Store:          store,
		Blobs:          blobs,
	})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start collector: %w", err)
	}

	printStartupBanner(out, cfg, srv.Addr(), blobs.Root())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	if err := g.Wait(); err != nil {
		mlog.Exception(err, "collector: stopped with error", false)
		return err
	}
	mlog.Information("collector: shut down")
	return nil
}

func printStartupBanner(out io.Writer, cfg appConfig, addr, blobRoot string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	title := cyan.Bold(true).Render("    diaglog collector")
	ver := dim.Render("v" + strings.TrimPrefix(version, "v"))

	var lines []string
	lines = append(lines, "")
	lines = append(lines, title)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Upload         %s", check, cyan.Render("http://"+addr+"/logupload")))
	if cfg.PublicURL != "" {
		lines = append(lines, fmt.Sprintf("    %s  Public URL     %s", check, cyan.Render(cfg.PublicURL)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Public URL     %s", dot, dim.Render("derived from requests")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Max Upload     %s", check, dim.Render(fmt.Sprintf("%d MiB", cfg.MaxUploadMB))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Storage"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Index          %s", check, dim.Render(shortenPath(cfg.DBPath))))
	lines = append(lines, fmt.Sprintf("    %s  Blobs          %s", check, dim.Render(shortenPath(blobRoot))))
	if cfg.RetentionDays > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", check, dim.Render(fmt.Sprintf("%d days", cfg.RetentionDays))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Diagnostics    %s", check, dim.Render(shortenPath(cfg.LogPath))))

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
