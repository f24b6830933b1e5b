package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tinytelemetry/diaglog/internal/i18n"
	"github.com/tinytelemetry/diaglog/internal/mlog"
	"github.com/tinytelemetry/diaglog/internal/uploader"
)

// errUploadFailed marks a failure whose reason was already printed.
var errUploadFailed = errors.New("upload failed")

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var attach []string

	cmd := &cobra.Command{
		Use:   "upload [file|-]",
		Short: "Upload a log to a collection endpoint",
		Long: `Upload compresses the log text and posts it to the endpoint.

With no argument the configured log-path is uploaded; "-" reads standard input.
Attachments are given as PATH=FIELD and are skipped when missing or 3 MiB or larger.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			attachments, err := parseAttachments(attach)
			if err != nil {
				return err
			}
			source := ""
			if len(args) == 1 {
				source = args[0]
			}
			return runUpload(cmd.Context(), cfg, source, attachments, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().String("endpoint", "", "collection endpoint URL")
	cmd.Flags().StringArrayVarP(&attach, "attach", "a", nil, "attach a file as PATH=FIELD (repeatable)")
	cmd.Flags().Duration("upload-timeout", 0, "request timeout, 0 for none")
	cmd.Flags().String("language", "", "language of result messages, e.g. en-us or de-de")
	cmd.Flags().String("strings-file", "", "YAML file overriding result messages")
	return cmd
}

func runUpload(ctx context.Context, cfg appConfig, source string, attachments map[string]string, stdin io.Reader, stdout, stderr io.Writer) error {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("no endpoint configured (use --endpoint or DIAGLOG_ENDPOINT)")
	}

	// Read before the logger opens the same file for appending.
	text, err := readLogText(source, cfg.LogPath, stdin)
	if err != nil {
		return err
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	cleanup, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	up := uploader.New(uploader.Config{
		Client:   &http.Client{Timeout: cfg.UploadTimeout},
		Identity: cliIdentity(),
		Strings:  catalog,
		Log:      mlog.Default(),
	})

	ok, result := up.UploadLog(ctx, text, cfg.Endpoint, attachments)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	if ok {
		fmt.Fprintln(stdout, green.Render("✓ ")+catalog.String(i18n.LogUploaded, cyan.Render(result)))
		return nil
	}
	fmt.Fprintln(stderr, red.Render("✗ "+catalog.String(i18n.LogUploadFailed)))
	fmt.Fprintln(stderr, "  "+result)
	return errUploadFailed
}

func readLogText(source, logPath string, stdin io.Reader) (string, error) {
	var data []byte
	var err error
	switch source {
	case "-":
		data, err = io.ReadAll(stdin)
	case "":
		if logPath == "" {
			return "", errors.New("no log file given and no log-path configured")
		}
		data, err = os.ReadFile(logPath)
	default:
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return "", fmt.Errorf("reading log: %w", err)
	}
	return string(data), nil
}

func loadCatalog(cfg appConfig) (*i18n.Catalog, error) {
	if cfg.StringsFile != "" {
		return i18n.LoadFile(cfg.Language, cfg.StringsFile)
	}
	return i18n.Load(cfg.Language)
}

// cliIdentity reports this binary, preferring the ldflags version.
func cliIdentity() uploader.ProcessIdentity {
	id := uploader.DefaultIdentity()
	if version != "dev" {
		id.Version = strings.TrimPrefix(version, "v")
	}
	return id
}

// parseAttachments turns PATH=FIELD specs into the uploader's path to field
// map. An argument without "=FIELD" uses the file name without extension.
func parseAttachments(specs []string) (map[string]string, error) {
	out := make(map[string]string, len(specs))
	for _, arg := range specs {
		path, field := arg, ""
		if i := strings.LastIndex(arg, "="); i >= 0 {
			path, field = arg[:i], arg[i+1:]
		}
		path = strings.TrimSpace(path)
		field = strings.TrimSpace(field)
		if path == "" {
			return nil, fmt.Errorf("invalid attachment %q: empty path", arg)
		}
		if field == "" {
			base := filepath.Base(path)
			field = strings.TrimSuffix(base, filepath.Ext(base))
		}
		if _, dup := out[path]; dup {
			return nil, fmt.Errorf("attachment %s given more than once", path)
		}
		out[path] = field
	}
	return out, nil
}
