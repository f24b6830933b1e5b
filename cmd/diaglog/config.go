package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/diaglog/internal/i18n"
	"github.com/tinytelemetry/diaglog/internal/logging"
	"github.com/tinytelemetry/diaglog/internal/model"
)

const (
	defaultLogLevel       = "INFO"
	defaultLogFormat      = "text"
	defaultLanguage       = "en-us"
	defaultListenAddr     = "127.0.0.1:8080"
	defaultUploadTimeout  = 0 // no timeout
	defaultRetentionDays  = model.DefaultRetentionDays
	defaultMaxUploadMB    = model.DefaultMaxUploadMB
	defaultDataDirName    = "diaglog"
	defaultLogFileName    = "diaglog.log"
	defaultDBFileName     = "index.duckdb"
	defaultBlobDirName    = "blobs"
	configDirName         = "diaglog"
	configFileName        = "config.yml"
	envPrefix             = "DIAGLOG"
	maxConfiguredUploadMB = 1024
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	LogPath       string        `mapstructure:"log-path"`
	LogLevel      string        `mapstructure:"log-level"`
	LogFormat     string        `mapstructure:"log-format"`
	LogConsole    bool          `mapstructure:"log-console"`
	Language      string        `mapstructure:"language"`
	StringsFile   string        `mapstructure:"strings-file"`
	Endpoint      string        `mapstructure:"endpoint"`
	UploadTimeout time.Duration `mapstructure:"upload-timeout"`
	ListenAddr    string        `mapstructure:"listen-addr"`
	PublicURL     string        `mapstructure:"public-url"`
	DataDir       string        `mapstructure:"data-dir"`
	DBPath        string        `mapstructure:"db-path"`
	RetentionDays int           `mapstructure:"retention-days"`
	MaxUploadMB   int           `mapstructure:"max-upload-mb"`
	ConfigPath    string        `mapstructure:"-"` // not from config file
}

// blobDir is where the collector keeps compressed logs and attachments.
func (c appConfig) blobDir() string {
	return filepath.Join(c.DataDir, defaultBlobDirName)
}

// loadConfig layers defaults, the config file, DIAGLOG_* environment
// variables and any flags the user set, in increasing priority.
func loadConfig(configPath string, flags *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	defaultDataDir := filepath.Join(home, ".local", "share", defaultDataDirName)

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("log-path", filepath.Join(home, ".local", "state", defaultDataDirName, defaultLogFileName))
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-format", defaultLogFormat)
	v.SetDefault("log-console", false)
	v.SetDefault("language", defaultLanguage)
	v.SetDefault("strings-file", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("upload-timeout", time.Duration(defaultUploadTimeout))
	v.SetDefault("listen-addr", defaultListenAddr)
	v.SetDefault("public-url", "")
	v.SetDefault("data-dir", defaultDataDir)
	v.SetDefault("db-path", "")
	v.SetDefault("retention-days", defaultRetentionDays)
	v.SetDefault("max-upload-mb", defaultMaxUploadMB)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return cfg, fmt.Errorf("binding flags: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", configDirName, configFileName))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if cfg.RetentionDays < 0 {
		return cfg, fmt.Errorf("invalid retention-days: %d", cfg.RetentionDays)
	}
	if cfg.MaxUploadMB <= 0 || cfg.MaxUploadMB > maxConfiguredUploadMB {
		return cfg, fmt.Errorf("invalid max-upload-mb: %d", cfg.MaxUploadMB)
	}
	if cfg.UploadTimeout < 0 {
		return cfg, fmt.Errorf("invalid upload-timeout: %s", cfg.UploadTimeout)
	}
	if !validLevel(cfg.LogLevel) {
		return cfg, fmt.Errorf("invalid log-level %q (valid: %s)", cfg.LogLevel, strings.Join(logging.ValidLevels(), ", "))
	}
	if !i18n.Supported(cfg.Language) {
		return cfg, fmt.Errorf("invalid language %q (valid: %s)", cfg.Language, strings.Join(i18n.Languages(), ", "))
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return cfg, fmt.Errorf("invalid log-format %q (valid: text, json)", cfg.LogFormat)
	}

	// Expand ~ in paths
	cfg.LogPath = expandHome(home, cfg.LogPath)
	cfg.DataDir = expandHome(home, cfg.DataDir)
	cfg.StringsFile = expandHome(home, cfg.StringsFile)
	cfg.DBPath = expandHome(home, cfg.DBPath)
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, defaultDBFileName)
	}

	return cfg, nil
}

func validLevel(level string) bool {
	for _, l := range logging.ValidLevels() {
		if strings.EqualFold(l, level) {
			return true
		}
	}
	return false
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
