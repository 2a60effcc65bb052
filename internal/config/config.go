// Package config loads dicomscope settings from a YAML file, a .env file and
// DICOMSCOPE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mrsinham/dicomscope/internal/util"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete configuration for YAML serialization.
type Config struct {
	Scan   ScanConfig   `yaml:"scan"`
	Images ImagesConfig `yaml:"images"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// ScanConfig controls directory scans.
type ScanConfig struct {
	Root string `yaml:"root"`
	// Workers is the number of files classified in parallel; 0 means one per CPU.
	Workers int `yaml:"workers"`
	// MaxFileSize is a size such as "512MB"; empty means unlimited.
	MaxFileSize string `yaml:"max_file_size,omitempty"`
	CountFirst  bool   `yaml:"count_first"`
}

// ImagesConfig controls the image registry.
type ImagesConfig struct {
	CacheEntries   int  `yaml:"cache_entries"`
	ThumbnailSize  int  `yaml:"thumbnail_size"`
	ThumbnailLabel bool `yaml:"thumbnail_label"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MaxThumbnailSize bounds images.thumbnail_size and per-request sizes.
const MaxThumbnailSize = 1024

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Scan: ScanConfig{
			Root:       ".",
			CountFirst: true,
		},
		Images: ImagesConfig{
			CacheEntries:  256,
			ThumbnailSize: 128,
		},
		Server: ServerConfig{Listen: ":8080"},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given, without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with DICOMSCOPE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := lookup("DICOMSCOPE_ROOT"); ok {
		c.Scan.Root = v
	}
	if v, ok := lookup("DICOMSCOPE_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: DICOMSCOPE_WORKERS=%q is not an integer", ErrInvalid, v)
		}
		c.Scan.Workers = n
	}
	if v, ok := lookup("DICOMSCOPE_MAX_FILE_SIZE"); ok {
		c.Scan.MaxFileSize = v
	}
	if v, ok := lookup("DICOMSCOPE_THUMBNAIL_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: DICOMSCOPE_THUMBNAIL_SIZE=%q is not an integer", ErrInvalid, v)
		}
		c.Images.ThumbnailSize = n
	}
	if v, ok := lookup("DICOMSCOPE_LISTEN"); ok {
		c.Server.Listen = v
	}
	if v, ok := lookup("DICOMSCOPE_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("DICOMSCOPE_LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Validate checks every field.
func (c Config) Validate() error {
	var errs []error
	if c.Scan.Workers < 0 {
		errs = append(errs, fmt.Errorf("scan.workers must be >= 0, got %d", c.Scan.Workers))
	}
	if _, err := c.MaxFileSizeBytes(); err != nil {
		errs = append(errs, fmt.Errorf("scan.max_file_size: %w", err))
	}
	if c.Images.CacheEntries <= 0 {
		errs = append(errs, fmt.Errorf("images.cache_entries must be > 0, got %d", c.Images.CacheEntries))
	}
	if c.Images.ThumbnailSize <= 0 || c.Images.ThumbnailSize > MaxThumbnailSize {
		errs = append(errs, fmt.Errorf("images.thumbnail_size must be in 1..%d, got %d", MaxThumbnailSize, c.Images.ThumbnailSize))
	}
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen must not be empty"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// MaxFileSizeBytes parses scan.max_file_size; empty means 0 (unlimited).
func (c Config) MaxFileSizeBytes() (int64, error) {
	if c.Scan.MaxFileSize == "" {
		return 0, nil
	}
	return util.ParseSize(c.Scan.MaxFileSize)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
}

// NewLogger builds a logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
