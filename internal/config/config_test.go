package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dicomscope.yaml")
	content := `
scan:
  root: /data/dicom
  workers: 4
  max_file_size: 512MB
images:
  thumbnail_size: 64
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Scan.Root != "/data/dicom" || cfg.Scan.Workers != 4 {
		t.Errorf("scan = %+v, want root /data/dicom and 4 workers", cfg.Scan)
	}
	if cfg.Images.ThumbnailSize != 64 {
		t.Errorf("thumbnail_size = %d, want 64", cfg.Images.ThumbnailSize)
	}
	if cfg.Images.CacheEntries != Default().Images.CacheEntries {
		t.Errorf("cache_entries = %d, want default %d", cfg.Images.CacheEntries, Default().Images.CacheEntries)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("log.format = %q, want default text", cfg.Log.Format)
	}
	if n, err := cfg.MaxFileSizeBytes(); err != nil || n != 512*1024*1024 {
		t.Errorf("MaxFileSizeBytes() = %d, %v, want 512MB", n, err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load("/non/existent/path/config.yaml"); err == nil {
		t.Error("Expected error for non-existent file, got nil")
	}

	path := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(path, []byte("scan:\n  workers: [invalid array in scalar field\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestSave_AndLoadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Scan.Root = "/scans"
	cfg.Scan.MaxFileSize = "1GB"
	cfg.Server.Listen = "127.0.0.1:9000"
	cfg.Log.Format = "json"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded != cfg {
		t.Errorf("loaded = %+v, want %+v", loaded, cfg)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DICOMSCOPE_ROOT", "/env/root")
	t.Setenv("DICOMSCOPE_WORKERS", "3")
	t.Setenv("DICOMSCOPE_LOG_LEVEL", "warn")
	t.Setenv("DICOMSCOPE_LOG_FORMAT", "json")
	t.Setenv("DICOMSCOPE_LISTEN", ":9999")
	t.Setenv("DICOMSCOPE_MAX_FILE_SIZE", "10MB")
	t.Setenv("DICOMSCOPE_THUMBNAIL_SIZE", "256")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv returned error: %v", err)
	}
	want := Config{
		Scan:   ScanConfig{Root: "/env/root", Workers: 3, MaxFileSize: "10MB", CountFirst: true},
		Images: ImagesConfig{CacheEntries: 256, ThumbnailSize: 256},
		Server: ServerConfig{Listen: ":9999"},
		Log:    LogConfig{Level: "warn", Format: "json"},
	}
	if cfg != want {
		t.Errorf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	t.Setenv("DICOMSCOPE_WORKERS", "many")
	cfg := Default()
	if err := cfg.ApplyEnv(); !errors.Is(err, ErrInvalid) {
		t.Errorf("ApplyEnv error = %v, want ErrInvalid", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DICOMSCOPE_LISTEN=:7070\n"), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Setenv("DICOMSCOPE_LISTEN", "")
	os.Unsetenv("DICOMSCOPE_LISTEN")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv returned error: %v", err)
	}
	if got := os.Getenv("DICOMSCOPE_LISTEN"); got != ":7070" {
		t.Errorf("DICOMSCOPE_LISTEN = %q, want :7070", got)
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("LoadDotEnv(missing) = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"negative workers", func(c *Config) { c.Scan.Workers = -1 }, "scan.workers"},
		{"bad size", func(c *Config) { c.Scan.MaxFileSize = "lots" }, "scan.max_file_size"},
		{"zero cache", func(c *Config) { c.Images.CacheEntries = 0 }, "images.cache_entries"},
		{"huge thumbnail", func(c *Config) { c.Images.ThumbnailSize = 4096 }, "images.thumbnail_size"},
		{"no listen", func(c *Config) { c.Server.Listen = "" }, "server.listen"},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.field)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "path", "a.dcm")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"path":"a.dcm"`) {
		t.Errorf("unexpected JSON output: %s", out)
	}

	if _, err := (LogConfig{Level: "loud"}).NewLogger(&buf); !errors.Is(err, ErrInvalid) {
		t.Errorf("NewLogger(bad level) error = %v, want ErrInvalid", err)
	}
}
