package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: ":9090"
  mode: release
upload:
  upload_dir: /tmp/up
  allowed_exts: [png]
predictor:
  url: http://sam:8000
  timeout: 5s
inference:
  max_concurrent: 7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != ":9090" || cfg.Server.Mode != "release" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Server.BasePath != "/api" {
		t.Fatalf("base_path default lost: %q", cfg.Server.BasePath)
	}
	if cfg.Upload.UploadDir != "/tmp/up" || len(cfg.Upload.AllowedExts) != 1 {
		t.Fatalf("upload = %+v", cfg.Upload)
	}
	if cfg.Upload.MaxSize != 10*1024*1024 {
		t.Fatalf("max_size default lost: %d", cfg.Upload.MaxSize)
	}
	if cfg.Predictor.URL != "http://sam:8000" || cfg.Predictor.Timeout != 5*time.Second {
		t.Fatalf("predictor = %+v", cfg.Predictor)
	}
	if cfg.Inference.MaxConcurrent != 7 {
		t.Fatalf("inference = %+v", cfg.Inference)
	}
	if cfg.Detector.BoxThreshold != 0.35 {
		t.Fatalf("detector default lost: %+v", cfg.Detector)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \":9090\"\n")
	t.Setenv("LABELU_SERVER_PORT", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != ":7070" {
		t.Fatalf("port = %q, want env override", cfg.Server.Port)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "inference:\n  max_concurrent: 0\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestNewMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.Upload.MaxSize != 10*1024*1024 {
		t.Fatalf("unexpected default: %+v", cfg.Upload)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
