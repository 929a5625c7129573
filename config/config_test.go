package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Judge.Model != "gpt-5-mini" {
		t.Fatalf("Model=%q", cfg.Judge.Model)
	}
	if cfg.Judge.MaxConcurrency != 500 {
		t.Fatalf("MaxConcurrency=%d", cfg.Judge.MaxConcurrency)
	}
	if cfg.API.PageLimit != 100 || cfg.API.MaxPages != 5 {
		t.Fatalf("API=%+v", cfg.API)
	}
	if cfg.Paths.AnalysesDir != "conversation_analyses" {
		t.Fatalf("AnalysesDir=%q", cfg.Paths.AnalysesDir)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amirabot.yaml")
	data := []byte(`
api:
  base_url: https://example.test/prod
  max_pages: 12
judge:
  model: gpt-5
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://example.test/prod" {
		t.Fatalf("BaseURL=%q", cfg.API.BaseURL)
	}
	if cfg.API.MaxPages != 12 {
		t.Fatalf("MaxPages=%d", cfg.API.MaxPages)
	}
	if cfg.Judge.Model != "gpt-5" {
		t.Fatalf("Model=%q", cfg.Judge.Model)
	}
	// Untouched values keep their defaults.
	if cfg.API.PageLimit != 100 {
		t.Fatalf("PageLimit=%d", cfg.API.PageLimit)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("AMIRABOT_API_BASE_URL", "https://env.test")
	t.Setenv("AMIRABOT_MAX_CONCURRENCY", "32")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://env.test" {
		t.Fatalf("BaseURL=%q", cfg.API.BaseURL)
	}
	if cfg.Judge.MaxConcurrency != 32 {
		t.Fatalf("MaxConcurrency=%d", cfg.Judge.MaxConcurrency)
	}
}

func TestLoad_BadEnvConcurrencyIgnored(t *testing.T) {
	t.Setenv("AMIRABOT_MAX_CONCURRENCY", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Judge.MaxConcurrency != 500 {
		t.Fatalf("MaxConcurrency=%d, want default 500", cfg.Judge.MaxConcurrency)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate(default)=%v", err)
	}
	cfg.Judge.MaxConcurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate accepted zero concurrency")
	}
	cfg = Default()
	cfg.Paths.AnalysesDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate accepted empty analyses dir")
	}
}
