package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fossiljourney.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Grid.StepDeg != 5.0 {
		t.Errorf("default grid step = %v, want 5.0", cfg.Grid.StepDeg)
	}
	if cfg.GPlates.BaseURL != "https://gws.gplates.org" {
		t.Errorf("default base url = %q", cfg.GPlates.BaseURL)
	}

	// File must have been created.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Load() did not create config file: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fossiljourney.yaml")

	content := []byte(`
grid:
  step_deg: 2.0
  age_step_ma: 20
prefetch:
  horizon: 5
  workers: 8
request:
  timeout: 10s
  backoff:
    base_delay: 1s
    max_delay: 2m
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Grid.StepDeg != 2.0 || cfg.Grid.AgeStepMa != 20 {
		t.Errorf("grid = %+v", cfg.Grid)
	}
	if cfg.Prefetch.Horizon != 5 || cfg.Prefetch.Workers != 8 {
		t.Errorf("prefetch = %+v", cfg.Prefetch)
	}
	if time.Duration(cfg.Request.Timeout) != 10*time.Second {
		t.Errorf("timeout = %v", cfg.Request.Timeout)
	}
	// Untouched sections keep defaults.
	if cfg.Server.Address != "localhost:1859" {
		t.Errorf("server address = %q", cfg.Server.Address)
	}
}

func TestLoadRejectsInvalidGrid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fossiljourney.yaml")

	content := []byte("grid:\n  step_deg: -1\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() accepted negative grid step")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{"2h45m", 2*time.Hour + 45*time.Minute, false},
		{"1d", Day, false},
		{"1w", Week, false},
		{"1d12h", Day + 12*time.Hour, false},
		{"", 0, false},
		{"bogus", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
