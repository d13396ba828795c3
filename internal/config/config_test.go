package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/scholfa/MLOpsEmotion/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Audio.TargetSampleRate != 16000 {
		t.Fatalf("expected default sample rate, got %d", cfg.Audio.TargetSampleRate)
	}
	if cfg.Correlator.TimeoutSeconds != 60 || cfg.Correlator.IntervalSeconds != 2 {
		t.Fatalf("unexpected correlator defaults: %+v", cfg.Correlator)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[audio]
target_sample_rate = 8000
max_duration_sec = 2.0

[trigger]
transport = "cli"
command = ["prefect", "deployment", "run", "dvc_pipeline/dvc_pipeline"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Audio.TargetSampleRate != 8000 || cfg.Audio.MaxDurationSec != 2.0 {
		t.Fatalf("file values not applied: %+v", cfg.Audio)
	}
	if cfg.Trigger.Transport != "cli" || len(cfg.Trigger.Command) != 4 {
		t.Fatalf("trigger not applied: %+v", cfg.Trigger)
	}
	// untouched sections keep defaults
	if cfg.Gateway.BaseURL == "" {
		t.Fatal("gateway defaults lost")
	}
}

func TestLoadRejectsInvalidTransport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[trigger]\ntransport = \"carrier-pigeon\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for bad transport")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/elsewhere")
	t.Setenv("INFERENCE_URL", "http://model:9000")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Paths.DataDir != "/tmp/elsewhere" {
		t.Fatalf("DATA_DIR override not applied: %s", cfg.Paths.DataDir)
	}
	if cfg.Gateway.BaseURL != "http://model:9000" {
		t.Fatalf("INFERENCE_URL override not applied: %s", cfg.Gateway.BaseURL)
	}
	if cfg.RawDir() != filepath.Join("/tmp/elsewhere", "raw") {
		t.Fatalf("derived path wrong: %s", cfg.RawDir())
	}
}

func TestEnsureDirectories(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.RawDir(), cfg.ProcessedDir(), cfg.MetadataDir(), cfg.PredictionsDir()} {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			t.Fatalf("missing directory %s: %v", dir, err)
		}
	}
}
