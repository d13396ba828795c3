// Package config loads the pipeline configuration from a TOML file with
// environment overrides for the settings that differ between deployments.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Paths contains directory and bind address configuration. All artifact
// locations are derived from DataDir so a whole deployment can be relocated
// by changing one setting.
type Paths struct {
	DataDir string `toml:"data_dir"`
	APIBind string `toml:"api_bind"`
}

// Audio contains the normalization targets. MaxDurationSec is a fixed
// constant by policy: per-file durations from metadata are not used, so every
// normalized artifact has the same sample count regardless of the clip.
type Audio struct {
	TargetSampleRate int     `toml:"target_sample_rate"`
	MaxDurationSec   float64 `toml:"max_duration_sec"`
}

// Gateway contains the model backend connection settings.
type Gateway struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ModelVersion   string `toml:"model_version"`
}

// Trigger contains the scheduler trigger settings. Transport picks exactly
// one of the HTTP or CLI boundaries.
type Trigger struct {
	Transport      string   `toml:"transport"` // "http" or "cli"
	APIURL         string   `toml:"api_url"`
	DeploymentID   string   `toml:"deployment_id"`
	Command        []string `toml:"command"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Correlator contains the result polling bounds.
type Correlator struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IntervalSeconds int `toml:"interval_seconds"`
}

// Evaluate contains the evaluation stage settings.
type Evaluate struct {
	ReferencePath    string  `toml:"reference_path"`
	RetrainThreshold float64 `toml:"retrain_threshold"`
}

// Config is the root configuration document.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Audio      Audio      `toml:"audio"`
	Gateway    Gateway    `toml:"gateway"`
	Trigger    Trigger    `toml:"trigger"`
	Correlator Correlator `toml:"correlator"`
	Evaluate   Evaluate   `toml:"evaluate"`
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: "data",
			APIBind: ":8080",
		},
		Audio: Audio{
			TargetSampleRate: 16000,
			MaxDurationSec:   30,
		},
		Gateway: Gateway{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 12,
			ModelVersion:   "v1.0",
		},
		Trigger: Trigger{
			Transport:      "http",
			TimeoutSeconds: 10,
		},
		Correlator: Correlator{
			TimeoutSeconds:  60,
			IntervalSeconds: 2,
		},
		Evaluate: Evaluate{
			ReferencePath:    "data/reference_labels.xlsx",
			RetrainThreshold: 0.6,
		},
	}
}

// Load reads path if it exists, layering file values and then environment
// overrides over the defaults. A missing file is not an error; a malformed
// one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv layers deployment-environment overrides on top of file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Paths.APIBind = ":" + v
	}
	if v := os.Getenv("INFERENCE_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("PREFECT_API_URL"); v != "" {
		c.Trigger.APIURL = v
	}
	if v := os.Getenv("DEPLOYMENT_ID"); v != "" {
		c.Trigger.DeploymentID = v
	}
}

func (c *Config) validate() error {
	var problems []string
	if c.Audio.TargetSampleRate <= 0 {
		problems = append(problems, "audio.target_sample_rate must be positive")
	}
	if c.Audio.MaxDurationSec <= 0 {
		problems = append(problems, "audio.max_duration_sec must be positive")
	}
	if c.Gateway.BaseURL == "" {
		problems = append(problems, "gateway.base_url is required")
	}
	switch c.Trigger.Transport {
	case "http", "cli":
	default:
		problems = append(problems, fmt.Sprintf("trigger.transport must be http or cli, got %q", c.Trigger.Transport))
	}
	if c.Correlator.TimeoutSeconds <= 0 || c.Correlator.IntervalSeconds <= 0 {
		problems = append(problems, "correlator timeout and interval must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RawDir is where uploaded artifacts land.
func (c *Config) RawDir() string { return filepath.Join(c.Paths.DataDir, "raw") }

// ProcessedDir holds normalized artifacts.
func (c *Config) ProcessedDir() string { return filepath.Join(c.Paths.DataDir, "processed") }

// MetadataDir holds per-submission metadata records and pipeline outputs.
func (c *Config) MetadataDir() string { return filepath.Join(c.Paths.DataDir, "metadata") }

// PredictionsDir holds per-submission prediction payloads.
func (c *Config) PredictionsDir() string {
	return filepath.Join(c.Paths.DataDir, "inference_output")
}

// ResultsLogPath is the shared results log the correlator polls.
func (c *Config) ResultsLogPath() string {
	return filepath.Join(c.MetadataDir(), "inference_stats.json")
}

// LedgerPath is the SQLite submission ledger.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.DataDir, "submissions.db")
}

// LockPath is the cross-process lock guarding the ingestion daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "emotiond.lock")
}

// EvalReportPath is the evaluate stage output.
func (c *Config) EvalReportPath() string {
	return filepath.Join(c.MetadataDir(), "eval_report.json")
}

// RetrainStatsPath is the retrain stage output.
func (c *Config) RetrainStatsPath() string {
	return filepath.Join(c.MetadataDir(), "retrain_stats.json")
}

// EnsureDirectories creates every directory the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.RawDir(), c.ProcessedDir(), c.MetadataDir(), c.PredictionsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
