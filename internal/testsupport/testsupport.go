// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/scholfa/MLOpsEmotion/internal/config"
	"github.com/scholfa/MLOpsEmotion/internal/fileutil"
	"github.com/scholfa/MLOpsEmotion/internal/ledger"
	"github.com/scholfa/MLOpsEmotion/internal/wav"
)

// NewConfig returns a default configuration rooted in a per-test temp
// directory, with all artifact directories created.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// MustOpenLedger opens the submission ledger for cfg and closes it on
// cleanup.
func MustOpenLedger(t *testing.T, cfg *config.Config) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Sine generates n samples of a sine wave at the given frequency and rate,
// amplitude 0.5.
func Sine(freq float64, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

// WriteRawWAV encodes samples as a PCM16 WAV and places it in cfg's raw
// directory under id.
func WriteRawWAV(t *testing.T, cfg *config.Config, id string, samples []float32, rate int) {
	t.Helper()
	data := wav.Encode(samples, rate)
	if err := fileutil.WriteFileAtomic(filepath.Join(cfg.RawDir(), id), data, 0o644); err != nil {
		t.Fatalf("write raw wav: %v", err)
	}
}

// WriteRawBytes places arbitrary bytes in cfg's raw directory under id.
func WriteRawBytes(t *testing.T, cfg *config.Config, id string, data []byte) {
	t.Helper()
	if err := fileutil.WriteFileAtomic(filepath.Join(cfg.RawDir(), id), data, 0o644); err != nil {
		t.Fatalf("write raw bytes: %v", err)
	}
}

// WriteProcessedWAV encodes samples into cfg's processed directory under id.
func WriteProcessedWAV(t *testing.T, cfg *config.Config, id string, samples []float32, rate int) {
	t.Helper()
	data := wav.Encode(samples, rate)
	if err := fileutil.WriteFileAtomic(filepath.Join(cfg.ProcessedDir(), id), data, 0o644); err != nil {
		t.Fatalf("write processed wav: %v", err)
	}
}
