package stages_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/scholfa/MLOpsEmotion/internal/stages"
	"github.com/scholfa/MLOpsEmotion/internal/testsupport"
	"github.com/scholfa/MLOpsEmotion/internal/wav"
)

func TestNormalizeWaveformPadsShortInput(t *testing.T) {
	// 1.0s at 16kHz into a 2.0s window: second half must be zeros.
	in := make([]float32, 16000)
	for i := range in {
		in[i] = 0.5
	}

	out := stages.NormalizeWaveform(in, 16000, 16000, 2.0)
	if len(out) != 32000 {
		t.Fatalf("expected 32000 samples, got %d", len(out))
	}
	for i := 16000; i < 32000; i++ {
		if out[i] != 0 {
			t.Fatalf("padding at %d is %f, want 0", i, out[i])
		}
	}
}

func TestNormalizeWaveformTruncatesLongInput(t *testing.T) {
	// 3.0s at 16kHz into a 2.0s window: only the first 32000 samples survive.
	in := make([]float32, 48000)
	for i := range in {
		in[i] = float32(i%100) / 100
	}

	out := stages.NormalizeWaveform(in, 16000, 16000, 2.0)
	if len(out) != 32000 {
		t.Fatalf("expected 32000 samples, got %d", len(out))
	}
	// Peak of the first 32000 input samples is 0.99; output is the truncated
	// prefix scaled by it.
	peakIn := float32(0.99)
	for i := 0; i < 32000; i++ {
		want := in[i] / peakIn
		if math.Abs(float64(out[i]-want)) > 1e-6 {
			t.Fatalf("sample %d: got %f, want %f", i, out[i], want)
		}
	}
}

func TestNormalizeWaveformPeakIsOne(t *testing.T) {
	in := []float32{0.1, -0.4, 0.2}
	out := stages.NormalizeWaveform(in, 16000, 16000, 1.0)

	var peak float32
	for _, s := range out {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if math.Abs(float64(peak-1)) > 1e-6 {
		t.Fatalf("expected peak 1.0, got %f", peak)
	}
}

func TestNormalizeWaveformSilentInputStaysSilent(t *testing.T) {
	in := make([]float32, 8000)
	out := stages.NormalizeWaveform(in, 16000, 16000, 1.0)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("silent input produced non-zero sample at %d: %f", i, s)
		}
	}
}

func TestNormalizeWaveformResamples(t *testing.T) {
	// 1s at 32kHz into a 2s 16kHz window: 16000 signal samples + padding.
	in := make([]float32, 32000)
	for i := range in {
		in[i] = 0.25
	}
	out := stages.NormalizeWaveform(in, 32000, 16000, 2.0)
	if len(out) != 32000 {
		t.Fatalf("expected 32000 samples, got %d", len(out))
	}
	if out[0] != 1.0 {
		t.Fatalf("expected constant signal scaled to 1.0, got %f", out[0])
	}
	if out[31999] != 0 {
		t.Fatal("expected zero padding at end")
	}
}

func TestNormalizeStageIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Audio.MaxDurationSec = 2.0

	id := "20260831-101500_clip.wav"
	testsupport.WriteRawWAV(t, cfg, id, testsupport.Sine(440, 16000, 8000), 16000)

	stage := stages.NewNormalize(cfg)
	if err := stage.Run(context.Background(), id); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(cfg.ProcessedDir(), id))
	if err != nil {
		t.Fatal(err)
	}

	if err := stage.Run(context.Background(), id); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(cfg.ProcessedDir(), id))
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Fatal("normalize is not byte-stable across re-runs")
	}

	// Normalizing the already-normalized artifact reproduces it.
	samples, info, err := wav.Decode(first)
	if err != nil {
		t.Fatal(err)
	}
	again := stages.NormalizeWaveform(samples, info.SampleRate, cfg.Audio.TargetSampleRate, cfg.Audio.MaxDurationSec)
	if len(again) != len(samples) {
		t.Fatalf("length changed on renormalize: %d -> %d", len(samples), len(again))
	}
	for i := range samples {
		if math.Abs(float64(again[i]-samples[i])) > 1e-3 {
			t.Fatalf("sample %d drifted on renormalize: %f -> %f", i, samples[i], again[i])
		}
	}
}
