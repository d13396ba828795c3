package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scholfa/MLOpsEmotion/internal/config"
	"github.com/scholfa/MLOpsEmotion/internal/fileutil"
	"github.com/scholfa/MLOpsEmotion/internal/logger"
	"github.com/scholfa/MLOpsEmotion/internal/wav"
)

// Normalize converts a raw artifact into the canonical form the model
// expects: mono, target sample rate, fixed length, peak-scaled.
type Normalize struct {
	cfg *config.Config
	log *logger.Logger
}

// NewNormalize returns the normalize stage.
func NewNormalize(cfg *config.Config) *Normalize {
	return &Normalize{cfg: cfg, log: logger.New()}
}

func (n *Normalize) Name() string { return "normalize" }

// Run decodes the raw artifact, normalizes the waveform, and writes the
// processed WAV. Re-running overwrites the previous normalized artifact
// with sample-for-sample identical output.
func (n *Normalize) Run(ctx context.Context, id string) error {
	log := n.log.WithComponent(n.Name()).WithField("submission", id)

	rawPath := filepath.Join(n.cfg.RawDir(), id)
	data, err := os.ReadFile(rawPath)
	if err != nil {
		return fmt.Errorf("read raw artifact: %w", err)
	}

	samples, info, err := wav.Decode(data)
	if err != nil {
		return fmt.Errorf("decode raw artifact %s: %w", id, err)
	}

	normalized := NormalizeWaveform(samples, info.SampleRate, n.cfg.Audio.TargetSampleRate, n.cfg.Audio.MaxDurationSec)

	outPath := filepath.Join(n.cfg.ProcessedDir(), id)
	encoded := wav.Encode(normalized, n.cfg.Audio.TargetSampleRate)
	if err := fileutil.WriteFileAtomic(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write normalized artifact: %w", err)
	}

	log.WithField("samples", len(normalized)).WithField("source_rate", info.SampleRate).Info("normalized")
	return nil
}

// NormalizeWaveform resamples to targetRate, truncates or zero-pads to
// exactly targetRate*maxDurationSec samples, and peak-normalizes so the
// maximum absolute amplitude is 1. A silent clip is padded but otherwise
// left untouched (peak 0 is treated as 1 to avoid dividing by zero).
func NormalizeWaveform(samples []float32, srcRate, targetRate int, maxDurationSec float64) []float32 {
	resampled := wav.Resample(samples, srcRate, targetRate)

	maxLen := int(float64(targetRate) * maxDurationSec)
	fixed := make([]float32, maxLen)
	copy(fixed, resampled) // truncates when longer, zero-pads when shorter

	var peak float32
	for _, s := range fixed {
		if s > peak {
			peak = s
		} else if -s > peak {
			peak = -s
		}
	}
	if peak == 0 {
		return fixed
	}
	for i := range fixed {
		fixed[i] /= peak
	}
	return fixed
}
