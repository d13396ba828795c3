package stages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scholfa/MLOpsEmotion/internal/config"
	"github.com/scholfa/MLOpsEmotion/internal/logger"
	"github.com/scholfa/MLOpsEmotion/internal/metadata"
	"github.com/scholfa/MLOpsEmotion/internal/types"
	"github.com/scholfa/MLOpsEmotion/internal/wav"
)

// Extract reads the raw artifact's audio properties into the metadata store.
type Extract struct {
	cfg  *config.Config
	meta *metadata.Store
	log  *logger.Logger
}

// NewExtract returns the extract-metadata stage.
func NewExtract(cfg *config.Config, meta *metadata.Store) *Extract {
	return &Extract{cfg: cfg, meta: meta, log: logger.New()}
}

func (e *Extract) Name() string { return "extract-metadata" }

// Run derives duration, sample rate and channel count from the raw WAV and
// extends the submission's metadata record. When the record does not exist
// yet (stage invoked standalone), a complete one is written instead.
func (e *Extract) Run(ctx context.Context, id string) error {
	log := e.log.WithComponent(e.Name()).WithField("submission", id)

	rawPath := filepath.Join(e.cfg.RawDir(), id)
	data, err := os.ReadFile(rawPath)
	if err != nil {
		return fmt.Errorf("read raw artifact: %w", err)
	}

	info, err := wav.Parse(data)
	if err != nil {
		return fmt.Errorf("parse raw artifact %s: %w", id, err)
	}

	bytesPerSecond := info.SampleRate * info.Channels * info.BitsPerSample / 8
	var duration float64
	if bytesPerSecond > 0 {
		duration = float64(info.DataSize) / float64(bytesPerSecond)
	}

	update := types.MetadataRecord{
		File:        id,
		Size:        int64(len(data)),
		Format:      "wav/pcm16",
		DurationSec: duration,
		SampleRate:  info.SampleRate,
		Channels:    info.Channels,
	}

	if _, err := e.meta.Extend(id, update); err != nil {
		if !errors.Is(err, metadata.ErrNotFound) {
			return err
		}
		if err := e.meta.Write(update); err != nil {
			return err
		}
	}

	log.WithField("duration_sec", duration).WithField("sample_rate", info.SampleRate).Info("metadata extracted")
	return nil
}
