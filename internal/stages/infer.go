package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scholfa/MLOpsEmotion/internal/config"
	"github.com/scholfa/MLOpsEmotion/internal/fileutil"
	"github.com/scholfa/MLOpsEmotion/internal/gateway"
	"github.com/scholfa/MLOpsEmotion/internal/logger"
	"github.com/scholfa/MLOpsEmotion/internal/results"
	"github.com/scholfa/MLOpsEmotion/internal/types"
)

// Infer sends the normalized artifact through the inference gateway, writes
// the per-submission prediction payload, and appends the entry the
// correlator is waiting for. The results log append is last: once an entry
// is visible, everything else about the prediction is already on disk.
type Infer struct {
	cfg    *config.Config
	gw     *gateway.Client
	resLog *results.Log
	log    *logger.Logger
}

// NewInfer returns the inference stage.
func NewInfer(cfg *config.Config, gw *gateway.Client, resLog *results.Log) *Infer {
	return &Infer{cfg: cfg, gw: gw, resLog: resLog, log: logger.New()}
}

func (s *Infer) Name() string { return "run-inference" }

func (s *Infer) Run(ctx context.Context, id string) error {
	log := s.log.WithComponent(s.Name()).WithField("submission", id)

	processedPath := filepath.Join(s.cfg.ProcessedDir(), id)
	data, err := os.ReadFile(processedPath)
	if err != nil {
		return fmt.Errorf("read normalized artifact: %w", err)
	}

	hash, err := fileutil.HashFile(processedPath)
	if err != nil {
		return fmt.Errorf("hash normalized artifact: %w", err)
	}

	pred, err := s.gw.Infer(ctx, data, "audio/wav")
	if err != nil {
		return fmt.Errorf("infer %s: %w", id, err)
	}
	pred.ContentHash = hash

	predPath := filepath.Join(s.cfg.PredictionsDir(), id+".json")
	if err := fileutil.WriteJSONAtomic(predPath, pred); err != nil {
		return fmt.Errorf("write prediction: %w", err)
	}

	if err := s.resLog.Append(types.ResultEntry{File: id, Result: pred}); err != nil {
		return fmt.Errorf("append result: %w", err)
	}

	log.WithField("label", pred.Label).Info("prediction recorded")
	return nil
}
