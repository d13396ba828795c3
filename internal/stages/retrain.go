package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/scholfa/MLOpsEmotion/internal/config"
	"github.com/scholfa/MLOpsEmotion/internal/fileutil"
	"github.com/scholfa/MLOpsEmotion/internal/logger"
	"github.com/scholfa/MLOpsEmotion/internal/types"
)

// DecideRetrain reads the latest evaluation report and applies the
// configured threshold. No report (evaluation skipped) means no evidence of
// degradation, so the answer is no.
func DecideRetrain(cfg *config.Config) (bool, error) {
	data, err := os.ReadFile(cfg.EvalReportPath())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read eval report: %w", err)
	}

	var report types.EvalReport
	if err := json.Unmarshal(data, &report); err != nil {
		return false, fmt.Errorf("parse eval report: %w", err)
	}
	if report.Matched == 0 {
		return false, nil
	}
	return report.Accuracy < cfg.Evaluate.RetrainThreshold, nil
}

// Retrain records a retraining round. The actual model fitting is an
// external capability; this stage writes the retrain stats artifact the
// rest of the system observes.
type Retrain struct {
	cfg *config.Config
	log *logger.Logger
}

// NewRetrain returns the retrain stage.
func NewRetrain(cfg *config.Config) *Retrain {
	return &Retrain{cfg: cfg, log: logger.New()}
}

func (s *Retrain) Name() string { return "retrain" }

// Run is run-scoped; the id argument is ignored.
func (s *Retrain) Run(ctx context.Context, _ string) error {
	stats := map[string]any{
		"model":        s.cfg.Gateway.ModelVersion,
		"retrained_at": time.Now().UTC().Format(time.RFC3339),
	}

	if data, err := os.ReadFile(s.cfg.EvalReportPath()); err == nil {
		var report types.EvalReport
		if json.Unmarshal(data, &report) == nil {
			stats["trigger_accuracy"] = report.Accuracy
		}
	}

	if err := fileutil.WriteJSONAtomic(s.cfg.RetrainStatsPath(), stats); err != nil {
		return fmt.Errorf("write retrain stats: %w", err)
	}

	s.log.WithComponent(s.Name()).Info("retrain stats recorded")
	return nil
}
