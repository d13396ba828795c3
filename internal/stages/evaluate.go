package stages

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/scholfa/MLOpsEmotion/internal/config"
	"github.com/scholfa/MLOpsEmotion/internal/dataset"
	"github.com/scholfa/MLOpsEmotion/internal/fileutil"
	"github.com/scholfa/MLOpsEmotion/internal/logger"
	"github.com/scholfa/MLOpsEmotion/internal/results"
	"github.com/scholfa/MLOpsEmotion/internal/types"
)

// Evaluate scores the accumulated predictions against the labeled reference
// set and writes an evaluation report for the retrain decision.
type Evaluate struct {
	cfg    *config.Config
	resLog *results.Log
	log    *logger.Logger
}

// NewEvaluate returns the evaluate stage.
func NewEvaluate(cfg *config.Config, resLog *results.Log) *Evaluate {
	return &Evaluate{cfg: cfg, resLog: resLog, log: logger.New()}
}

func (s *Evaluate) Name() string { return "evaluate" }

// Run is run-scoped; the id argument is ignored. A missing reference set is
// not a failure: there is simply no evidence to evaluate against, so no
// report is produced and the retrain decision later defaults to "skip".
func (s *Evaluate) Run(ctx context.Context, _ string) error {
	log := s.log.WithComponent(s.Name())

	if _, err := os.Stat(s.cfg.Evaluate.ReferencePath); errors.Is(err, fs.ErrNotExist) {
		log.WithField("reference_path", s.cfg.Evaluate.ReferencePath).Warn("no reference set, skipping evaluation")
		return nil
	}

	clips, err := dataset.Load(s.cfg.Evaluate.ReferencePath)
	if err != nil {
		return fmt.Errorf("load reference set: %w", err)
	}
	truth := dataset.Index(clips)

	entries, err := s.resLog.Read()
	if err != nil {
		return fmt.Errorf("read results log: %w", err)
	}

	report := Score(entries, truth)
	report.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	report.ModelVersion = s.cfg.Gateway.ModelVersion

	if err := fileutil.WriteJSONAtomic(s.cfg.EvalReportPath(), report); err != nil {
		return fmt.Errorf("write eval report: %w", err)
	}

	log.WithField("accuracy", report.Accuracy).WithField("matched", report.Matched).Info("evaluation written")
	return nil
}

// Score compares predictions to ground truth. Accuracy counts only entries
// whose submission appears in the reference set; predictions for unlabeled
// clips contribute to ByEmotion but not to accuracy.
func Score(entries []types.ResultEntry, truth map[string]string) types.EvalReport {
	report := types.EvalReport{
		Total:     len(entries),
		ByEmotion: map[string]int{},
	}

	correct := 0
	for _, e := range entries {
		// Reference labels are lowercased at load; backends are free to
		// capitalize, so fold the prediction the same way.
		label := strings.ToLower(e.Result.Label)
		if label != "" {
			report.ByEmotion[label]++
		}
		want, ok := truth[e.File]
		if !ok {
			// Uploaded submissions carry a timestamp prefix; fall back to the
			// original name recorded in the reference set.
			want, ok = truth[originalName(e.File)]
		}
		if !ok {
			continue
		}
		report.Matched++
		if label == want {
			correct++
		}
	}
	if report.Matched > 0 {
		report.Accuracy = float64(correct) / float64(report.Matched)
	}
	return report
}

// originalName strips the {timestamp}_ prefix a submission ID carries.
func originalName(id string) string {
	for i := 0; i < len(id); i++ {
		if id[i] == '_' {
			return id[i+1:]
		}
	}
	return id
}
