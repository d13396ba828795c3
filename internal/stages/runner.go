package stages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scholfa/MLOpsEmotion/internal/config"
	"github.com/scholfa/MLOpsEmotion/internal/gateway"
	"github.com/scholfa/MLOpsEmotion/internal/ledger"
	"github.com/scholfa/MLOpsEmotion/internal/logger"
	"github.com/scholfa/MLOpsEmotion/internal/metadata"
	"github.com/scholfa/MLOpsEmotion/internal/results"
)

// Runner executes the whole stage sequence for one submission, mirroring
// what the external scheduler does when it runs each stage as its own
// process. Stage failures are fatal to the run and recorded in the ledger so
// the correlator can stop waiting.
type Runner struct {
	cfg   *config.Config
	store *ledger.Store
	log   *logger.Logger

	extract   *Extract
	normalize *Normalize
	infer     *Infer
	evaluate  *Evaluate
	retrain   *Retrain
	publish   *Publish
}

// NewRunner wires the full pipeline against cfg.
func NewRunner(cfg *config.Config, store *ledger.Store) (*Runner, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	meta := metadata.NewStore(cfg.MetadataDir())
	resLog := results.NewLog(cfg.ResultsLogPath())
	gw := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.ModelVersion, gatewayTimeout(cfg))

	return &Runner{
		cfg:       cfg,
		store:     store,
		log:       logger.New(),
		extract:   NewExtract(cfg, meta),
		normalize: NewNormalize(cfg),
		infer:     NewInfer(cfg, gw, resLog),
		evaluate:  NewEvaluate(cfg, resLog),
		retrain:   NewRetrain(cfg),
		publish:   NewPublish(cfg, store),
	}, nil
}

// Stage returns the named stage for standalone invocation, or nil.
func (r *Runner) Stage(name string) Stage {
	for _, s := range []Stage{r.extract, r.normalize, r.infer, r.evaluate, r.retrain, r.publish} {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// StageNames lists the stages in execution order.
func (r *Runner) StageNames() []string {
	return []string{
		r.extract.Name(), r.normalize.Name(), r.infer.Name(),
		r.evaluate.Name(), r.retrain.Name(), r.publish.Name(),
	}
}

// Run executes the full sequence for id.
func (r *Runner) Run(ctx context.Context, id string) error {
	log := r.log.WithComponent("pipeline").WithField("submission", id)

	if err := r.markProcessing(ctx, id); err != nil {
		return err
	}

	sequence := []Stage{r.extract, r.normalize, r.infer, r.evaluate}
	for _, stage := range sequence {
		log.WithField("stage", stage.Name()).Info("stage starting")
		if err := stage.Run(ctx, id); err != nil {
			r.recordFailure(ctx, id, stage.Name(), err)
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
	}

	shouldRetrain, err := DecideRetrain(r.cfg)
	if err != nil {
		r.recordFailure(ctx, id, "decide-retrain", err)
		return fmt.Errorf("decide retrain: %w", err)
	}
	if shouldRetrain {
		log.Info("accuracy below threshold, retraining")
		if err := r.retrain.Run(ctx, id); err != nil {
			r.recordFailure(ctx, id, r.retrain.Name(), err)
			return fmt.Errorf("stage %s: %w", r.retrain.Name(), err)
		}
	} else {
		log.Info("model healthy, skipping retrain")
	}

	if err := r.publish.Run(ctx, id); err != nil {
		r.recordFailure(ctx, id, r.publish.Name(), err)
		return fmt.Errorf("stage %s: %w", r.publish.Name(), err)
	}
	return nil
}

// markProcessing moves a pending ledger row to processing. A submission
// unknown to the ledger (stage testing, scheduler replay) runs anyway.
func (r *Runner) markProcessing(ctx context.Context, id string) error {
	sub, err := r.store.GetByID(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if sub.Status == ledger.StatusPending {
		return r.store.SetStatus(ctx, id, ledger.StatusProcessing)
	}
	return nil
}

func (r *Runner) recordFailure(ctx context.Context, id, stage string, cause error) {
	reason := fmt.Sprintf("%s stage failed: %v", stage, cause)
	if err := r.store.MarkFailed(ctx, id, reason); err != nil && !errors.Is(err, ledger.ErrNotFound) {
		r.log.WithError(err).Warn("could not record failure in ledger")
	}
}

func gatewayTimeout(cfg *config.Config) time.Duration {
	if cfg.Gateway.TimeoutSeconds <= 0 {
		return 12 * time.Second
	}
	return time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second
}
