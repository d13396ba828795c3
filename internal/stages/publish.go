package stages

import (
	"context"
	"fmt"

	"github.com/scholfa/MLOpsEmotion/internal/config"
	"github.com/scholfa/MLOpsEmotion/internal/ledger"
	"github.com/scholfa/MLOpsEmotion/internal/logger"
)

// Publish is the terminal stage: it marks the submission completed in the
// ledger, releasing the in-flight gate for the next upload.
type Publish struct {
	cfg   *config.Config
	store *ledger.Store
	log   *logger.Logger
}

// NewPublish returns the publish stage.
func NewPublish(cfg *config.Config, store *ledger.Store) *Publish {
	return &Publish{cfg: cfg, store: store, log: logger.New()}
}

func (s *Publish) Name() string { return "publish" }

func (s *Publish) Run(ctx context.Context, id string) error {
	if err := s.store.SetStatus(ctx, id, ledger.StatusCompleted); err != nil {
		return fmt.Errorf("publish %s: %w", id, err)
	}
	s.log.WithComponent(s.Name()).WithField("submission", id).Info("submission completed")
	return nil
}
