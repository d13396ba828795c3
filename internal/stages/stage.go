// Package stages implements the pipeline stages. Each stage is independently
// invocable (the external scheduler runs them as separate processes) and
// idempotent: re-running a stage with the same inputs reproduces equivalent
// outputs, so a scheduler retry after partial failure is safe.
package stages

import (
	"context"
)

// Stage is one unit of the pipeline. Submission-scoped stages receive the
// submission identifier; run-scoped stages (evaluate, retrain) ignore it.
type Stage interface {
	Name() string
	Run(ctx context.Context, id string) error
}
