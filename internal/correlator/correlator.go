// Package correlator implements the polling protocol that matches an
// asynchronous pipeline result back to the submission that caused it. The
// pipeline runs out of process, so the only signals available are the shared
// results log and, when wired, the submission ledger.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/scholfa/MLOpsEmotion/internal/logger"
	"github.com/scholfa/MLOpsEmotion/internal/results"
	"github.com/scholfa/MLOpsEmotion/internal/types"
)

// State is the correlation state machine.
type State string

const (
	StateWaiting  State = "WAITING"
	StateMatched  State = "MATCHED"
	StateTimedOut State = "TIMED_OUT"
	// StateFailed is reached only through the optional run-status check:
	// the ledger already knows the pipeline run died, so further polling
	// of the results log is pointless.
	StateFailed State = "FAILED"
)

// Outcome is the terminal result of one correlation. A timed-out outcome is
// recoverable: the pipeline may still be running, and the caller may start a
// fresh correlation later.
type Outcome struct {
	State      State
	Prediction types.Prediction
	Reason     string
	Polls      int
	Elapsed    time.Duration
}

// StatusChecker reports whether the pipeline run for a submission has
// already failed. Optional; a nil checker means pure log polling.
type StatusChecker interface {
	RunFailed(ctx context.Context, id string) (failed bool, reason string, err error)
}

// Correlator polls a results log at a fixed interval up to a deadline.
type Correlator struct {
	log      *results.Log
	interval time.Duration
	timeout  time.Duration
	checker  StatusChecker
	logger   *logger.Logger
}

// New returns a correlator over log with the given poll interval and
// overall deadline.
func New(log *results.Log, interval, timeout time.Duration) *Correlator {
	return &Correlator{
		log:      log,
		interval: interval,
		timeout:  timeout,
		logger:   logger.New(),
	}
}

// WithStatusChecker wires the optional early-failure check.
func (c *Correlator) WithStatusChecker(checker StatusChecker) *Correlator {
	c.checker = checker
	return c
}

// errNotYet keeps the retry loop going; it is never surfaced to callers.
var errNotYet = errors.New("correlator: no result yet")

// Wait polls until the entry keyed by id appears, the deadline passes, or
// ctx is cancelled. A transiently unparseable log counts as "no result yet",
// never as a failure. The returned error is non-nil only for cancellation.
func (c *Correlator) Wait(ctx context.Context, id string) (Outcome, error) {
	log := c.logger.WithComponent("correlator").WithField("submission", id)
	start := time.Now()
	polls := 0

	var matched types.ResultEntry
	var failReason string

	poll := func() error {
		polls++

		if c.checker != nil {
			failed, reason, err := c.checker.RunFailed(ctx, id)
			if err == nil && failed {
				failReason = reason
				return backoff.Permanent(errRunFailed)
			}
			// A checker error is treated like a transient log read: keep
			// polling, the results log remains authoritative.
		}

		entry, err := c.log.Find(id)
		switch {
		case err == nil:
			matched = entry
			return nil
		case errors.Is(err, results.ErrTransient):
			log.WithField("poll", polls).Debug("log unreadable, still waiting")
			return errNotYet
		case errors.Is(err, results.ErrNoMatch):
			return errNotYet
		default:
			return fmt.Errorf("%w: %v", errNotYet, err)
		}
	}

	maxRetries := uint64(c.timeout / c.interval)
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.interval), maxRetries),
		ctx,
	)

	err := backoff.Retry(poll, bo)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		log.WithField("polls", polls).Info("result matched")
		return Outcome{
			State:      StateMatched,
			Prediction: matched.Result,
			Polls:      polls,
			Elapsed:    elapsed,
		}, nil
	case errors.Is(err, errRunFailed):
		log.WithField("reason", failReason).Warn("pipeline run failed before producing a result")
		return Outcome{State: StateFailed, Reason: failReason, Polls: polls, Elapsed: elapsed}, nil
	case ctx.Err() != nil:
		return Outcome{State: StateWaiting, Polls: polls, Elapsed: elapsed}, ctx.Err()
	default:
		log.WithField("polls", polls).Info("correlation deadline reached")
		return Outcome{
			State:   StateTimedOut,
			Reason:  "no result within deadline",
			Polls:   polls,
			Elapsed: elapsed,
		}, nil
	}
}

var errRunFailed = errors.New("correlator: run reported failed")
