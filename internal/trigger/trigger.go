// Package trigger asks the external scheduler to start a pipeline run. The
// call is fire-and-forget: success means the scheduler accepted the request,
// not that the run finished or even started executing.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scholfa/MLOpsEmotion/internal/logger"
)

// RunHandle identifies an accepted scheduler run.
type RunHandle struct {
	ID        string `json:"id"`
	Transport string `json:"transport"`
}

// Failed reports a rejected trigger. Payload carries the scheduler's error
// output verbatim; it is the only diagnostic the caller gets, so nothing is
// trimmed or rewritten. Triggers are never retried automatically: the
// pipeline is not idempotent and a duplicate run would duplicate work.
type Failed struct {
	Transport string
	Payload   string
}

func (e *Failed) Error() string {
	return fmt.Sprintf("trigger: %s scheduler rejected run: %s", e.Transport, e.Payload)
}

// Trigger starts one pipeline run.
type Trigger interface {
	Trigger(ctx context.Context) (RunHandle, error)
}

// HTTPTrigger starts runs through a named-deployment create-run call.
type HTTPTrigger struct {
	apiURL       string
	deploymentID string
	httpClient   *http.Client
	log          *logger.Logger
}

// NewHTTPTrigger returns a trigger against the scheduler API at apiURL.
func NewHTTPTrigger(apiURL, deploymentID string, timeout time.Duration) *HTTPTrigger {
	return &HTTPTrigger{
		apiURL:       strings.TrimRight(apiURL, "/"),
		deploymentID: deploymentID,
		httpClient:   &http.Client{Timeout: timeout},
		log:          logger.New(),
	}
}

// Trigger POSTs a create_flow_run request. Only a 201 counts as accepted.
func (t *HTTPTrigger) Trigger(ctx context.Context) (RunHandle, error) {
	endpoint := fmt.Sprintf("%s/deployments/%s/create_flow_run", t.apiURL, t.deploymentID)

	body, err := json.Marshal(map[string]any{
		"state": map[string]any{"type": "SCHEDULED"},
	})
	if err != nil {
		return RunHandle{}, fmt.Errorf("marshal trigger body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return RunHandle{}, fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return RunHandle{}, &Failed{Transport: "http", Payload: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return RunHandle{}, &Failed{
			Transport: "http",
			Payload:   fmt.Sprintf("status %d: %s", resp.StatusCode, respBody),
		}
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil || payload.ID == "" {
		// Accepted but without a usable run id; fall back to a local handle
		// so callers still have something to correlate logs with.
		payload.ID = uuid.New().String()
	}

	t.log.WithComponent("trigger").WithField("run_id", payload.ID).Info("pipeline run accepted")
	return RunHandle{ID: payload.ID, Transport: "http"}, nil
}

// CLITrigger starts runs by invoking the scheduler's command line client.
type CLITrigger struct {
	command []string
	log     *logger.Logger
}

// NewCLITrigger returns a trigger that runs command; exit code zero means
// the run was accepted.
func NewCLITrigger(command []string) *CLITrigger {
	return &CLITrigger{command: command, log: logger.New()}
}

// Trigger executes the configured command.
func (t *CLITrigger) Trigger(ctx context.Context) (RunHandle, error) {
	if len(t.command) == 0 {
		return RunHandle{}, &Failed{Transport: "cli", Payload: "no trigger command configured"}
	}

	cmd := exec.CommandContext(ctx, t.command[0], t.command[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return RunHandle{}, &Failed{
			Transport: "cli",
			Payload:   fmt.Sprintf("%v: %s", err, strings.TrimSpace(string(out))),
		}
	}

	// CLI schedulers expose no run identifier; mint a local handle.
	handle := RunHandle{ID: uuid.New().String(), Transport: "cli"}
	t.log.WithComponent("trigger").WithField("run_id", handle.ID).Info("pipeline run accepted")
	return handle, nil
}
