// Package gateway is the single boundary through which the pipeline obtains
// predictions. Callers depend only on Infer's contract; which backend serves
// the model is this package's concern alone.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/scholfa/MLOpsEmotion/internal/logger"
	"github.com/scholfa/MLOpsEmotion/internal/types"
)

// acceptedContentTypes is the allow-list checked before any bytes are sent.
// Content type is declared by the caller, never sniffed from the payload.
var acceptedContentTypes = map[string]struct{}{
	"audio/wav":   {},
	"audio/x-wav": {},
}

// ErrUnsupportedFormat is returned when the declared content type is not an
// accepted WAV type. It is a validation failure: the request never reaches
// the backend.
var ErrUnsupportedFormat = errors.New("gateway: unsupported content type")

// ErrBackendUnavailable is returned when the backend cannot be reached at
// all (connection refused, DNS failure, timeout).
var ErrBackendUnavailable = errors.New("gateway: backend unavailable")

// BackendError reports a non-success response from the backend, keeping the
// body for diagnosis.
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("gateway: backend returned %d: %s", e.StatusCode, e.Body)
}

// Client calls the remote emotion model over HTTP.
type Client struct {
	baseURL      string
	modelVersion string
	httpClient   *http.Client
	log          *logger.Logger
}

// NewClient returns a gateway client for the backend at baseURL.
func NewClient(baseURL, modelVersion string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		modelVersion: modelVersion,
		httpClient:   &http.Client{Timeout: timeout},
		log:          logger.New(),
	}
}

// Infer submits normalized audio bytes and returns the ranked prediction.
// There is no retry here: a failed inference fails the pipeline stage, and
// retrying belongs to the scheduler that runs the stage.
func (c *Client) Infer(ctx context.Context, audio []byte, contentType string) (types.Prediction, error) {
	log := c.log.WithComponent("gateway")

	if _, ok := acceptedContentTypes[contentType]; !ok {
		return types.Prediction{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return types.Prediction{}, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return types.Prediction{}, fmt.Errorf("write audio part: %w", err)
	}
	if err := w.Close(); err != nil {
		return types.Prediction{}, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/infer", &body)
	if err != nil {
		return types.Prediction{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("backend unreachable")
		return types.Prediction{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithField("status", resp.StatusCode).Warn("backend error response")
		return types.Prediction{}, &BackendError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var scores []types.EmotionScore
	if err := json.Unmarshal(respBody, &scores); err != nil {
		return types.Prediction{}, &BackendError{
			StatusCode: resp.StatusCode,
			Body:       fmt.Sprintf("unparseable payload: %v", err),
		}
	}
	if len(scores) == 0 {
		return types.Prediction{}, &BackendError{StatusCode: resp.StatusCode, Body: "empty score list"}
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	pred := types.Prediction{
		Label:        scores[0].Emotion,
		Scores:       scores,
		ModelVersion: c.modelVersion,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	log.WithField("label", pred.Label).Info("inference complete")
	return pred, nil
}

// Health probes GET /health and verifies the liveness payload.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &BackendError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return &BackendError{StatusCode: resp.StatusCode, Body: fmt.Sprintf("bad health payload: %v", err)}
	}
	if payload.Status != "ok" {
		return &BackendError{StatusCode: resp.StatusCode, Body: "status=" + payload.Status}
	}
	return nil
}

// WaitHealthy polls Health with exponential backoff until the backend is
// live or ctx expires. Used at stage startup so a slow-starting model server
// does not immediately fail the run.
func (c *Client) WaitHealthy(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // bounded by ctx

	return backoff.Retry(func() error {
		return c.Health(ctx)
	}, backoff.WithContext(bo, ctx))
}
