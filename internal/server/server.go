// Package server exposes the submitter-facing HTTP API: upload a clip,
// trigger the pipeline, and poll for the correlated result.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/scholfa/MLOpsEmotion/internal/config"
	"github.com/scholfa/MLOpsEmotion/internal/correlator"
	"github.com/scholfa/MLOpsEmotion/internal/fileutil"
	"github.com/scholfa/MLOpsEmotion/internal/ledger"
	"github.com/scholfa/MLOpsEmotion/internal/logger"
	"github.com/scholfa/MLOpsEmotion/internal/metadata"
	"github.com/scholfa/MLOpsEmotion/internal/results"
	"github.com/scholfa/MLOpsEmotion/internal/trigger"
	"github.com/scholfa/MLOpsEmotion/internal/types"
)

// acceptedUploadTypes mirrors the gateway's allow-list; uploads declaring
// anything else are rejected before a byte is stored.
var acceptedUploadTypes = map[string]struct{}{
	"audio/wav":   {},
	"audio/x-wav": {},
}

// Server wires the HTTP handlers to their collaborators.
type Server struct {
	cfg     *config.Config
	store   *ledger.Store
	meta    *metadata.Store
	resLog  *results.Log
	trigger trigger.Trigger
	log     *logger.Logger

	// now is injectable for ID-collision tests.
	now func() time.Time
}

// New returns a Server over the given collaborators.
func New(cfg *config.Config, store *ledger.Store, tr trigger.Trigger) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		meta:    metadata.NewStore(cfg.MetadataDir()),
		resLog:  results.NewLog(cfg.ResultsLogPath()),
		trigger: tr,
		log:     logger.New(),
		now:     time.Now,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /submissions", s.handleSubmit)
	mux.HandleFunc("GET /submissions", s.handleList)
	mux.HandleFunc("GET /submissions/{id}/result", s.handleResult)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmit stores the raw artifact and metadata record, registers the
// submission in the ledger, and fire-and-forgets the pipeline trigger.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "submit")

	file, header, err := r.FormFile("file")
	if err != nil {
		reqLog.WithError(err).Warn("missing file field")
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if err := validateUpload(header.Filename, header.Header.Get("Content-Type")); err != nil {
		reqLog.WithError(err).Warn("upload rejected")
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	id := s.now().UTC().Format("20060102-150405") + "_" + filepath.Base(header.Filename)
	rawPath := filepath.Join(s.cfg.RawDir(), id)
	reqLog = reqLog.WithField("submission", id)

	// The ledger row is reserved before anything touches disk: a rejected
	// submission must not overwrite or orphan another one's artifacts.
	sub, err := s.store.Create(r.Context(), ledger.Submission{
		ID:         id,
		SourceName: header.Filename,
		RawPath:    rawPath,
	}, true)
	switch {
	case errors.Is(err, ledger.ErrInFlight):
		reqLog.Warn("submission rejected: run in progress")
		writeError(w, http.StatusConflict, "a submission is already being processed; try again when it finishes")
		return
	case errors.Is(err, ledger.ErrDuplicate):
		reqLog.Warn("submission rejected: duplicate ID")
		writeError(w, http.StatusConflict, "a submission with this name was just made; wait a second and retry")
		return
	case err != nil:
		reqLog.WithError(err).Error("could not register submission")
		writeError(w, http.StatusInternalServerError, "could not register submission")
		return
	}

	size, err := fileutil.SaveStream(rawPath, file)
	if err != nil {
		reqLog.WithError(err).Error("could not store raw artifact")
		_ = s.store.MarkFailed(r.Context(), id, "could not store raw artifact: "+err.Error())
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	if err := s.store.SetArtifact(r.Context(), id, rawPath, size); err != nil {
		reqLog.WithError(err).Warn("could not record artifact size")
	}

	if err := s.meta.Write(types.MetadataRecord{File: id, Source: header.Filename, Size: size}); err != nil {
		reqLog.WithError(err).Error("could not write metadata record")
		_ = s.store.MarkFailed(r.Context(), id, "could not write metadata record: "+err.Error())
		writeError(w, http.StatusInternalServerError, "could not record metadata")
		return
	}

	handle, err := s.trigger.Trigger(r.Context())
	if err != nil {
		// Surface the scheduler's payload verbatim; the submission is dead
		// without a pipeline run.
		reqLog.WithError(err).Error("pipeline trigger failed")
		_ = s.store.MarkFailed(r.Context(), id, err.Error())
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err := s.store.SetRunID(r.Context(), id, handle.ID); err != nil {
		reqLog.WithError(err).Warn("could not record run id")
	}

	reqLog.WithField("run_id", handle.ID).Info("submission accepted")
	writeJSON(w, http.StatusAccepted, map[string]string{
		"submission_id": sub.ID,
		"run_id":        handle.ID,
		"status":        string(ledger.StatusPending),
	})
}

// handleResult runs the correlation protocol for one submission. A timeout
// is a 202 "check back later", never an error: the pipeline may still be
// running.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reqLog := s.log.WithRequest(r).WithField("handler", "result").WithField("submission", id)

	if _, err := s.store.GetByID(r.Context(), id); errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown submission")
		return
	} else if err != nil {
		reqLog.WithError(err).Error("ledger lookup failed")
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}

	timeout := time.Duration(s.cfg.Correlator.TimeoutSeconds) * time.Second
	if t := r.URL.Query().Get("timeout_sec"); t != "" {
		var sec int
		if _, err := fmt.Sscanf(t, "%d", &sec); err == nil && sec > 0 {
			timeout = time.Duration(sec) * time.Second
		}
	}
	interval := time.Duration(s.cfg.Correlator.IntervalSeconds) * time.Second

	c := correlator.New(s.resLog, interval, timeout).
		WithStatusChecker(ledgerChecker{store: s.store})

	outcome, err := c.Wait(r.Context(), id)
	if err != nil {
		reqLog.WithError(err).Warn("correlation abandoned")
		writeError(w, http.StatusServiceUnavailable, "polling interrupted")
		return
	}

	switch outcome.State {
	case correlator.StateMatched:
		writeJSON(w, http.StatusOK, map[string]any{
			"submission_id": id,
			"status":        "completed",
			"result":        outcome.Prediction,
		})
	case correlator.StateFailed:
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"submission_id": id,
			"status":        "failed",
			"reason":        outcome.Reason,
		})
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"submission_id": id,
			"status":        "pending",
			"detail":        "no result yet; the pipeline may still be running, try again later",
		})
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.List(r.Context())
	if err != nil {
		s.log.WithRequest(r).WithError(err).Error("ledger listing failed")
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}

	out := make([]map[string]string, 0, len(subs))
	for _, sub := range subs {
		out = append(out, map[string]string{
			"submission_id": sub.ID,
			"source":        sub.SourceName,
			"status":        string(sub.Status),
			"run_id":        sub.RunID,
			"error":         sub.ErrorMessage,
			"created_at":    sub.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ledgerChecker adapts the ledger to the correlator's early-failure probe.
type ledgerChecker struct {
	store *ledger.Store
}

func (c ledgerChecker) RunFailed(ctx context.Context, id string) (bool, string, error) {
	sub, err := c.store.GetByID(ctx, id)
	if err != nil {
		return false, "", err
	}
	if sub.Status == ledger.StatusFailed {
		return true, sub.ErrorMessage, nil
	}
	return false, "", nil
}

func validateUpload(filename, contentType string) error {
	if ct := strings.TrimSpace(strings.Split(contentType, ";")[0]); ct != "" {
		if _, ok := acceptedUploadTypes[ct]; ok {
			return nil
		}
		// Browsers often send octet-stream for .wav files; fall through to
		// the extension check for that case only.
		if ct != "application/octet-stream" {
			return fmt.Errorf("unsupported content type %q; upload WAV audio", ct)
		}
	}
	if !strings.EqualFold(filepath.Ext(filename), ".wav") {
		return fmt.Errorf("unsupported file %q; upload WAV audio", filename)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
