package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hoanghai1803/paperfeed/internal/models"
	"github.com/hoanghai1803/paperfeed/internal/pipeline"
	"github.com/hoanghai1803/paperfeed/internal/storage"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// RunStarter starts a pipeline run in the background. *pipeline.Pipeline
// implements it.
type RunStarter interface {
	Start(ctx context.Context, opts pipeline.Options) (*models.Run, error)
}

// triggerRequest is the optional POST /api/runs body.
type triggerRequest struct {
	Category string `json:"category"`
	Days     int    `json:"days"`
	Limit    int    `json:"limit"`
	NoLimit  bool   `json:"no_limit"`
}

// TriggerRun handles POST /api/runs. It starts a run and returns it with
// 202 Accepted, or 409 Conflict when a run is already in progress.
func TriggerRun(starter RunStarter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if body.Days < 0 || body.Limit < 0 {
			writeError(w, http.StatusBadRequest, "days and limit must not be negative")
			return
		}

		// The run outlives the request.
		ctx := context.WithoutCancel(r.Context())
		run, err := starter.Start(ctx, pipeline.Options{
			Category: body.Category,
			Days:     body.Days,
			Limit:    body.Limit,
			NoLimit:  body.NoLimit,
		})
		if err != nil {
			if errors.Is(err, pipeline.ErrRunInProgress) {
				writeError(w, http.StatusConflict, "A run is already in progress")
				return
			}
			slog.Error("failed to start run", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to start run")
			return
		}

		writeJSON(w, http.StatusAccepted, run)
	}
}

// ListRuns handles GET /api/runs?limit={n}. Reports are omitted.
func ListRuns(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		runs, err := store.ListRuns(r.Context(), limit)
		if err != nil {
			slog.Error("failed to list runs", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to list runs")
			return
		}

		writeJSON(w, http.StatusOK, runs)
	}
}

// GetLatestRun handles GET /api/runs/latest.
func GetLatestRun(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := store.GetLatestRun(r.Context())
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "No runs yet")
				return
			}
			slog.Error("failed to get latest run", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to get latest run")
			return
		}

		writeJSON(w, http.StatusOK, run)
	}
}

// GetRun handles GET /api/runs/{id}.
func GetRun(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(w, r, store)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

// GetRunReport handles GET /api/runs/{id}/report. The ranked report is
// returned as Markdown once the run has succeeded.
func GetRunReport(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(w, r, store)
		if !ok {
			return
		}

		switch run.Status {
		case models.RunRunning:
			writeError(w, http.StatusConflict, "Run is still in progress")
			return
		case models.RunFailed:
			writeError(w, http.StatusNotFound, "Run failed: "+run.Error)
			return
		}

		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, run.Report)
	}
}

// lookupRun loads the run named by the {id} parameter, writing the error
// response itself when that fails.
func lookupRun(w http.ResponseWriter, r *http.Request, store *storage.Store) (*models.Run, bool) {
	id, err := parseRunID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	run, err := store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return nil, false
		}
		slog.Error("failed to get run", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return nil, false
	}
	return run, true
}
