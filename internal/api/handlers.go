package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/siftworks/sift/internal/workflow"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20 // 1MB

type handlers struct {
	service Service
	logger  *slog.Logger
}

type queryRequest struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id"`
	Query    string `json:"query"`
}

type ingestRequest struct {
	Paths []string `json:"paths"`
}

// query runs a research query. A missing thread_id starts a new thread.
func (h *handlers) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !h.decode(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required", h.logger)
		return
	}
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}

	result, err := h.service.Query(r.Context(), strings.TrimSpace(req.UserID), threadID, req.Query)
	switch {
	case errors.Is(err, workflow.ErrThreadBusy):
		writeError(w, http.StatusConflict, "thread_busy", "thread is already processing a query", h.logger)
		return
	case err != nil:
		h.logger.Error("query failed", "thread_id", threadID, "error", err,
			"request_id", requestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "query_failed", "query failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result, h.logger)
}

// ingestDocuments indexes the given paths.
func (h *handlers) ingestDocuments(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !h.decode(w, r, &req) {
		return
	}

	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "paths are required", h.logger)
		return
	}

	result, err := h.service.IngestDocuments(r.Context(), req.Paths)
	if err != nil {
		h.logger.Error("ingest failed", "error", err,
			"request_id", requestIDFromContext(r.Context()))
		writeError(w, http.StatusUnprocessableEntity, "ingest_failed", err.Error(), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result, h.logger)
}

// resetThread clears a thread's conversation memory.
func (h *handlers) resetThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	if threadID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "thread id is required", h.logger)
		return
	}

	if err := h.service.ResetThread(r.Context(), threadID); err != nil {
		h.logger.Error("thread reset failed", "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "reset_failed", "thread reset failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"thread_id": threadID, "status": "reset"}, h.logger)
}

// health reports process liveness.
func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

// ready reports whether dependencies are reachable.
func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Healthy(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error(), h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, h.logger)
}

// decode reads a JSON request body into dst, writing a 400 on failure.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", h.logger)
		return false
	}
	return true
}
