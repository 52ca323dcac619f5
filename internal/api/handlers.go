// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"sbvc/internal/errors"
	"sbvc/internal/logging"
	"sbvc/internal/scheduler"
	"sbvc/internal/validation"

	"go.uber.org/zap"
)

// Retargeter follows the tracked file when it changes. The file watcher
// implements it.
type Retargeter interface {
	Retarget(path string) error
}

type ErrorResponse struct {
	Type    errors.ErrorType `json:"type,omitempty"`
	Message string           `json:"error"`
}

// VersionHandler serves the history of one store. Reads go to the engine,
// which guards them with its own lock; mutations are queued on the
// scheduler so they never interleave.
type VersionHandler struct {
	sched   *scheduler.Scheduler
	watcher Retargeter
	logger  *logging.Logger
}

func NewVersionHandler(sched *scheduler.Scheduler, logger *logging.Logger) *VersionHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &VersionHandler{sched: sched, logger: logger}
}

// WithWatcher makes a successful tracked-file change retarget w.
func (h *VersionHandler) WithWatcher(w Retargeter) *VersionHandler {
	h.watcher = w
	return h
}

func (h *VersionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/versions", h.List)
	mux.HandleFunc("GET /api/versions/{id}", h.Get)
	mux.HandleFunc("GET /api/versions/{id}/content", h.Content)
	mux.HandleFunc("GET /api/tree", h.Tree)
	mux.HandleFunc("GET /api/current", h.Current)
	mux.HandleFunc("GET /api/status", h.Status)
	mux.HandleFunc("GET /api/diff", h.Diff)
	mux.HandleFunc("POST /api/commit", h.Commit)
	mux.HandleFunc("POST /api/checkout/{id}", h.Checkout)
	mux.HandleFunc("POST /api/rename", h.Rename)
	mux.HandleFunc("POST /api/delete", h.Delete)
	mux.HandleFunc("POST /api/rollback", h.Rollback)
	mux.HandleFunc("PUT /api/file", h.SetTrackedFile)
}

func (h *VersionHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *VersionHandler) List(w http.ResponseWriter, r *http.Request) {
	versions, err := h.sched.Engine().Versions()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *VersionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseVersionID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.sched.Engine().Version(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *VersionHandler) Content(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseVersionID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	content, err := h.sched.Engine().Reconstruct(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

func (h *VersionHandler) Tree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.sched.Engine().Tree()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (h *VersionHandler) Current(w http.ResponseWriter, r *http.Request) {
	v, err := h.sched.Engine().Current()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *VersionHandler) Status(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sched.Engine().Snapshot()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *VersionHandler) Diff(w http.ResponseWriter, r *http.Request) {
	result, err := h.sched.Engine().WorkingDiff()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *VersionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	h.await(w, r, h.sched.Commit())
}

func (h *VersionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseVersionID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	discard, err := validation.ParseBool(r.URL.Query().Get("discard"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.await(w, r, h.sched.Checkout(id, discard))
}

func (h *VersionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	req, err := validation.ValidateRenameRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.await(w, r, h.sched.Rename(req.Name))
}

func (h *VersionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.await(w, r, h.sched.Delete())
}

func (h *VersionHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	h.await(w, r, h.sched.Rollback())
}

func (h *VersionHandler) SetTrackedFile(w http.ResponseWriter, r *http.Request) {
	req, err := validation.ValidateTrackedFileRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, ok := h.wait(w, r, h.sched.SetTrackedFile(req.Path))
	if !ok {
		return
	}
	// The snapshot carries the path this operation set; a later queued
	// operation may already have changed the engine's.
	if snap, ok := res.Snapshot(); ok && h.watcher != nil {
		if err := h.watcher.Retarget(snap.TrackedFile); err != nil {
			h.logger.WithRequestID(r.Context()).Warn("watcher retarget failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, res.Value)
}

// await waits for a queued mutation and answers with the snapshot it
// produced.
func (h *VersionHandler) await(w http.ResponseWriter, r *http.Request, handle *scheduler.Handle) {
	if res, ok := h.wait(w, r, handle); ok {
		writeJSON(w, http.StatusOK, res.Value)
	}
}

func (h *VersionHandler) wait(w http.ResponseWriter, r *http.Request, handle *scheduler.Handle) (scheduler.Result, bool) {
	log := h.logger.WithRequestID(r.Context()).With(
		zap.String("op", handle.Name()),
		zap.String("op_id", handle.ID()),
	)

	res, err := handle.Wait(r.Context())
	if err != nil {
		// The client went away. The operation still runs to completion.
		log.Warn("request abandoned before operation finished", zap.Error(err))
		if err == context.DeadlineExceeded {
			writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Message: err.Error()})
		}
		return res, false
	}
	if res.Err != nil {
		h.writeError(w, r, res.Err)
		return res, false
	}
	log.Debug("operation completed")
	return res, true
}

func (h *VersionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithRequestID(r.Context()).Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Type: errors.TypeOf(err), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
