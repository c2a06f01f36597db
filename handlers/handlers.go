package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"dag-stitch/logger"
	"dag-stitch/models"
	"dag-stitch/repository"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// StatusProvider exposes the stitch loop's latest snapshot
type StatusProvider interface {
	Status() *models.Status
}

// Handler contains the HTTP handlers for the status API endpoints
type Handler struct {
	Status  StatusProvider
	Journal repository.StitchRepositoryInterface
}

// NewHandler creates and returns a new Handler instance
func NewHandler(status StatusProvider, journal repository.StitchRepositoryInterface) *Handler {
	return &Handler{Status: status, Journal: journal}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// GetStatus handles GET requests for the current window and controller state
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := h.Status.Status()
	if st == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "status not available yet"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListStitches handles GET requests for the stitch journal
func (h *Handler) ListStitches(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Journal.GetAllStitches()
	if err != nil {
		logger.Logger.Error("Failed to list stitches", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []*models.StitchRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(recs),
		"stitches": recs,
	})
}

// GetStitch handles GET requests for a single journal entry
func (h *Handler) GetStitch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.Journal.GetStitch(id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "stitch " + id + " not found"})
		return
	}
	if err != nil {
		logger.Logger.Error("Failed to get stitch", zap.String("stitch_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
