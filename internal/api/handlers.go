package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"slotwatch/internal/metrics"
	"slotwatch/internal/models"
	"slotwatch/internal/queue"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("queue")

	switch r.Method {
	case http.MethodGet:
		items, err := s.queue.GetAll(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	case http.MethodPost:
		var item models.RetryItem
		decoder := json.NewDecoder(r.Body)
		if err := decoder.Decode(&item); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if item.Status == "" {
			item.Status = models.StatusInProgress
		}
		if item.StatusMessage == "" && item.Status == models.StatusInProgress {
			item.StatusMessage = models.MsgInProgress
		}

		items, err := s.queue.Add(r.Context(), item)
		switch {
		case err == nil:
			writeJSON(w, http.StatusCreated, map[string]any{"items": items})
		case errorsIsAny(err, queue.ErrInvalidItem, queue.ErrOrphanSuccess):
			writeError(w, http.StatusBadRequest, err.Error())
		case errorsIsAny(err, queue.ErrDuplicateItem):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}

	case http.MethodPut:
		// Bulk reconciliation: the provided list replaces the queue.
		var body struct {
			Items []models.RetryItem `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.queue.ReplaceAll(r.Context(), body.Items); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": body.Items})

	case http.MethodDelete:
		// Bulk removal: {"ids": [...]}.
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.IDs) == 0 {
			writeError(w, http.StatusBadRequest, "ids is required")
			return
		}
		if err := s.queue.RemoveMany(r.Context(), body.IDs); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleQueueItem routes /api/v1/queue/{id}, /api/v1/queue/{id}/pause,
// /api/v1/queue/{id}/resume and /api/v1/queue/group/{tvAppId}.
func (s *Server) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("queue_item")

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/queue/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if parts[0] == "group" {
		if len(parts) != 2 || r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := s.queue.RemoveGroup(r.Context(), parts[1]); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
		return
	}

	id := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.queue.Remove(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})

	case len(parts) == 1 && r.Method == http.MethodPatch:
		var patch models.ItemPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.queue.Update(r.Context(), id, patch); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})

	case len(parts) == 2 && parts[1] == "pause" && r.Method == http.MethodPost:
		if err := s.queue.Pause(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusPaused})

	case len(parts) == 2 && parts[1] == "resume" && r.Method == http.MethodPost:
		if err := s.queue.Resume(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusInProgress})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleProcessing(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("processing")

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.State())

	case http.MethodPost:
		var body struct {
			Action        string `json:"action"`
			IntervalMinMS int64  `json:"interval_min_ms"`
			IntervalMaxMS int64  `json:"interval_max_ms"`
			BatchSize     int    `json:"batch_size"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		switch body.Action {
		case "start":
			opts := models.DefaultProcessingOptions()
			if body.IntervalMinMS > 0 {
				opts.IntervalMin = time.Duration(body.IntervalMinMS) * time.Millisecond
			}
			if body.IntervalMaxMS > 0 {
				opts.IntervalMax = time.Duration(body.IntervalMaxMS) * time.Millisecond
			}
			if body.BatchSize > 0 {
				opts.BatchSize = body.BatchSize
			}
			if err := s.queue.StartProcessing(opts); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
		case "stop":
			s.queue.StopProcessing()
			writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
		default:
			writeError(w, http.StatusBadRequest, "action must be start or stop")
		}

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("stats")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := s.queue.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
