package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MimeLyc/subtube/internal/config"
	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/library"
)

const sourceManual = "manual"

type submitRequest struct {
	URLs   []string `json:"urls"`
	Source string   `json:"source"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List())
	case http.MethodPost:
		if s.submitter == nil {
			writeError(w, http.StatusNotImplemented, "job submission is not configured")
			return
		}
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		urls := make([]string, 0, len(req.URLs))
		for _, u := range req.URLs {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) == 0 {
			writeError(w, http.StatusBadRequest, "urls is required")
			return
		}
		if req.Source == "" {
			req.Source = sourceManual
		}

		queued, err := s.submitter.Submit(r.Context(), urls, req.Source)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"jobs": queued,
		})
	case http.MethodDelete:
		writeJSON(w, http.StatusOK, map[string]any{
			"cleared": s.queue.ClearFinished(),
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(r.Context(), saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.schedule == nil {
		writeError(w, http.StatusNotImplemented, "schedule is not configured")
		return
	}
	info, err := s.schedule.TriggerInfo(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// writeFault maps err to a status code and the message a user should see.
func writeFault(w http.ResponseWriter, err error) {
	switch {
	case library.IsNotFound(err):
		writeError(w, http.StatusNotFound, "video not found")
	case fault.IsKind(err, fault.KindFileNotFound):
		writeError(w, http.StatusNotFound, "file not found")
	case errors.Is(err, library.ErrInvalidLine), fault.IsKind(err, fault.KindValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fault.UserMessage(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
