package httpapi

import (
	"net/http"

	"github.com/MimeLyc/subtube/internal/jobs"
	"github.com/MimeLyc/subtube/internal/library"
	"github.com/MimeLyc/subtube/pkg/log"
)

type jobDetailResponse struct {
	Job           *jobs.DownloadJob `json:"job"`
	Video         *library.Entry    `json:"video,omitempty"`
	Preview       []captionLine     `json:"preview"`
	PreviewTotal  int               `json:"preview_total"`
	PreviewOffset int               `json:"preview_offset"`
	PreviewLimit  int               `json:"preview_limit"`
}

// handleJobDetail serves /api/jobs/{id}. Finished jobs include the stored
// video and a window of its captions.
func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	jobID, action, ok := parseRoute(r.URL.Path, "/api/jobs/")
	if !ok || action != "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	job, ok := s.queue.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	offset, limit := parseWindow(r.URL.Query())
	resp := jobDetailResponse{
		Job:           job,
		Preview:       make([]captionLine, 0),
		PreviewOffset: offset,
		PreviewLimit:  limit,
	}
	if job.Status != jobs.StatusSuccess || job.VideoID == "" || s.library == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	entry, err := s.library.Get(r.Context(), job.VideoID)
	if err != nil {
		// the video may have been deleted since the job finished
		if !library.IsNotFound(err) {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Video = &entry

	if entry.Files.HasCaptions {
		lines, err := s.library.Captions(r.Context(), job.VideoID)
		if err != nil {
			log.Warn("Failed to load captions of %s for job %s: %v", job.VideoID, job.ID, err)
		} else {
			resp.PreviewTotal = len(lines)
			resp.Preview = window(lines, offset, limit)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
