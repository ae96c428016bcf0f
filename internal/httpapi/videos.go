package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/library"
	"github.com/MimeLyc/subtube/internal/subtitle"
	"github.com/MimeLyc/subtube/pkg/file"
)

const (
	defaultPreviewLimit = 80
	maxPreviewLimit     = 500
)

type captionLine struct {
	Index int `json:"index"`
	subtitle.Line
}

type captionsResponse struct {
	VideoID string        `json:"video_id"`
	Total   int           `json:"total"`
	Offset  int           `json:"offset"`
	Limit   int           `json:"limit"`
	Lines   []captionLine `json:"lines"`
}

type captionAtResponse struct {
	VideoID string       `json:"video_id"`
	At      float64      `json:"at"`
	Found   bool         `json:"found"`
	Line    *captionLine `json:"line,omitempty"`
}

type updateLinesRequest struct {
	Lines []updateLineRequest `json:"lines"`
}

type updateLineRequest struct {
	Index          int    `json:"index"`
	TranslatedText string `json:"translated_text"`
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.library.List(r.Context())
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodDelete:
		n, err := s.library.Purge(r.Context())
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"deleted": n,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleVideoRoutes(w http.ResponseWriter, r *http.Request) {
	videoID, action, ok := parseRoute(r.URL.Path, "/api/videos/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "":
		s.handleVideo(w, r, videoID)
	case "captions":
		s.handleCaptions(w, r, videoID)
	case "audio":
		s.serveVideoFile(w, r, videoID, func(e library.Entry) string { return e.AudioPath })
	case "thumbnail":
		s.serveVideoFile(w, r, videoID, func(e library.Entry) string { return e.ThumbnailPath })
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	switch r.Method {
	case http.MethodGet:
		entry, err := s.library.Get(r.Context(), videoID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodDelete:
		rec, err := s.library.Delete(r.Context(), videoID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCaptions(w http.ResponseWriter, r *http.Request, videoID string) {
	switch r.Method {
	case http.MethodGet:
		if raw := r.URL.Query().Get("at"); raw != "" {
			s.handleCaptionAt(w, r, videoID, raw)
			return
		}
		lines, err := s.library.Captions(r.Context(), videoID)
		if err != nil {
			writeFault(w, err)
			return
		}
		offset, limit := parseWindow(r.URL.Query())
		writeJSON(w, http.StatusOK, captionsResponse{
			VideoID: videoID,
			Total:   len(lines),
			Offset:  offset,
			Limit:   limit,
			Lines:   window(lines, offset, limit),
		})
	case http.MethodPut:
		var req updateLinesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if len(req.Lines) == 0 {
			writeError(w, http.StatusBadRequest, "lines is required")
			return
		}
		patches := make(map[int]string, len(req.Lines))
		for _, line := range req.Lines {
			patches[line.Index] = line.TranslatedText
		}
		lines, err := s.library.UpdateTranslations(r.Context(), videoID, patches)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, captionsResponse{
			VideoID: videoID,
			Total:   len(lines),
			Limit:   len(lines),
			Lines:   window(lines, 0, len(lines)),
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCaptionAt(w http.ResponseWriter, r *http.Request, videoID, raw string) {
	at, err := strconv.ParseFloat(raw, 64)
	if err != nil || at < 0 {
		writeError(w, http.StatusBadRequest, "at must be a non-negative number of seconds")
		return
	}
	lines, err := s.library.Captions(r.Context(), videoID)
	if err != nil {
		writeFault(w, err)
		return
	}
	resp := captionAtResponse{VideoID: videoID, At: at}
	if line, idx, ok := subtitle.At(lines, at); ok {
		resp.Found = true
		resp.Line = &captionLine{Index: idx, Line: line}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) serveVideoFile(w http.ResponseWriter, r *http.Request, videoID string, pick func(library.Entry) string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entry, err := s.library.Get(r.Context(), videoID)
	if err != nil {
		writeFault(w, err)
		return
	}
	p := pick(entry)
	if p == "" || !file.Exists(p) {
		writeFault(w, fault.New(fault.KindFileNotFound, "file missing").With("video_id", videoID))
		return
	}
	http.ServeFile(w, r, p)
}

// parseRoute splits "<prefix><id>[/<action>]".
func parseRoute(path, prefix string) (id string, action string, ok bool) {
	trimmed := strings.TrimPrefix(path, prefix)
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", "", false
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) > 2 {
		return "", "", false
	}
	rawID, err := url.PathUnescape(parts[0])
	if err != nil || strings.TrimSpace(rawID) == "" {
		return "", "", false
	}
	if len(parts) == 1 {
		return rawID, "", true
	}
	return rawID, parts[1], true
}

func parseWindow(q url.Values) (offset, limit int) {
	offset = parsePositiveIntWithDefault(q.Get("offset"), 0)
	limit = parsePositiveIntWithDefault(q.Get("limit"), defaultPreviewLimit)
	if limit <= 0 {
		limit = defaultPreviewLimit
	}
	if limit > maxPreviewLimit {
		limit = maxPreviewLimit
	}
	return offset, limit
}

func window(lines []subtitle.Line, offset, limit int) []captionLine {
	ret := make([]captionLine, 0)
	if offset >= len(lines) {
		return ret
	}
	end := offset + limit
	if end > len(lines) {
		end = len(lines)
	}
	for i := offset; i < end; i++ {
		ret = append(ret, captionLine{Index: i, Line: lines[i]})
	}
	return ret
}

func parsePositiveIntWithDefault(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
