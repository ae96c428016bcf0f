package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/MimeLyc/subtube/internal/config"
	"github.com/MimeLyc/subtube/internal/jobs"
	"github.com/MimeLyc/subtube/internal/library"
	"github.com/MimeLyc/subtube/pkg/icron"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(ctx context.Context, next config.RuntimeSettings) error

// Submitter queues download jobs for URLs.
type Submitter interface {
	Submit(ctx context.Context, urls []string, source string) ([]*jobs.DownloadJob, error)
}

// Schedule reports the watchlist trigger times.
type Schedule interface {
	TriggerInfo(now time.Time) (*icron.TriggerInfo, error)
}

type Server struct {
	library   *library.Manager
	queue     *jobs.Queue
	submitter Submitter
	settings  runtimeSettingsStore
	apply     runtimeSettingsApplier
	schedule  Schedule

	uiEnabled   bool
	uiStaticDir string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func WithSchedule(schedule Schedule) Option {
	return func(s *Server) {
		s.schedule = schedule
	}
}

func NewServer(lib *library.Manager, queue *jobs.Queue, submitter Submitter, opts ...Option) *Server {
	s := &Server{
		library:   lib,
		queue:     queue,
		submitter: submitter,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	// No write timeout: the job stream stays open.
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/jobs/", s.handleJobDetail)
	s.mux.HandleFunc("/api/videos", s.handleVideos)
	s.mux.HandleFunc("/api/videos/", s.handleVideoRoutes)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/", s.handleStatic)
}

// handleStatic serves the UI bundle. Paths without an existing file fall
// back to index.html so client-side routes survive a reload.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	target := filepath.Join(s.uiStaticDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(target); err != nil || info.IsDir() {
		target = filepath.Join(s.uiStaticDir, "index.html")
	}
	http.ServeFile(w, r, target)
}
