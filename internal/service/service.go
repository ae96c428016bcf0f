// Package service ties the pipeline to storage, the job queue, the watch
// schedule and runtime settings.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MimeLyc/subtube/internal/config"
	"github.com/MimeLyc/subtube/internal/jobs"
	"github.com/MimeLyc/subtube/internal/pipeline"
	"github.com/MimeLyc/subtube/internal/playlist"
	"github.com/MimeLyc/subtube/internal/video"
	"github.com/MimeLyc/subtube/internal/videoid"
	"github.com/MimeLyc/subtube/pkg/file"
	"github.com/MimeLyc/subtube/pkg/icron"
	"github.com/MimeLyc/subtube/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

const (
	SourceManual = "manual"
	SourceCron   = "cron"
	SourceCLI    = "cli"
)

// PipelineFactory builds the pipeline for a configuration.
type PipelineFactory func(cfg config.Config) pipeline.Runner

type Service struct {
	store    video.Store
	queue    *jobs.Queue
	expander *playlist.Expander
	cron     *cron.Cron
	factory  PipelineFactory

	mu        sync.RWMutex
	cfg       config.Config
	runner    pipeline.Runner
	cronEntry cron.EntryID
	scheduled bool

	group singleflight.Group
}

type Option func(*Service)

func WithPipelineFactory(f PipelineFactory) Option {
	return func(s *Service) { s.factory = f }
}

func WithExpander(e *playlist.Expander) Option {
	return func(s *Service) { s.expander = e }
}

func WithQueue(q *jobs.Queue) Option {
	return func(s *Service) { s.queue = q }
}

func WithCron(c *cron.Cron) Option {
	return func(s *Service) { s.cron = c }
}

func New(cfg config.Config, store video.Store, opts ...Option) *Service {
	s := &Service{
		cfg:   cfg,
		store: store,
		factory: func(cfg config.Config) pipeline.Runner {
			return NewPipeline(cfg)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.expander == nil {
		s.expander = playlist.NewExpander(nil)
	}
	s.runner = s.factory(cfg)
	return s
}

func (s *Service) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Service) Queue() *jobs.Queue {
	return s.queue
}

// Fetch runs the pipeline for url and saves the record. Concurrent fetches
// of the same video share one run.
func (s *Service) Fetch(ctx context.Context, url string, onProgress func(string)) (*video.Record, error) {
	s.mu.RLock()
	runner := s.runner
	outputDir := s.cfg.Storage.OutputDir
	s.mu.RUnlock()

	id, ok := videoid.Resolve(url)
	if !ok {
		// the pipeline reports the validation fault
		return runner.Run(ctx, url, outputDir, onProgress)
	}

	v, err, shared := s.group.Do(id, func() (any, error) {
		rec, err := runner.Run(ctx, url, outputDir, onProgress)
		if err != nil {
			s.dropDangling(ctx, id)
			return nil, err
		}
		if err := s.store.Save(ctx, rec); err != nil {
			return nil, err
		}
		log.Info("Saved %s (%q)", rec.VideoID, rec.Title)
		return rec, nil
	})
	if shared {
		log.Debug("Fetch of %s shared with a concurrent run", id)
	}
	if err != nil {
		return nil, err
	}
	return v.(*video.Record), nil
}

// dropDangling deletes the stored record of id when a failed re-run has
// removed its audio file. A record never outlives its audio.
func (s *Service) dropDangling(ctx context.Context, id string) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, video.ErrNotFound) {
			log.Warn("Failed to check stored record of %s: %v", id, err)
		}
		return
	}
	if file.Exists(rec.AudioPath) {
		return
	}
	if _, err := s.store.Delete(ctx, id); err != nil {
		log.Error("Failed to delete record of %s after losing its audio: %v", id, err)
		return
	}
	log.Warn("Deleted record of %s: its files were removed by a failed run", id)
}

// FetchAll fetches urls one after another, expanding playlists first.
func (s *Service) FetchAll(ctx context.Context, urls []string, onProgress func(url, status string)) (int, []pipeline.Failure) {
	urls = s.expander.Expand(ctx, urls)
	return pipeline.RunBatch(ctx, fetchRunner{s}, urls, "", onProgress, nil)
}

// fetchRunner adapts Fetch to pipeline.Runner; the record is saved inside
// Fetch so the batch needs no sink.
type fetchRunner struct{ s *Service }

func (f fetchRunner) Run(ctx context.Context, url, _ string, onProgress func(string)) (*video.Record, error) {
	return f.s.Fetch(ctx, url, onProgress)
}

// Submit queues urls, expanding playlist URLs. A video already queued or
// running is not queued twice.
func (s *Service) Submit(ctx context.Context, urls []string, source string) ([]*jobs.DownloadJob, error) {
	if s.queue == nil {
		return nil, errors.New("job queue is not configured")
	}
	return s.enqueue(s.expander.Expand(ctx, urls), source), nil
}

func (s *Service) enqueue(urls []string, source string) []*jobs.DownloadJob {
	ret := make([]*jobs.DownloadJob, 0, len(urls))
	for _, url := range urls {
		id, _ := videoid.Resolve(url)
		key := id
		if key == "" {
			key = url
		}
		job, created := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    source,
			DedupeKey: key,
			URL:       url,
			VideoID:   id,
		})
		if created {
			log.Info("Queued %s as %s (%s)", url, job.ID, source)
		}
		ret = append(ret, job)
	}
	return ret
}

// Execute is the queue executor.
func (s *Service) Execute(ctx context.Context, job *jobs.DownloadJob, report func(string)) (jobs.Result, error) {
	rec, err := s.Fetch(context.WithoutCancel(ctx), job.URL, report)
	if err != nil {
		return jobs.Result{}, err
	}
	return jobs.Result{VideoID: rec.VideoID, Title: rec.Title}, nil
}

// Start runs the queue worker.
func (s *Service) Start() {
	if s.queue != nil {
		s.queue.Start(s.Execute)
	}
}

// Schedule registers the watchlist job. Without a watch file it does
// nothing.
func (s *Service) Schedule(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(ctx)
}

func (s *Service) scheduleLocked(ctx context.Context) error {
	if s.cron == nil || s.cfg.Watch.File == "" {
		return nil
	}
	if s.scheduled {
		s.cron.Remove(s.cronEntry)
		s.scheduled = false
	}

	watchFile := s.cfg.Watch.File
	id, err := s.cron.AddFunc(s.cfg.Watch.CronExpr, func() {
		s.runWatchlist(ctx, watchFile)
	})
	if err != nil {
		return fmt.Errorf("schedule watchlist: %w", err)
	}
	s.cronEntry = id
	s.scheduled = true
	log.Info("Watchlist %s scheduled with %q", watchFile, s.cfg.Watch.CronExpr)
	return nil
}

func (s *Service) runWatchlist(ctx context.Context, path string) {
	urls, err := ReadWatchlist(path)
	if err != nil {
		log.Error("Failed to read watchlist %s: %v", path, err)
		return
	}
	if s.queue == nil {
		log.Error("Failed to queue watchlist: job queue is not configured")
		return
	}
	pending := s.notStored(ctx, s.expander.Expand(ctx, urls))
	queued := s.enqueue(pending, SourceCron)
	log.Info("Watchlist run queued %d jobs, %d videos already in the library", len(queued), len(urls)-len(pending))
}

// notStored filters out URLs of videos the library already holds.
func (s *Service) notStored(ctx context.Context, urls []string) []string {
	ret := make([]string, 0, len(urls))
	for _, url := range urls {
		if id, ok := videoid.Resolve(url); ok {
			if _, err := s.store.Get(ctx, id); err == nil {
				log.Debug("Watchlist: %s already downloaded", id)
				continue
			}
		}
		ret = append(ret, url)
	}
	return ret
}

// TriggerInfo describes the watch schedule.
func (s *Service) TriggerInfo(now time.Time) (*icron.TriggerInfo, error) {
	s.mu.RLock()
	expr := s.cfg.Watch.CronExpr
	s.mu.RUnlock()
	return icron.GetTriggerInfo(expr, now, 5)
}

// ApplyRuntimeSettings switches the live service to settings: it rebuilds
// the pipeline and reschedules the watchlist. Jobs already running keep
// the previous pipeline.
func (s *Service) ApplyRuntimeSettings(ctx context.Context, settings config.RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	next.ApplyRuntimeSettings(settings)
	s.cfg = next
	s.runner = s.factory(next)
	log.Info("Runtime settings applied: backend=%s target=%s cron=%q",
		next.Translate.Backend, next.Translate.TargetLanguage, next.Watch.CronExpr)
	return s.scheduleLocked(ctx)
}
