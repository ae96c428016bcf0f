// Package jobs runs download requests one after another and keeps their
// state, progress and outcome for the API.
package jobs

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/progress"
	"github.com/MimeLyc/subtube/pkg/log"
)

// Executor runs one job. report receives pipeline status lines.
type Executor func(ctx context.Context, job *DownloadJob, report func(status string)) (Result, error)

type Queue struct {
	workerCount int
	maxJobs     int
	store       Store

	mu         sync.RWMutex
	jobs       map[string]*DownloadJob
	dedupe     map[string]string
	idCounter  uint64
	started    bool
	pendingIDs chan string
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewQueue creates a queue. Downloads share the network link and the output
// directory, so callers normally pass a single worker.
func NewQueue(workerCount int, store Store) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	q := &Queue{
		workerCount: workerCount,
		maxJobs:     500,
		store:       store,
		jobs:        make(map[string]*DownloadJob),
		dedupe:      make(map[string]string),
		pendingIDs:  make(chan string, 1024),
		stopCh:      make(chan struct{}),
	}
	q.hydrateFromStore(context.Background())
	return q
}

// Enqueue adds a job unless an unfinished job with the same dedupe key
// exists, in which case that job is returned with created=false.
func (q *Queue) Enqueue(req EnqueueRequest) (*DownloadJob, bool) {
	now := time.Now()

	q.mu.Lock()
	if id, ok := q.dedupe[req.DedupeKey]; ok {
		if existing, exists := q.jobs[id]; exists {
			snapshot := cloneJob(existing)
			q.mu.Unlock()
			return snapshot, false
		}
		delete(q.dedupe, req.DedupeKey)
	}

	id := fmt.Sprintf("job-%d", atomic.AddUint64(&q.idCounter, 1))
	job := &DownloadJob{
		ID:        id,
		Source:    req.Source,
		DedupeKey: req.DedupeKey,
		URL:       req.URL,
		VideoID:   req.VideoID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.jobs[id] = job
	if req.DedupeKey != "" {
		q.dedupe[req.DedupeKey] = id
	}
	started := q.started
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	if started {
		q.enqueuePendingID(id)
	}
	return snapshot, true
}

func (q *Queue) Get(id string) (*DownloadJob, bool) {
	q.mu.RLock()
	job, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// List returns all jobs, oldest first.
func (q *Queue) List() []*DownloadJob {
	q.mu.RLock()
	ret := make([]*DownloadJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, cloneJob(job))
	}
	q.mu.RUnlock()

	slices.SortFunc(ret, byCreation)
	return ret
}

// Active reports whether any job is pending or running.
func (q *Queue) Active() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, job := range q.jobs {
		if !job.Status.Terminal() {
			return true
		}
	}
	return false
}

func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	var pending []*DownloadJob
	for _, job := range q.jobs {
		if job.Status == StatusPending {
			pending = append(pending, job)
		}
	}
	slices.SortFunc(pending, byCreation)
	q.mu.Unlock()

	for _, job := range pending {
		q.enqueuePendingID(job.ID)
	}

	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

// Stop waits for the running job to finish. Pending jobs stay pending in
// the store and resume on the next start.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.wg.Wait()
	})
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case id := <-q.pendingIDs:
			job, ok := q.markRunning(id)
			if !ok {
				continue
			}

			res, err := exec(context.Background(), job, func(status string) {
				q.report(id, status)
			})
			if err != nil {
				q.markFailed(id, err)
				continue
			}
			q.markSuccess(id, res)
		}
	}
}

func (q *Queue) enqueuePendingID(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() { q.pendingIDs <- id }()
	}
}

// report folds a status line into the job's overall progress.
func (q *Queue) report(id, status string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusRunning {
		return
	}
	job.StatusText = status
	if ev, ok := progress.Parse(status); ok {
		job.Progress = progress.Fold(job.Progress, ev)
	}
	job.UpdatedAt = time.Now()
}

func (q *Queue) markRunning(id string) (*DownloadJob, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		q.mu.Unlock()
		return nil, false
	}
	job.Status = StatusRunning
	job.Progress = 0
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	return snapshot, true
}

func (q *Queue) markSuccess(id string, res Result) {
	q.finish(id, func(job *DownloadJob) {
		job.Status = StatusSuccess
		job.Progress = 100
		job.StatusText = progress.Done()
		job.Error = ""
		job.UserMessage = ""
		if res.VideoID != "" {
			job.VideoID = res.VideoID
		}
		if res.Title != "" {
			job.Title = res.Title
		}
	})
}

// markFailed records err. Videos without English captions are skipped
// rather than failed.
func (q *Queue) markFailed(id string, err error) {
	q.finish(id, func(job *DownloadJob) {
		job.Status = StatusFailed
		if fault.IsKind(err, fault.KindNoEnglishCaptions) {
			job.Status = StatusSkipped
		}
		job.Error = err.Error()
		job.UserMessage = fault.UserMessage(err)
		job.StatusText = job.UserMessage
	})
}

func (q *Queue) finish(id string, apply func(job *DownloadJob)) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	apply(job)
	job.UpdatedAt = time.Now()
	q.releaseDedupeLocked(job)
	pruned := q.pruneTerminalJobsLocked()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	q.deleteJobsFromStore(pruned)
}

// ClearFinished drops terminal jobs and returns how many were removed.
func (q *Queue) ClearFinished() int {
	q.mu.Lock()
	var ids []string
	for id, job := range q.jobs {
		if job.Status.Terminal() {
			q.releaseDedupeLocked(job)
			delete(q.jobs, id)
			ids = append(ids, id)
		}
	}
	q.mu.Unlock()

	q.deleteJobsFromStore(ids)
	return len(ids)
}

func (q *Queue) releaseDedupeLocked(job *DownloadJob) {
	if job == nil || job.DedupeKey == "" {
		return
	}
	if id, ok := q.dedupe[job.DedupeKey]; ok && id == job.ID {
		delete(q.dedupe, job.DedupeKey)
	}
}

// pruneTerminalJobsLocked keeps the map at maxJobs by evicting the finished
// jobs that changed least recently. Active jobs are never evicted.
func (q *Queue) pruneTerminalJobsLocked() []string {
	excess := len(q.jobs) - q.maxJobs
	if q.maxJobs <= 0 || excess <= 0 {
		return nil
	}

	var finished []*DownloadJob
	for _, job := range q.jobs {
		if job.Status.Terminal() {
			finished = append(finished, job)
		}
	}
	slices.SortFunc(finished, func(a, b *DownloadJob) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})

	var pruned []string
	for _, job := range finished[:min(excess, len(finished))] {
		q.releaseDedupeLocked(job)
		delete(q.jobs, job.ID)
		pruned = append(pruned, job.ID)
	}
	return pruned
}

func (q *Queue) deleteJobsFromStore(ids []string) {
	if q.store == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			log.Error("Failed to delete job %s from store: %v", id, err)
		}
	}
}

func (q *Queue) hydrateFromStore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load jobs from store: %v", err)
		return
	}

	now := time.Now()
	toPersist := make([]*DownloadJob, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		if job.Status == StatusRunning {
			// interrupted mid-run; the pipeline starts over
			job.Status = StatusPending
			job.Progress = 0
			job.StatusText = ""
			job.UpdatedAt = now
			toPersist = append(toPersist, cloneJob(job))
		}
		q.jobs[job.ID] = job
		if job.Status == StatusPending && job.DedupeKey != "" {
			q.dedupe[job.DedupeKey] = job.ID
		}
		if n := jobNumber(job.ID); n > q.idCounter {
			q.idCounter = n
		}
	}
	q.mu.Unlock()

	for _, job := range toPersist {
		q.persistJob(job)
	}
}

// byCreation orders jobs by creation time, then by the number in their id,
// which breaks ties between jobs created in the same instant.
func byCreation(a, b *DownloadJob) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(jobNumber(a.ID), jobNumber(b.ID))
}

func jobNumber(jobID string) uint64 {
	digits, ok := strings.CutPrefix(jobID, "job-")
	if !ok {
		return 0
	}
	n, _ := strconv.ParseUint(digits, 10, 64)
	return n
}

func (q *Queue) persistJob(job *DownloadJob) {
	if q.store == nil || job == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func cloneJob(job *DownloadJob) *DownloadJob {
	if job == nil {
		return nil
	}
	tmp := *job
	return &tmp
}
