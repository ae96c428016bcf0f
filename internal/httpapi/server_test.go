package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MimeLyc/subtube/internal/config"
	"github.com/MimeLyc/subtube/internal/jobs"
	"github.com/MimeLyc/subtube/internal/library"
	"github.com/MimeLyc/subtube/internal/persistence"
	"github.com/MimeLyc/subtube/internal/subtitle"
	"github.com/MimeLyc/subtube/internal/video"
	"github.com/MimeLyc/subtube/pkg/icron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettingsStore struct {
	current   config.RuntimeSettings
	updateErr error
}

func (f *fakeSettingsStore) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return f.current, nil
}

func (f *fakeSettingsStore) UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error) {
	if f.updateErr != nil {
		return config.RuntimeSettings{}, f.updateErr
	}
	f.current = next
	return f.current, nil
}

type fakeSubmitter struct {
	queue  *jobs.Queue
	urls   []string
	source string
}

func (f *fakeSubmitter) Submit(_ context.Context, urls []string, source string) ([]*jobs.DownloadJob, error) {
	f.urls = urls
	f.source = source
	ret := make([]*jobs.DownloadJob, 0, len(urls))
	for _, u := range urls {
		job, _ := f.queue.Enqueue(jobs.EnqueueRequest{Source: source, DedupeKey: u, URL: u})
		ret = append(ret, job)
	}
	return ret, nil
}

type fixedSchedule struct{}

func (fixedSchedule) TriggerInfo(now time.Time) (*icron.TriggerInfo, error) {
	return icron.GetTriggerInfo("0 * * * *", now, 3)
}

type fixture struct {
	dir   string
	store *persistence.SQLiteStore
	queue *jobs.Queue
	sub   *fakeSubmitter
	srv   *Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := persistence.NewSQLiteStore(filepath.Join(dir, "subtube.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	queue := jobs.NewQueue(1, nil)
	sub := &fakeSubmitter{queue: queue}
	return &fixture{
		dir:   dir,
		store: store,
		queue: queue,
		sub:   sub,
		srv:   NewServer(library.NewManager(store), queue, sub, opts...),
	}
}

func (f *fixture) seed(t *testing.T, id string) *video.Record {
	t.Helper()
	rec := &video.Record{
		VideoID:       id,
		Title:         "Title " + id,
		AudioPath:     filepath.Join(f.dir, id+".mp3"),
		SubtitlePath:  filepath.Join(f.dir, "Title_"+id+".json"),
		ThumbnailPath: filepath.Join(f.dir, id+".jpg"),
		DownloadDate:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, os.WriteFile(rec.AudioPath, []byte("mp3-bytes"), 0o644))
	require.NoError(t, os.WriteFile(rec.ThumbnailPath, []byte("jpg-bytes"), 0o644))
	require.NoError(t, subtitle.NewWriter().Write(rec.SubtitlePath, &subtitle.File{Lines: []subtitle.Line{
		{Text: "line one", Start: 1, Duration: 1, TranslatedText: "dòng một"},
		{Text: "line two", Start: 3, Duration: 1, TranslatedText: "dòng hai"},
		{Text: "line three", Start: 5, Duration: 1},
	}}))
	require.NoError(t, f.store.Save(context.Background(), rec))
	return rec
}

func (f *fixture) do(method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_SubmitJobs(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/jobs", []byte(`{"urls":[" https://youtu.be/dQw4w9WgXcQ ",""]}`))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var ret struct {
		Jobs []*jobs.DownloadJob `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret))
	require.Len(t, ret.Jobs, 1)
	assert.Equal(t, []string{"https://youtu.be/dQw4w9WgXcQ"}, f.sub.urls)
	assert.Equal(t, "manual", f.sub.source)

	rec = f.do(http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []*jobs.DownloadJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, jobs.StatusPending, listed[0].Status)
}

func TestServer_SubmitJobs_RequiresURLs(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/jobs", []byte(`{"urls":[]}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/jobs", []byte(`not json`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ClearFinishedJobs(t *testing.T) {
	f := newFixture(t)
	f.queue.Start(func(context.Context, *jobs.DownloadJob, func(string)) (jobs.Result, error) {
		return jobs.Result{VideoID: "dQw4w9WgXcQ"}, nil
	})
	t.Cleanup(f.queue.Stop)

	job, _ := f.queue.Enqueue(jobs.EnqueueRequest{Source: "manual", DedupeKey: "a", URL: "a"})
	require.Eventually(t, func() bool {
		got, ok := f.queue.Get(job.ID)
		return ok && got.Status == jobs.StatusSuccess
	}, time.Second, 10*time.Millisecond)

	rec := f.do(http.MethodDelete, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cleared":1}`, rec.Body.String())
	assert.Empty(t, f.queue.List())
}

func TestServer_JobDetail_IncludesVideoAndPreview(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "dQw4w9WgXcQ")
	f.queue.Start(func(context.Context, *jobs.DownloadJob, func(string)) (jobs.Result, error) {
		return jobs.Result{VideoID: "dQw4w9WgXcQ", Title: "Title dQw4w9WgXcQ"}, nil
	})
	t.Cleanup(f.queue.Stop)

	job, _ := f.queue.Enqueue(jobs.EnqueueRequest{Source: "manual", DedupeKey: "dQw4w9WgXcQ", URL: "https://youtu.be/dQw4w9WgXcQ"})
	require.Eventually(t, func() bool {
		got, ok := f.queue.Get(job.ID)
		return ok && got.Status == jobs.StatusSuccess
	}, time.Second, 10*time.Millisecond)

	rec := f.do(http.MethodGet, "/api/jobs/"+job.ID+"?offset=1&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Job   jobs.DownloadJob `json:"job"`
		Video struct {
			VideoID string             `json:"video_id"`
			Files   library.FileStatus `json:"files"`
		} `json:"video"`
		Preview []struct {
			Index          int    `json:"index"`
			Text           string `json:"text"`
			TranslatedText string `json:"translated_text"`
		} `json:"preview"`
		PreviewTotal int `json:"preview_total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, job.ID, resp.Job.ID)
	assert.Equal(t, 100.0, resp.Job.Progress)
	assert.Equal(t, "dQw4w9WgXcQ", resp.Video.VideoID)
	assert.True(t, resp.Video.Files.HasCaptions)
	assert.Equal(t, 3, resp.PreviewTotal)
	require.Len(t, resp.Preview, 1)
	assert.Equal(t, 1, resp.Preview[0].Index)
	assert.Equal(t, "dòng hai", resp.Preview[0].TranslatedText)
}

func TestServer_JobDetail_NotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/jobs/job-404", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ListAndGetVideos(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "dQw4w9WgXcQ")

	rec := f.do(http.MethodGet, "/api/videos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []struct {
		VideoID string             `json:"video_id"`
		Title   string             `json:"title"`
		Files   library.FileStatus `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Title dQw4w9WgXcQ", entries[0].Title)
	assert.Equal(t, library.FileStatus{HasAudio: true, HasCaptions: true, HasThumbnail: true}, entries[0].Files)

	rec = f.do(http.MethodGet, "/api/videos/dQw4w9WgXcQ", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/videos/aaaaaaaaaaa", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"video not found"}`, rec.Body.String())
}

func TestServer_DeleteVideoRemovesFiles(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, "dQw4w9WgXcQ")

	resp := f.do(http.MethodDelete, "/api/videos/dQw4w9WgXcQ", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NoFileExists(t, rec.AudioPath)
	assert.NoFileExists(t, rec.SubtitlePath)
	assert.NoFileExists(t, rec.ThumbnailPath)

	_, err := f.store.Get(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, video.ErrNotFound)
}

func TestServer_PurgeVideos(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "dQw4w9WgXcQ")
	f.seed(t, "aaaaaaaaaaa")

	rec := f.do(http.MethodDelete, "/api/videos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":2}`, rec.Body.String())

	all, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestServer_Captions(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "dQw4w9WgXcQ")

	rec := f.do(http.MethodGet, "/api/videos/dQw4w9WgXcQ/captions?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp captionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Lines, 2)
	assert.Equal(t, "line one", resp.Lines[0].Text)
	assert.Equal(t, "dòng một", resp.Lines[0].TranslatedText)
}

func TestServer_CaptionAt(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "dQw4w9WgXcQ")

	rec := f.do(http.MethodGet, "/api/videos/dQw4w9WgXcQ/captions?at=3.5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hit captionAtResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hit))
	require.True(t, hit.Found)
	assert.Equal(t, 1, hit.Line.Index)
	assert.Equal(t, "line two", hit.Line.Text)

	rec = f.do(http.MethodGet, "/api/videos/dQw4w9WgXcQ/captions?at=2.5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var miss captionAtResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &miss))
	assert.False(t, miss.Found)
	assert.Nil(t, miss.Line)

	rec = f.do(http.MethodGet, "/api/videos/dQw4w9WgXcQ/captions?at=soon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CaptionsMissingFile(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, "dQw4w9WgXcQ")
	require.NoError(t, os.Remove(rec.SubtitlePath))

	resp := f.do(http.MethodGet, "/api/videos/dQw4w9WgXcQ/captions", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestServer_UpdateCaptionLines(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, "dQw4w9WgXcQ")

	body := []byte(`{"lines":[{"index":2,"translated_text":"dòng ba"}]}`)
	resp := f.do(http.MethodPut, "/api/videos/dQw4w9WgXcQ/captions", body)
	require.Equal(t, http.StatusOK, resp.Code)

	data, err := os.ReadFile(rec.SubtitlePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dòng ba")

	resp = f.do(http.MethodPut, "/api/videos/dQw4w9WgXcQ/captions", []byte(`{"lines":[{"index":9,"translated_text":"x"}]}`))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = f.do(http.MethodPut, "/api/videos/dQw4w9WgXcQ/captions", []byte(`{"lines":[]}`))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestServer_ServesAudioAndThumbnail(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, "dQw4w9WgXcQ")

	resp := f.do(http.MethodGet, "/api/videos/dQw4w9WgXcQ/audio", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "mp3-bytes", resp.Body.String())

	resp = f.do(http.MethodGet, "/api/videos/dQw4w9WgXcQ/thumbnail", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "jpg-bytes", resp.Body.String())

	require.NoError(t, os.Remove(rec.ThumbnailPath))
	resp = f.do(http.MethodGet, "/api/videos/dQw4w9WgXcQ/thumbnail", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = f.do(http.MethodGet, "/api/videos/dQw4w9WgXcQ/lyrics", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func validSettings() config.RuntimeSettings {
	return config.RuntimeSettings{
		TargetLanguage:   "vi",
		TranslateBackend: config.BackendGoogle,
		CronExpr:         "0 */6 * * *",
		OutputDir:        "/data/downloads",
	}
}

func TestServer_Settings_GetAndPut(t *testing.T) {
	store := &fakeSettingsStore{current: validSettings()}
	var applied config.RuntimeSettings
	f := newFixture(t,
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(_ context.Context, next config.RuntimeSettings) error {
			applied = next
			return nil
		}),
	)

	rec := f.do(http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	next := validSettings()
	next.TargetLanguage = "ja"
	next.AcceptManualCaptions = true
	body, err := json.Marshal(next)
	require.NoError(t, err)

	rec = f.do(http.MethodPut, "/api/settings", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, next, store.current)
	assert.Equal(t, next, applied)
}

func TestServer_Settings_RejectsInvalid(t *testing.T) {
	store := &fakeSettingsStore{current: validSettings()}
	f := newFixture(t, WithRuntimeSettingsStore(store))

	bad := validSettings()
	bad.CronExpr = "every day"
	body, err := json.Marshal(bad)
	require.NoError(t, err)

	rec := f.do(http.MethodPut, "/api/settings", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, validSettings(), store.current)
}

func TestServer_Settings_ApplyFailure(t *testing.T) {
	store := &fakeSettingsStore{current: validSettings()}
	f := newFixture(t,
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(context.Context, config.RuntimeSettings) error {
			return errors.New("boom")
		}),
	)
	body, err := json.Marshal(validSettings())
	require.NoError(t, err)

	rec := f.do(http.MethodPut, "/api/settings", body)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_Settings_NotConfigured(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_Schedule(t *testing.T) {
	f := newFixture(t, WithSchedule(fixedSchedule{}))

	rec := f.do(http.MethodGet, "/api/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info icron.TriggerInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "0 * * * *", info.Expression)
	assert.Len(t, info.Upcoming, 3)
	assert.Equal(t, 0, info.Next.Minute())
}
