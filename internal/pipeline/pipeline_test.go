package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/progress"
	"github.com/MimeLyc/subtube/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "dQw4w9WgXcQ"

type fakeAudio struct {
	title string
	err   error
	calls int
}

func (f *fakeAudio) Acquire(_ context.Context, _, outputDir, videoID string, onProgress func(string)) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	path := filepath.Join(outputDir, videoID+".mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", "", err
	}
	onProgress(progress.AudioReady())
	return path, f.title, nil
}

type fakeCaptions struct {
	err       error
	gotTitle  string
	leftovers []string
}

func (f *fakeCaptions) Acquire(_ context.Context, videoID, outputDir, title string, onProgress func(string)) (string, error) {
	f.gotTitle = title
	for _, name := range f.leftovers {
		if err := os.WriteFile(filepath.Join(outputDir, name), []byte("x"), 0o644); err != nil {
			return "", err
		}
	}
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(outputDir, "Title_"+videoID+".json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		return "", err
	}
	onProgress(progress.CaptionsSaved())
	return path, nil
}

type fakeThumb struct{ ok bool }

func (f fakeThumb) Acquire(_ context.Context, videoID, outputDir string, _ func(string)) (string, bool) {
	if !f.ok {
		return "", false
	}
	return filepath.Join(outputDir, videoID+".jpg"), true
}

type fakeTitles struct{ title string }

func (f fakeTitles) Title(context.Context, string) (string, error) {
	if f.title == "" {
		return "", errors.New("unavailable")
	}
	return f.title, nil
}

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newPipeline(a AudioAcquirer, c CaptionAcquirer, th ThumbnailAcquirer, opts ...Option) *Pipeline {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(a, c, th, opts...)
}

func TestRun_Success(t *testing.T) {
	dir := t.TempDir()
	audio := &fakeAudio{title: "Never Gonna Give You Up"}
	p := newPipeline(audio, &fakeCaptions{}, fakeThumb{ok: true})

	var statuses []string
	rec, err := p.Run(context.Background(), "https://youtu.be/"+testID, dir, func(s string) {
		statuses = append(statuses, s)
	})
	require.NoError(t, err)
	assert.Equal(t, &video.Record{
		VideoID:       testID,
		Title:         "Never Gonna Give You Up",
		AudioPath:     filepath.Join(dir, testID+".mp3"),
		SubtitlePath:  filepath.Join(dir, "Title_"+testID+".json"),
		ThumbnailPath: filepath.Join(dir, testID+".jpg"),
		DownloadDate:  fixedNow,
	}, rec)
	assert.Equal(t, "Preparing download...", statuses[0])
	assert.Equal(t, "Done", statuses[len(statuses)-1])
}

func TestRun_TitleFallsBackToPrefetch(t *testing.T) {
	captions := &fakeCaptions{}
	p := newPipeline(&fakeAudio{}, captions, fakeThumb{ok: true}, WithTitleSource(fakeTitles{title: "From oEmbed"}))

	var first string
	rec, err := p.Run(context.Background(), "https://www.youtube.com/watch?v="+testID, t.TempDir(), func(s string) {
		if first == "" {
			first = s
		}
	})
	require.NoError(t, err)
	assert.Equal(t, "From oEmbed", rec.Title)
	assert.Equal(t, "From oEmbed", captions.gotTitle)
	assert.Equal(t, "Preparing download: From oEmbed", first)
}

func TestRun_InvalidURLFailsBeforeAnyIO(t *testing.T) {
	audio := &fakeAudio{}
	p := newPipeline(audio, &fakeCaptions{}, fakeThumb{})

	rec, err := p.Run(context.Background(), "not a url", t.TempDir(), nil)
	assert.Nil(t, rec)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindValidation))
	assert.Zero(t, audio.calls)
}

func TestRun_AudioFailureIsFatal(t *testing.T) {
	captions := &fakeCaptions{}
	p := newPipeline(&fakeAudio{err: fault.New(fault.KindExtraction, "yt-dlp failed")}, captions, fakeThumb{ok: true})

	_, err := p.Run(context.Background(), "https://youtu.be/"+testID, t.TempDir(), nil)
	assert.True(t, fault.IsKind(err, fault.KindExtraction))
	assert.Empty(t, captions.gotTitle)
}

func TestRun_NoEnglishCaptionsCleansUp(t *testing.T) {
	dir := t.TempDir()
	unrelated := filepath.Join(dir, "aaaaaaaaaaa.mp3")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))

	captions := &fakeCaptions{
		err:       fault.New(fault.KindNoEnglishCaptions, "no usable English caption track"),
		leftovers: []string{testID + ".webm.part", "Old_Title_" + testID + ".json"},
	}
	p := newPipeline(&fakeAudio{title: "t"}, captions, fakeThumb{ok: true})

	rec, err := p.Run(context.Background(), "https://youtu.be/"+testID, dir, nil)
	assert.Nil(t, rec)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindNoEnglishCaptions))
	assert.Equal(t, "Video has no English captions and was skipped", fault.UserMessage(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"aaaaaaaaaaa.mp3"}, names)
}

func TestRun_OtherCaptionErrorCleansUpAndPropagates(t *testing.T) {
	dir := t.TempDir()
	ioErr := fault.New(fault.KindIO, "write caption file")
	p := newPipeline(&fakeAudio{}, &fakeCaptions{err: ioErr}, fakeThumb{ok: true})

	_, err := p.Run(context.Background(), "https://youtu.be/"+testID, dir, nil)
	assert.ErrorIs(t, err, ioErr)
	assert.NoFileExists(t, filepath.Join(dir, testID+".mp3"))
}

func TestRun_ThumbnailFailureStillYieldsRecord(t *testing.T) {
	p := newPipeline(&fakeAudio{}, &fakeCaptions{}, fakeThumb{ok: false})

	rec, err := p.Run(context.Background(), "https://youtu.be/"+testID, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, rec.ThumbnailPath)
	assert.NotEmpty(t, rec.SubtitlePath)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	p := newPipeline(&fakeAudio{title: "t"}, &fakeCaptions{}, fakeThumb{ok: true})

	first, err := p.Run(context.Background(), "https://youtu.be/"+testID, dir, nil)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), "https://www.youtube.com/shorts/"+testID, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ACQUIRE_CAPTIONS", StateAcquireCaptions.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

type scriptedRunner struct {
	fail  map[string]bool
	calls []string
}

func (s *scriptedRunner) Run(ctx context.Context, url, _ string, onProgress func(string)) (*video.Record, error) {
	s.calls = append(s.calls, url)
	onProgress("Preparing download...")
	if s.fail[url] {
		return nil, fault.New(fault.KindExtraction, "boom")
	}
	return &video.Record{VideoID: strings.TrimPrefix(url, "u"), AudioPath: "a"}, nil
}

func TestRunBatch_ContinuesAfterFailure(t *testing.T) {
	runner := &scriptedRunner{fail: map[string]bool{"u2": true}}
	var records []*video.Record
	var progressed []string

	n, failures := RunBatch(context.Background(), runner, []string{"u1", "u2", "u3"}, "out",
		func(url, _ string) { progressed = append(progressed, url) },
		func(rec *video.Record) error {
			records = append(records, rec)
			return nil
		})

	assert.Equal(t, 2, n)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].VideoID)
	assert.Equal(t, "3", records[1].VideoID)
	require.Len(t, failures, 1)
	assert.Equal(t, "u2", failures[0].URL)
	assert.Equal(t, []string{"u1", "u2", "u3"}, progressed)
}

func TestRunBatch_StopsBetweenURLsWhenCancelled(t *testing.T) {
	runner := &scriptedRunner{}
	ctx, cancel := context.WithCancel(context.Background())

	n, failures := RunBatch(ctx, runner, []string{"u1", "u2", "u3"}, "out", nil, func(*video.Record) error {
		cancel()
		return nil
	})

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"u1"}, runner.calls)
	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures[0].Err, context.Canceled)
}

func TestRunBatch_RecordSinkErrorCountsAsFailure(t *testing.T) {
	n, failures := RunBatch(context.Background(), &scriptedRunner{}, []string{"u1"}, "out", nil,
		func(*video.Record) error { return errors.New("db down") })
	assert.Zero(t, n)
	require.Len(t, failures, 1)
}
