package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "dQw4w9WgXcQ"

// fakeExtractor writes the file named by the output template, or fails with
// the configured error for the given selectors.
type fakeExtractor struct {
	failFor  map[string]error
	ext      string
	writeAs  string
	title    string
	requests []Request
}

func (f *fakeExtractor) Download(_ context.Context, req Request, onEvent func(Event)) (*Result, error) {
	f.requests = append(f.requests, req)
	if err, ok := f.failFor[req.Format]; ok {
		return nil, err
	}

	onEvent(Event{Phase: PhaseDownloading, DownloadedBytes: 512, TotalBytes: 1024, Started: time.Now().Add(-time.Second), Title: f.title})
	onEvent(Event{Phase: PhaseFinished, DownloadedBytes: 1024, TotalBytes: 1024})
	onEvent(Event{Phase: PhasePostProcessing})

	ext := f.ext
	if ext == "" {
		ext = req.AudioFormat
	}
	path := strings.Replace(req.OutputTemplate, "%(ext)s", ext, 1)
	if f.writeAs != "" {
		path = filepath.Join(filepath.Dir(req.OutputTemplate), f.writeAs)
	}
	if err := os.WriteFile(path, []byte("ID3"), 0o644); err != nil {
		return nil, err
	}
	return &Result{Title: f.title}, nil
}

func collect() (*[]string, func(string)) {
	var statuses []string
	return &statuses, func(s string) { statuses = append(statuses, s) }
}

func TestAcquire_Success(t *testing.T) {
	dir := t.TempDir()
	ex := &fakeExtractor{title: "Never Gonna Give You Up"}
	a := NewAcquirer(ex, "mp3", "192K")

	statuses, onProgress := collect()
	path, title, err := a.Acquire(context.Background(), "https://youtu.be/"+testID, dir, testID, onProgress)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, testID+".mp3"), path)
	assert.Equal(t, "Never Gonna Give You Up", title)
	require.Len(t, ex.requests, 1)
	assert.Equal(t, "bestaudio", ex.requests[0].Format)
	assert.Equal(t, "192K", ex.requests[0].AudioQuality)
	assert.Equal(t, filepath.Join(dir, testID+".%(ext)s"), ex.requests[0].OutputTemplate)

	require.NotEmpty(t, *statuses)
	assert.True(t, strings.HasPrefix((*statuses)[0], "Downloading audio: 50.0% ("), (*statuses)[0])
	assert.Contains(t, *statuses, "Downloading audio: 100.0%")
	assert.Contains(t, *statuses, "Post-processing audio...")
	assert.Equal(t, "Audio ready", (*statuses)[len(*statuses)-1])
}

func TestAcquire_FallsBackToNextSelector(t *testing.T) {
	dir := t.TempDir()
	ex := &fakeExtractor{failFor: map[string]error{"bestaudio": errors.New("Requested format is not available")}}
	a := NewAcquirer(ex, "mp3", "192K")

	path, _, err := a.Acquire(context.Background(), "u", dir, testID, nil)
	require.NoError(t, err)
	assert.FileExists(t, path)
	require.Len(t, ex.requests, 2)
	assert.Equal(t, "bestaudio/best", ex.requests[1].Format)
}

func TestAcquire_RecoversMisnamedFile(t *testing.T) {
	dir := t.TempDir()
	ex := &fakeExtractor{writeAs: testID + ".f251.mp3"}
	a := NewAcquirer(ex, "mp3", "192K")

	path, _, err := a.Acquire(context.Background(), "u", dir, testID, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, testID+".f251.mp3"), path)
}

func TestAcquire_MissingFileIsFileNotFound(t *testing.T) {
	dir := t.TempDir()
	ex := &fakeExtractor{ext: "m4a"}
	a := NewAcquirer(ex, "mp3", "192K")

	_, _, err := a.Acquire(context.Background(), "u", dir, testID, nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindFileNotFound))
}

func TestAcquire_ClassifiesForbidden(t *testing.T) {
	dir := t.TempDir()
	cause := &ExtractError{Err: errors.New("exit status 1"), Stderr: "ERROR: unable to download video data: HTTP Error 403: Forbidden"}
	ex := &fakeExtractor{failFor: map[string]error{"bestaudio": cause, "bestaudio/best": cause}}
	a := NewAcquirer(ex, "mp3", "192K")

	statuses, onProgress := collect()
	_, _, err := a.Acquire(context.Background(), "u", dir, testID, onProgress)
	require.Error(t, err)

	assert.True(t, fault.IsKind(err, fault.KindExtraction))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, fault.UserMessage(err), "HTTP 403")
	assert.Len(t, *statuses, 2)
	assert.Contains(t, (*statuses)[0], "Access denied")

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestAcquire_ClassifiesSSL(t *testing.T) {
	cause := errors.New("[SSL: CERTIFICATE_VERIFY_FAILED] certificate verify failed")
	ex := &fakeExtractor{failFor: map[string]error{"bestaudio": cause}}
	a := NewAcquirer(ex, "mp3", "192K", WithSelectors("bestaudio"))

	statuses, onProgress := collect()
	_, _, err := a.Acquire(context.Background(), "u", t.TempDir(), testID, onProgress)
	require.Error(t, err)
	assert.Equal(t, []string{FailureSSL.Message()}, *statuses)
}

type noAudioProber struct{}

func (noAudioProber) Probe(context.Context, string) (*media.AudioInfo, error) {
	return &media.AudioInfo{}, nil
}

func TestAcquire_VerificationFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	a := NewAcquirer(&fakeExtractor{}, "mp3", "192K", WithProber(noAudioProber{}))

	_, _, err := a.Acquire(context.Background(), "u", dir, testID, nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindExtraction))
	assert.NoFileExists(t, filepath.Join(dir, testID+".mp3"))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, FailureSSL, Classify("urlopen error [SSL: CERTIFICATE_VERIFY_FAILED]"))
	assert.Equal(t, FailureForbidden, Classify("HTTP Error 403: Forbidden"))
	assert.Equal(t, FailureOther, Classify("Video unavailable"))
	assert.Empty(t, FailureOther.Message())
}

func TestExtractErrorMessage(t *testing.T) {
	err := &ExtractError{Err: errors.New("exit status 1"), Stderr: "WARNING: x\nERROR: Video unavailable\n"}
	assert.Equal(t, "exit status 1: ERROR: Video unavailable", err.Error())
}
