// Package audio downloads a video's audio track and transcodes it to a fixed
// codec and bitrate at a path derived from the video id.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/media"
	"github.com/MimeLyc/subtube/internal/progress"
	"github.com/MimeLyc/subtube/pkg/file"
	"github.com/MimeLyc/subtube/pkg/log"
	"github.com/MimeLyc/subtube/pkg/strategy"
	"github.com/dustin/go-humanize"
)

// DefaultSelectors are tried in order: audio-only streams first, then any
// stream the audio can be extracted from.
var DefaultSelectors = []string{"bestaudio", "bestaudio/best"}

type Acquirer struct {
	extractor Extractor
	prober    media.Prober
	format    string
	quality   string
	selectors []string
}

type Option func(*Acquirer)

func WithProber(p media.Prober) Option {
	return func(a *Acquirer) { a.prober = p }
}

func WithSelectors(selectors ...string) Option {
	return func(a *Acquirer) { a.selectors = selectors }
}

func NewAcquirer(extractor Extractor, format, quality string, opts ...Option) *Acquirer {
	if format == "" {
		format = "mp3"
	}
	if quality == "" {
		quality = "192K"
	}
	a := &Acquirer{
		extractor: extractor,
		format:    format,
		quality:   quality,
		selectors: DefaultSelectors,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ExpectedPath is where the audio for videoID lands in outputDir.
func (a *Acquirer) ExpectedPath(outputDir, videoID string) string {
	return filepath.Join(outputDir, videoID+"."+a.format)
}

// Acquire downloads the audio of url into outputDir and returns the file path
// and the title reported by the extraction tool (empty when unknown).
// Download failures are never swallowed.
func (a *Acquirer) Acquire(ctx context.Context, url, outputDir, videoID string, onProgress func(string)) (string, string, error) {
	report := func(s string) {
		if onProgress != nil {
			onProgress(s)
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", "", fault.Wrap(err, fault.KindIO, "create output dir").With("dir", outputDir)
	}

	var (
		mu    sync.Mutex
		title string
	)
	onEvent := func(ev Event) {
		if ev.Title != "" {
			mu.Lock()
			title = ev.Title
			mu.Unlock()
		}
		if msg := formatEvent(ev, time.Now()); msg != "" {
			report(msg)
		}
	}

	chain := make(strategy.Chain[*Result], 0, len(a.selectors))
	for _, selector := range a.selectors {
		req := Request{
			URL:            url,
			OutputTemplate: filepath.Join(outputDir, videoID+".%(ext)s"),
			Format:         selector,
			AudioFormat:    a.format,
			AudioQuality:   a.quality,
		}
		chain = append(chain, strategy.Strategy[*Result]{
			Name: selector,
			Run: func(ctx context.Context) (*Result, error) {
				return a.extractor.Download(ctx, req, onEvent)
			},
		})
	}

	var lastFailure Failure
	res, outcome := chain.Run(ctx, func(r strategy.Result[*Result]) {
		if r.OK() {
			return
		}
		log.Warn("Audio download of %s with format %q failed: %v", videoID, r.Name, r.Err)
		lastFailure = classifyErr(r.Err)
		if msg := lastFailure.Message(); msg != "" {
			report(msg)
		}
	})
	if err := outcome.Err(); err != nil {
		fe := fault.Wrap(outcome.LastErr(), fault.KindExtraction, "audio download failed").
			With("video_id", videoID).
			With("attempts", len(outcome.Attempts))
		if msg := lastFailure.Message(); msg != "" {
			fe.WithUserMessage(msg)
		}
		return "", "", fe
	}

	if res != nil && res.Title != "" {
		mu.Lock()
		title = res.Title
		mu.Unlock()
	}

	path, err := a.locate(outputDir, videoID)
	if err != nil {
		return "", "", err
	}

	if err := media.Verify(ctx, a.prober, path); err != nil {
		_ = file.RemoveIfExists(path)
		return "", "", fault.Wrap(err, fault.KindExtraction, "downloaded audio is unusable").With("path", path)
	}

	report(progress.AudioPostProcessed())
	report(progress.AudioReady())
	mu.Lock()
	defer mu.Unlock()
	return path, title, nil
}

// locate returns the expected output path, falling back to a scan for
// <videoID>*.<format> in case the tool picked a different name.
func (a *Acquirer) locate(outputDir, videoID string) (string, error) {
	expected := a.ExpectedPath(outputDir, videoID)
	if file.Exists(expected) {
		return expected, nil
	}

	matches, err := file.FindByPrefix(outputDir, videoID, "."+a.format)
	if err != nil {
		return "", fault.Wrap(err, fault.KindIO, "scan output dir").With("dir", outputDir)
	}
	if len(matches) > 0 {
		log.Info("Audio for %s found at %s instead of %s", videoID, matches[0], expected)
		return matches[0], nil
	}

	return "", fault.New(fault.KindFileNotFound, "audio file missing after download").
		With("video_id", videoID).
		With("expected", expected)
}

func formatEvent(ev Event, now time.Time) string {
	switch ev.Phase {
	case PhasePostProcessing:
		return progress.AudioPostProcessing()
	case PhaseFinished:
		return progress.AudioDownloading(100, "")
	}

	var pct float64
	if ev.TotalBytes > 0 {
		pct = float64(ev.DownloadedBytes) / float64(ev.TotalBytes) * 100
	}

	rate := ""
	if !ev.Started.IsZero() {
		if elapsed := now.Sub(ev.Started).Seconds(); elapsed > 0 && ev.DownloadedBytes > 0 {
			rate = humanize.Bytes(uint64(float64(ev.DownloadedBytes)/elapsed)) + "/s"
		}
	}
	return progress.AudioDownloading(pct, rate)
}

func classifyErr(err error) Failure {
	text := err.Error()
	var ee *ExtractError
	if errors.As(err, &ee) {
		text = fmt.Sprintf("%s\n%s", text, ee.Stderr)
	}
	return Classify(text)
}
