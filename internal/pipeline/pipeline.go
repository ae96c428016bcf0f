// Package pipeline drives one video from a raw URL to a record: resolve the
// id, acquire audio, captions and thumbnail, then assemble the record. A
// failure after the audio step removes what the run wrote.
package pipeline

import (
	"context"
	"time"

	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/progress"
	"github.com/MimeLyc/subtube/internal/video"
	"github.com/MimeLyc/subtube/internal/videoid"
	"github.com/MimeLyc/subtube/pkg/file"
	"github.com/MimeLyc/subtube/pkg/log"
	"github.com/google/uuid"
)

type AudioAcquirer interface {
	Acquire(ctx context.Context, url, outputDir, videoID string, onProgress func(string)) (path, title string, err error)
}

type CaptionAcquirer interface {
	Acquire(ctx context.Context, videoID, outputDir, title string, onProgress func(string)) (string, error)
}

type ThumbnailAcquirer interface {
	Acquire(ctx context.Context, videoID, outputDir string, onProgress func(string)) (string, bool)
}

// TitleSource looks up a title before the download starts.
type TitleSource interface {
	Title(ctx context.Context, videoID string) (string, error)
}

type State int

const (
	StateStart State = iota
	StateResolveID
	StateAcquireAudio
	StateAcquireCaptions
	StateAcquireThumbnail
	StateAssemble
	StateDone
)

var stateNames = [...]string{
	StateStart:            "START",
	StateResolveID:        "RESOLVE_ID",
	StateAcquireAudio:     "ACQUIRE_AUDIO",
	StateAcquireCaptions:  "ACQUIRE_CAPTIONS",
	StateAcquireThumbnail: "ACQUIRE_THUMBNAIL",
	StateAssemble:         "ASSEMBLE",
	StateDone:             "DONE",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

const noCaptionsMessage = "Video has no English captions and was skipped"

type Pipeline struct {
	audio     AudioAcquirer
	captions  CaptionAcquirer
	thumbnail ThumbnailAcquirer
	titles    TitleSource
	now       func() time.Time
}

type Option func(*Pipeline)

func WithTitleSource(src TitleSource) Option {
	return func(p *Pipeline) { p.titles = src }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(audio AudioAcquirer, captions CaptionAcquirer, thumbnail ThumbnailAcquirer, opts ...Option) *Pipeline {
	p := &Pipeline{
		audio:     audio,
		captions:  captions,
		thumbnail: thumbnail,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run carries the per-invocation state for logging.
type run struct {
	id      string
	url     string
	videoID string
	state   State
}

func (r *run) enter(s State) {
	log.Debug("run %s: %s -> %s (video %s)", r.id, r.state, s, r.videoID)
	r.state = s
}

// Run processes url into outputDir. The returned record is not persisted.
// onProgress may be nil and is called from the calling goroutine only.
func (p *Pipeline) Run(ctx context.Context, url, outputDir string, onProgress func(string)) (*video.Record, error) {
	report := func(s string) {
		if onProgress != nil {
			onProgress(s)
		}
	}
	r := &run{id: uuid.NewString(), url: url, state: StateStart}

	r.enter(StateResolveID)
	videoID, ok := videoid.Resolve(url)
	if !ok {
		return nil, fault.New(fault.KindValidation, "no video id in url").With("url", url)
	}
	r.videoID = videoID
	log.Info("run %s: processing %s", r.id, videoID)

	prefetched := p.prefetchTitle(ctx, videoID)
	report(progress.Preparing(prefetched))

	r.enter(StateAcquireAudio)
	audioPath, title, err := p.audio.Acquire(ctx, url, outputDir, videoID, report)
	if err != nil {
		log.Error("run %s: audio for %s failed: %v", r.id, videoID, err)
		return nil, err
	}
	if title == "" {
		title = prefetched
	}

	r.enter(StateAcquireCaptions)
	subtitlePath, err := p.captions.Acquire(ctx, videoID, outputDir, title, report)
	if err != nil {
		p.cleanup(r, outputDir, audioPath)
		if fault.IsKind(err, fault.KindNoEnglishCaptions) {
			log.Warn("run %s: %s has no English captions: %v", r.id, videoID, err)
			return nil, fault.Wrap(err, fault.KindNoEnglishCaptions, "video skipped").
				With("video_id", videoID).
				WithUserMessage(noCaptionsMessage)
		}
		log.Error("run %s: captions for %s failed: %v", r.id, videoID, err)
		return nil, err
	}

	r.enter(StateAcquireThumbnail)
	thumbPath, ok := p.thumbnail.Acquire(ctx, videoID, outputDir, report)
	if !ok {
		thumbPath = ""
	}

	r.enter(StateAssemble)
	rec := &video.Record{
		VideoID:       videoID,
		Title:         title,
		AudioPath:     audioPath,
		SubtitlePath:  subtitlePath,
		ThumbnailPath: thumbPath,
		DownloadDate:  p.now(),
	}

	r.enter(StateDone)
	report(progress.Done())
	log.Info("run %s: %s done (%q)", r.id, videoID, title)
	return rec, nil
}

func (p *Pipeline) prefetchTitle(ctx context.Context, videoID string) string {
	if p.titles == nil {
		return ""
	}
	title, err := p.titles.Title(ctx, videoID)
	if err != nil {
		log.Debug("Title prefetch for %s failed: %v", videoID, err)
		return ""
	}
	return title
}

// cleanup removes the audio file and anything else this video left in
// outputDir: <id>.* partials and caption files named *_<id>.json.
func (p *Pipeline) cleanup(r *run, outputDir, audioPath string) {
	if err := file.RemoveIfExists(audioPath); err != nil {
		log.Warn("run %s: remove %s: %v", r.id, audioPath, err)
	}
	removed, err := file.RemoveMatching(outputDir, r.videoID+".", "")
	if err != nil {
		log.Warn("run %s: clean leftovers of %s: %v", r.id, r.videoID, err)
	}
	captions, err := file.RemoveMatching(outputDir, "", "_"+r.videoID+".json")
	if err != nil {
		log.Warn("run %s: clean captions of %s: %v", r.id, r.videoID, err)
	}
	log.Info("run %s: removed audio and %d leftover files of %s", r.id, len(removed)+len(captions), r.videoID)
}
