// Package progress turns the status lines emitted during a run into a single
// overall percentage. The mapping is a pure fold over (stage, percent) events.
package progress

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

type Stage int

const (
	StagePrepare Stage = iota
	StageAudio
	StageCaptions
	StageThumbnail
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StagePrepare:
		return "prepare"
	case StageAudio:
		return "audio"
	case StageCaptions:
		return "captions"
	case StageThumbnail:
		return "thumbnail"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// weights are percentages of the overall run; they sum to 100.
var weights = [...]float64{
	StagePrepare:   5,
	StageAudio:     60,
	StageCaptions:  25,
	StageThumbnail: 10,
}

func Weight(s Stage) float64 {
	if s < 0 || int(s) >= len(weights) {
		return 0
	}
	return weights[s]
}

// Overall maps a stage-local percentage onto the whole run.
func Overall(stage Stage, pct float64) float64 {
	if stage >= StageDone {
		return 100
	}
	if stage < 0 {
		return 0
	}
	pct = min(max(pct, 0), 100)

	var base float64
	for s := StagePrepare; s < stage; s++ {
		base += weights[s]
	}
	return base + weights[stage]*pct/100
}

type Event struct {
	Stage   Stage
	Percent float64
}

// Fold advances prev by ev. Overall progress never moves backwards, so a
// retried download restarting at 0% does not rewind the bar.
func Fold(prev float64, ev Event) float64 {
	return max(prev, Overall(ev.Stage, ev.Percent))
}

const (
	prefixPreparing   = "Preparing download"
	prefixAudio       = "Downloading audio"
	prefixPostProcess = "Post-processing"
	prefixAudioReady  = "Audio ready"
	prefixCaptions    = "Fetching English captions"
	prefixTranslating = "Translating captions"
	prefixCaptionDone = "Captions saved"
	prefixThumbnail   = "Downloading thumbnail"
	prefixThumbDone   = "Thumbnail"
	prefixDone        = "Done"
)

func Preparing(title string) string {
	if title == "" {
		return prefixPreparing + "..."
	}
	return fmt.Sprintf("%s: %s", prefixPreparing, title)
}

func AudioDownloading(pct float64, rate string) string {
	if rate == "" {
		return fmt.Sprintf("%s: %.1f%%", prefixAudio, pct)
	}
	return fmt.Sprintf("%s: %.1f%% (%s)", prefixAudio, pct, rate)
}

func AudioPostProcessing() string { return prefixPostProcess + " audio..." }

func AudioPostProcessed() string { return prefixPostProcess + " finished" }

func AudioReady() string { return prefixAudioReady }

func CaptionsFetching() string { return prefixCaptions + "..." }

func Translating(pct float64) string {
	return fmt.Sprintf("%s: %.1f%%", prefixTranslating, pct)
}

func CaptionsSaved() string { return prefixCaptionDone }

func ThumbnailDownloading(pct float64) string {
	return fmt.Sprintf("%s: %.1f%%", prefixThumbnail, pct)
}

func ThumbnailSaved() string { return prefixThumbDone + " saved" }

func ThumbnailSkipped() string { return prefixThumbDone + " unavailable" }

func Done() string { return prefixDone }

var percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// Parse classifies a status line. Lines that carry no progress information,
// such as warnings, yield false.
func Parse(status string) (Event, bool) {
	pct, hasPct := parsePercent(status)

	switch {
	case strings.HasPrefix(status, prefixPreparing):
		return Event{Stage: StagePrepare, Percent: 100}, true
	case strings.HasPrefix(status, prefixAudio):
		return Event{Stage: StageAudio, Percent: pctOr(pct, hasPct, 0)}, true
	case status == AudioPostProcessing():
		return Event{Stage: StageAudio, Percent: 95}, true
	case strings.HasPrefix(status, prefixPostProcess), strings.HasPrefix(status, prefixAudioReady):
		return Event{Stage: StageAudio, Percent: 100}, true
	case strings.HasPrefix(status, prefixCaptions):
		return Event{Stage: StageCaptions, Percent: 0}, true
	case strings.HasPrefix(status, prefixTranslating):
		return Event{Stage: StageCaptions, Percent: pctOr(pct, hasPct, 0)}, true
	case strings.HasPrefix(status, prefixCaptionDone):
		return Event{Stage: StageCaptions, Percent: 100}, true
	case strings.HasPrefix(status, prefixThumbnail):
		return Event{Stage: StageThumbnail, Percent: pctOr(pct, hasPct, 0)}, true
	case strings.HasPrefix(status, prefixThumbDone):
		return Event{Stage: StageThumbnail, Percent: 100}, true
	case status == prefixDone:
		return Event{Stage: StageDone, Percent: 100}, true
	}
	return Event{}, false
}

func parsePercent(s string) (float64, bool) {
	m := percentRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func pctOr(v float64, ok bool, fallback float64) float64 {
	if ok {
		return v
	}
	return fallback
}

// Tracker folds status lines as they arrive. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	overall float64
	status  string
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Update records status and returns the new overall percentage.
func (t *Tracker) Update(status string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = status
	if ev, ok := Parse(status); ok {
		t.overall = Fold(t.overall, ev)
	}
	return t.overall
}

func (t *Tracker) Snapshot() (float64, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overall, t.status
}
