package audio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

type Phase int

const (
	PhaseDownloading Phase = iota
	PhasePostProcessing
	PhaseFinished
)

// Event is a progress notification from the extraction tool.
type Event struct {
	Phase           Phase
	DownloadedBytes int
	TotalBytes      int
	Started         time.Time
	Title           string
}

type Request struct {
	URL            string
	OutputTemplate string
	Format         string
	AudioFormat    string
	AudioQuality   string
}

type Result struct {
	Title    string
	Filename string
}

// Extractor downloads and transcodes an audio track.
type Extractor interface {
	Download(ctx context.Context, req Request, onEvent func(Event)) (*Result, error)
}

// ExtractError carries the tool's stderr next to the exit error so callers
// can classify the failure.
type ExtractError struct {
	Err    error
	Stderr string
}

func (e *ExtractError) Error() string {
	if line := lastLine(e.Stderr); line != "" {
		return fmt.Sprintf("%v: %s", e.Err, line)
	}
	return e.Err.Error()
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// YtDlp runs the yt-dlp binary.
type YtDlp struct {
	executable string
	interval   time.Duration
}

func NewYtDlp(executable string) *YtDlp {
	return &YtDlp{executable: executable, interval: 500 * time.Millisecond}
}

func (y *YtDlp) command() *ytdlp.Command {
	cmd := ytdlp.New()
	if y.executable != "" {
		cmd.SetExecutable(y.executable)
	}
	return cmd
}

func (y *YtDlp) Download(ctx context.Context, req Request, onEvent func(Event)) (*Result, error) {
	dl := y.command().
		Format(req.Format).
		ExtractAudio().
		AudioFormat(req.AudioFormat).
		AudioQuality(req.AudioQuality).
		NoPlaylist().
		ForceOverwrites().
		Output(req.OutputTemplate)

	dl.ProgressFunc(y.interval, func(update ytdlp.ProgressUpdate) {
		if onEvent == nil {
			return
		}
		onEvent(toEvent(update))
	})

	res, err := dl.Run(ctx, req.URL)
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		return nil, &ExtractError{Err: err, Stderr: stderr}
	}

	out := &Result{}
	if infos, err := res.GetExtractedInfo(); err == nil && len(infos) > 0 {
		if infos[0].Title != nil {
			out.Title = *infos[0].Title
		}
		if infos[0].Filename != nil {
			out.Filename = *infos[0].Filename
		}
	}
	return out, nil
}

func toEvent(update ytdlp.ProgressUpdate) Event {
	ev := Event{
		Phase:           PhaseDownloading,
		DownloadedBytes: update.DownloadedBytes,
		TotalBytes:      update.TotalBytes,
		Started:         update.Started,
	}
	switch update.Status {
	case ytdlp.ProgressStatusPostProcessing:
		ev.Phase = PhasePostProcessing
	case ytdlp.ProgressStatusFinished:
		ev.Phase = PhaseFinished
	}
	if update.Info != nil && update.Info.Title != nil {
		ev.Title = *update.Info.Title
	}
	return ev
}
