package caption

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MimeLyc/subtube/internal/videoid"
	"github.com/lrstanley/go-ytdlp"
)

// Track is one downloadable rendition of a caption track.
type Track struct {
	Ext  string `json:"ext"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Tracks lists the caption tracks of a video keyed by language code.
type Tracks struct {
	Automatic map[string][]Track `json:"automatic_captions"`
	Manual    map[string][]Track `json:"subtitles"`
}

func (t Tracks) Empty() bool {
	return len(t.Automatic) == 0 && len(t.Manual) == 0
}

// Lister fetches the caption track listing for a video.
type Lister interface {
	ListTracks(ctx context.Context, videoID string) (*Tracks, error)
}

// YtDlpLister reads the listing from yt-dlp's single JSON dump.
type YtDlpLister struct {
	executable string
}

func NewYtDlpLister(executable string) *YtDlpLister {
	return &YtDlpLister{executable: executable}
}

func (l *YtDlpLister) ListTracks(ctx context.Context, videoID string) (*Tracks, error) {
	cmd := ytdlp.New().
		SkipDownload().
		DumpSingleJSON().
		NoPlaylist()
	if l.executable != "" {
		cmd.SetExecutable(l.executable)
	}

	res, err := cmd.Run(ctx, videoid.WatchURL(videoID))
	if err != nil {
		if res != nil && res.Stderr != "" {
			return nil, fmt.Errorf("list caption tracks: %w: %s", err, res.Stderr)
		}
		return nil, fmt.Errorf("list caption tracks: %w", err)
	}
	return parseTracks([]byte(res.Stdout))
}

func parseTracks(data []byte) (*Tracks, error) {
	var tracks Tracks
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, fmt.Errorf("parse caption listing: %w", err)
	}
	return &tracks, nil
}
