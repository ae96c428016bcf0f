// Package video holds the per-video record produced by a successful run and
// the contract for persisting it.
package video

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MimeLyc/subtube/internal/fault"
)

// DateLayout is the textual form of DownloadDate used in listings.
const DateLayout = "2006-01-02 15:04:05"

type Record struct {
	VideoID       string    `json:"video_id"`
	Title         string    `json:"title"`
	AudioPath     string    `json:"audio_path"`
	SubtitlePath  string    `json:"subtitle_path,omitempty"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	DownloadDate  time.Time `json:"download_date"`
}

// Validate enforces the persistence invariants: an id and an audio file.
func (r *Record) Validate() error {
	if r == nil {
		return fault.New(fault.KindValidation, "record is nil")
	}
	if strings.TrimSpace(r.VideoID) == "" {
		return fault.New(fault.KindValidation, "record has no video id")
	}
	if strings.TrimSpace(r.AudioPath) == "" {
		return fault.New(fault.KindValidation, "record has no audio path").With("video_id", r.VideoID)
	}
	return nil
}

// Files lists the non-empty file paths referenced by the record.
func (r *Record) Files() []string {
	var files []string
	for _, p := range []string{r.AudioPath, r.SubtitlePath, r.ThumbnailPath} {
		if p != "" {
			files = append(files, p)
		}
	}
	return files
}

var ErrNotFound = errors.New("video not found")

// Store persists records keyed by VideoID. Save replaces any existing row for
// the same id. List returns newest downloads first. Delete and DeleteAll
// return the removed rows so callers can delete the referenced files.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, videoID string) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	Delete(ctx context.Context, videoID string) (*Record, error)
	DeleteAll(ctx context.Context) ([]*Record, error)
	Close() error
}
