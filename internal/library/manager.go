// Package library manages downloaded videos: listing, lookup of captions
// and removal of records together with their files.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/subtitle"
	"github.com/MimeLyc/subtube/internal/video"
	"github.com/MimeLyc/subtube/pkg/file"
	"github.com/MimeLyc/subtube/pkg/log"
)

var ErrInvalidLine = errors.New("invalid caption line index")

type Manager struct {
	store  video.Store
	reader subtitle.Reader
	writer subtitle.Writer
}

func NewManager(store video.Store) *Manager {
	return &Manager{store: store, reader: subtitle.NewReader(), writer: subtitle.NewWriter()}
}

func (m *Manager) List(ctx context.Context) ([]Entry, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, entryOf(rec))
	}
	return entries, nil
}

func (m *Manager) Get(ctx context.Context, videoID string) (Entry, error) {
	rec, err := m.store.Get(ctx, videoID)
	if err != nil {
		return Entry{}, err
	}
	return entryOf(rec), nil
}

// Delete removes the record and the files it references.
func (m *Manager) Delete(ctx context.Context, videoID string) (*video.Record, error) {
	rec, err := m.store.Delete(ctx, videoID)
	if err != nil {
		return nil, err
	}
	removeFiles(rec)
	return rec, nil
}

// Purge removes every record and its files and returns how many records
// were removed.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	recs, err := m.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		removeFiles(rec)
	}
	log.Info("Purged %d videos", len(recs))
	return len(recs), nil
}

// Captions loads the caption lines of a video.
func (m *Manager) Captions(ctx context.Context, videoID string) ([]subtitle.Line, error) {
	rec, err := m.store.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if rec.SubtitlePath == "" {
		return nil, fault.New(fault.KindFileNotFound, "video has no caption file").With("video_id", videoID)
	}
	f, err := m.reader.Read(rec.SubtitlePath)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindFileNotFound, "read caption file").
			With("video_id", videoID).
			With("path", rec.SubtitlePath)
	}
	return f.Lines, nil
}

// CaptionAt returns the line shown at playback position t seconds. The
// boolean is false when no line covers t.
func (m *Manager) CaptionAt(ctx context.Context, videoID string, t float64) (subtitle.Line, bool, error) {
	lines, err := m.Captions(ctx, videoID)
	if err != nil {
		return subtitle.Line{}, false, err
	}
	line, _, ok := subtitle.At(lines, t)
	return line, ok, nil
}

// UpdateTranslations replaces the translated text of the lines keyed by
// index and rewrites the caption file. Unknown indexes fail the whole update.
func (m *Manager) UpdateTranslations(ctx context.Context, videoID string, patches map[int]string) ([]subtitle.Line, error) {
	lines, err := m.Captions(ctx, videoID)
	if err != nil {
		return nil, err
	}
	for idx := range patches {
		if idx < 0 || idx >= len(lines) {
			return nil, fmt.Errorf("%w: %d", ErrInvalidLine, idx)
		}
	}
	for idx, text := range patches {
		lines[idx].TranslatedText = strings.TrimSpace(text)
	}

	rec, err := m.store.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if err := m.writer.Write(rec.SubtitlePath, &subtitle.File{Lines: lines}); err != nil {
		return nil, fault.Wrap(err, fault.KindIO, "write caption file").With("path", rec.SubtitlePath)
	}
	log.Info("Updated %d translations of %s", len(patches), videoID)
	return lines, nil
}

// IsNotFound reports whether err means the video is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, video.ErrNotFound)
}

func entryOf(rec *video.Record) Entry {
	return Entry{
		Record: rec,
		Files: FileStatus{
			HasAudio:     rec.AudioPath != "" && file.Exists(rec.AudioPath),
			HasCaptions:  rec.SubtitlePath != "" && file.Exists(rec.SubtitlePath),
			HasThumbnail: rec.ThumbnailPath != "" && file.Exists(rec.ThumbnailPath),
		},
	}
}

func removeFiles(rec *video.Record) {
	for _, p := range rec.Files() {
		if err := file.RemoveIfExists(p); err != nil {
			log.Warn("Failed to remove %s of %s: %v", p, rec.VideoID, err)
		}
	}
}
