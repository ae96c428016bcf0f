package library

import "github.com/MimeLyc/subtube/internal/video"

// FileStatus tells which of a record's files are still on disk.
type FileStatus struct {
	HasAudio     bool `json:"has_audio"`
	HasCaptions  bool `json:"has_captions"`
	HasThumbnail bool `json:"has_thumbnail"`
}

// Entry is a stored record with the state of its files.
type Entry struct {
	*video.Record
	Files FileStatus `json:"files"`
}

// Complete reports whether the audio file and, when referenced, the caption
// file exist.
func (e Entry) Complete() bool {
	return e.Files.HasAudio && (e.SubtitlePath == "" || e.Files.HasCaptions)
}
