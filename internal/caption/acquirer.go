// Package caption fetches a video's English captions, runs the translation
// stage over them and writes the caption JSON file.
package caption

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/httpx"
	"github.com/MimeLyc/subtube/internal/progress"
	"github.com/MimeLyc/subtube/internal/subtitle"
	"github.com/MimeLyc/subtube/internal/translator"
	"github.com/MimeLyc/subtube/pkg/file"
	"github.com/MimeLyc/subtube/pkg/log"
)

const maxTrackBytes = 16 << 20

type Acquirer struct {
	lister Lister
	http   *http.Client
	stage  *translator.Stage
	writer subtitle.Writer
	policy Policy
}

func NewAcquirer(lister Lister, client *http.Client, stage *translator.Stage, policy Policy) *Acquirer {
	return &Acquirer{
		lister: lister,
		http:   client,
		stage:  stage,
		writer: subtitle.NewWriter(),
		policy: policy,
	}
}

// FileName is the caption file name for a video: the sanitized title and
// the id, or the id alone when nothing of the title survives sanitizing.
func FileName(title, videoID string) string {
	safe := file.SanitizeTitle(title)
	if safe == "" {
		return videoID + ".json"
	}
	return fmt.Sprintf("%s_%s.json", safe, videoID)
}

// Acquire writes the English captions of videoID, with translations when a
// backend is available, and returns the file path. Every retrieval failure
// is reported as a NoEnglishCaptions fault; write failures as IO faults.
func (a *Acquirer) Acquire(ctx context.Context, videoID, outputDir, title string, onProgress func(string)) (string, error) {
	report := func(s string) {
		if onProgress != nil {
			onProgress(s)
		}
	}
	report(progress.CaptionsFetching())

	lines, sel, err := a.fetch(ctx, videoID)
	if err != nil {
		return "", err
	}
	log.Info("Fetched %d %s caption lines (%s) for %s", len(lines), sel.Kind, sel.Language, videoID)

	if lang := subtitle.DetectLanguage(lines); lang != "" && lang != "en" {
		log.Warn("Captions of %s look like %q rather than English", videoID, lang)
	}

	lines, rep := a.stage.Run(ctx, lines, report)
	if rep.Backend != "" {
		log.Info("Translated %d/%d caption lines of %s via %s", rep.Translated, rep.Lines, videoID, rep.Backend)
	}

	path := filepath.Join(outputDir, FileName(title, videoID))
	if err := a.writer.Write(path, &subtitle.File{Lines: lines}); err != nil {
		return "", fault.Wrap(err, fault.KindIO, "write caption file").With("path", path)
	}
	removeStale(outputDir, videoID, path)

	report(progress.CaptionsSaved())
	return path, nil
}

func (a *Acquirer) fetch(ctx context.Context, videoID string) ([]subtitle.Line, *Selection, error) {
	tracks, err := a.lister.ListTracks(ctx, videoID)
	if err != nil {
		return nil, nil, noCaptions(err, "list caption tracks", videoID)
	}

	sel, err := Select(tracks, a.policy)
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			fe.With("video_id", videoID)
		}
		return nil, nil, err
	}

	resp, err := httpx.Get(ctx, a.http, sel.Track.URL)
	if err != nil {
		return nil, nil, noCaptions(err, "download caption track", videoID)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTrackBytes))
	if err != nil {
		return nil, nil, noCaptions(err, "read caption track", videoID)
	}

	lines, err := parseJSON3(data)
	if err != nil {
		return nil, nil, noCaptions(err, "parse caption track", videoID)
	}
	return lines, sel, nil
}

func noCaptions(err error, msg, videoID string) error {
	return fault.Wrap(err, fault.KindNoEnglishCaptions, msg).
		With("video_id", videoID).
		WithUserMessage("English captions could not be retrieved; the video was skipped")
}

// removeStale deletes caption files of the same video written under an
// earlier title.
func removeStale(dir, videoID, keep string) {
	matches, err := file.FindByPrefix(dir, "", "_"+videoID+".json")
	if err != nil {
		return
	}
	if bare := filepath.Join(dir, videoID+".json"); file.Exists(bare) {
		matches = append(matches, bare)
	}
	for _, m := range matches {
		if m == keep {
			continue
		}
		if err := os.Remove(m); err == nil {
			log.Debug("Removed stale caption file %s", m)
		}
	}
}
