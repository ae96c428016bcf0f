// Package thumbnail downloads a video's preview image. Failures are logged
// and reported as absence, never as errors.
package thumbnail

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/httpx"
	"github.com/MimeLyc/subtube/internal/progress"
	"github.com/MimeLyc/subtube/pkg/log"
	"github.com/MimeLyc/subtube/pkg/strategy"
)

const DefaultBaseURL = "https://img.youtube.com/vi"

// Tiers are tried in order.
var Tiers = []string{"maxresdefault", "hqdefault"}

type Acquirer struct {
	client  *http.Client
	baseURL string
}

func NewAcquirer(client *http.Client, baseURL string) *Acquirer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Acquirer{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Path is where the thumbnail of videoID is stored.
func Path(outputDir, videoID string) string {
	return filepath.Join(outputDir, videoID+".jpg")
}

// Acquire saves the best available thumbnail and returns its path. The
// second value is false when no tier could be downloaded.
func (a *Acquirer) Acquire(ctx context.Context, videoID, outputDir string, onProgress func(string)) (string, bool) {
	report := func(s string) {
		if onProgress != nil {
			onProgress(s)
		}
	}

	dest := Path(outputDir, videoID)
	chain := make(strategy.Chain[string], 0, len(Tiers))
	for _, tier := range Tiers {
		url := fmt.Sprintf("%s/%s/%s.jpg", a.baseURL, videoID, tier)
		chain = append(chain, strategy.Strategy[string]{
			Name: tier,
			Run: func(ctx context.Context) (string, error) {
				return dest, a.download(ctx, url, dest, report)
			},
		})
	}

	_, outcome := chain.Run(ctx, func(r strategy.Result[string]) {
		if !r.OK() {
			log.Warn("Thumbnail %s for %s unavailable: %v", r.Name, videoID, r.Err)
		}
	})
	if err := outcome.Err(); err != nil {
		fe := fault.Wrap(err, fault.KindThumbnail, "no thumbnail tier available").With("video_id", videoID)
		log.Warn("%v", fe)
		report(progress.ThumbnailSkipped())
		return "", false
	}

	report(progress.ThumbnailSaved())
	return dest, true
}

func (a *Acquirer) download(ctx context.Context, url, dest string, report func(string)) error {
	resp, err := httpx.Get(ctx, a.client, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var src io.Reader = resp.Body
	if resp.ContentLength > 0 {
		src = &countingReader{r: resp.Body, total: resp.ContentLength, report: report}
		report(progress.ThumbnailDownloading(0))
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("read thumbnail body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}

// countingReader reports whole-percent steps of a body of known size.
type countingReader struct {
	r        io.Reader
	total    int64
	read     int64
	lastStep int64
	report   func(string)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.read += int64(n)
		if step := c.read * 100 / c.total; step > c.lastStep {
			c.lastStep = step
			c.report(progress.ThumbnailDownloading(min(float64(c.read)/float64(c.total)*100, 100)))
		}
	}
	return n, err
}
