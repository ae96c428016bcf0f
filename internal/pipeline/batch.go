package pipeline

import (
	"context"

	"github.com/MimeLyc/subtube/internal/video"
	"github.com/MimeLyc/subtube/pkg/log"
)

// Runner is the single-URL entry point RunBatch drives.
type Runner interface {
	Run(ctx context.Context, url, outputDir string, onProgress func(string)) (*video.Record, error)
}

type Failure struct {
	URL string
	Err error
}

// RunBatch runs urls one at a time and hands each record to onRecord. A
// failed URL does not stop the batch. Cancelling ctx stops the batch before
// the next URL; a URL already started runs to completion. It returns the
// number of records produced and the failures, in input order.
func RunBatch(ctx context.Context, runner Runner, urls []string, outputDir string,
	onProgress func(url, status string), onRecord func(*video.Record) error) (int, []Failure) {
	var (
		succeeded int
		failures  []Failure
	)
	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			log.Warn("Batch stopped after %d of %d urls: %v", i, len(urls), err)
			for _, rest := range urls[i:] {
				failures = append(failures, Failure{URL: rest, Err: err})
			}
			break
		}

		report := func(status string) {
			if onProgress != nil {
				onProgress(url, status)
			}
		}
		rec, err := runner.Run(context.WithoutCancel(ctx), url, outputDir, report)
		if err == nil && onRecord != nil {
			err = onRecord(rec)
		}
		if err != nil {
			log.Warn("Batch item %d/%d (%s) failed: %v", i+1, len(urls), url, err)
			failures = append(failures, Failure{URL: url, Err: err})
			continue
		}
		succeeded++
	}
	return succeeded, failures
}
