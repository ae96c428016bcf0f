package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/MimeLyc/subtube/internal/fault"
	"github.com/MimeLyc/subtube/internal/pipeline"
	"github.com/MimeLyc/subtube/internal/progress"
	"github.com/MimeLyc/subtube/internal/service"
	"github.com/MimeLyc/subtube/pkg/log"
	"github.com/spf13/cobra"
)

var watchlistFile string

var fetchCmd = &cobra.Command{
	Use:   "fetch [url...]",
	Short: "Download videos or playlists and save them to the library",
	Long: `Fetch runs the download pipeline for every URL in order. Playlist URLs are
expanded to their videos. A failed video does not stop the remaining ones;
the command exits non-zero when any video failed.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&watchlistFile, "file", "f", "", "read URLs from a watchlist file, one per line")
	rootCmd.AddCommand(fetchCmd)
}

type batchFetcher interface {
	FetchAll(ctx context.Context, urls []string, onProgress func(url, status string)) (int, []pipeline.Failure)
}

func runFetch(cmd *cobra.Command, args []string) error {
	urls := append([]string(nil), args...)
	if watchlistFile != "" {
		listed, err := service.ReadWatchlist(watchlistFile)
		if err != nil {
			return err
		}
		urls = append(urls, listed...)
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs given")
	}

	log.GetLogger().SetOutput(os.Stderr)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fetchURLs(ctx, cmd.OutOrStdout(), service.New(*cfg, store), urls)
}

// fetchURLs prints one line per status change with the overall progress of
// that URL, then a summary of failures.
func fetchURLs(ctx context.Context, out io.Writer, fetcher batchFetcher, urls []string) error {
	var mu sync.Mutex
	trackers := make(map[string]*progress.Tracker)
	saved, failures := fetcher.FetchAll(ctx, urls, func(url, status string) {
		mu.Lock()
		defer mu.Unlock()
		tr, ok := trackers[url]
		if !ok {
			tr = progress.NewTracker()
			trackers[url] = tr
		}
		if _, prev := tr.Snapshot(); prev == status {
			return
		}
		fmt.Fprintf(out, "%s [%5.1f%%] %s\n", url, tr.Update(status), status)
	})

	fmt.Fprintf(out, "Saved %d of %d videos\n", saved, saved+len(failures))
	for _, f := range failures {
		fmt.Fprintf(out, "FAILED %s: %s\n", f.URL, describe(f.Err))
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d videos failed", len(failures))
	}
	return nil
}

func describe(err error) string {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe.UserMessage()
	}
	return err.Error()
}
