// Package playlist turns playlist URLs into the watch URLs of their videos.
package playlist

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MimeLyc/subtube/internal/videoid"
	"github.com/MimeLyc/subtube/pkg/log"
	"github.com/ytget/ytdlp/v2"
)

const DefaultTimeout = 60 * time.Second

type Item struct {
	VideoID string
	Title   string
}

// Fetcher lists the videos of a playlist.
type Fetcher func(ctx context.Context, playlistID string) ([]Item, error)

// YtdlpFetcher lists playlist items with the ytget client.
func YtdlpFetcher(ctx context.Context, playlistID string) ([]Item, error) {
	items, err := ytdlp.New().GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, Item{VideoID: it.VideoID, Title: it.Title})
	}
	return out, nil
}

type Expander struct {
	fetch   Fetcher
	timeout time.Duration
}

func NewExpander(fetch Fetcher) *Expander {
	if fetch == nil {
		fetch = YtdlpFetcher
	}
	return &Expander{fetch: fetch, timeout: DefaultTimeout}
}

// ID returns the playlist id of a pure playlist URL. Watch URLs that carry
// a list parameter name a single video and yield false.
func ID(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	q := u.Query()
	list := q.Get("list")
	if list == "" || q.Get("v") != "" {
		return "", false
	}
	return list, true
}

// Expand replaces playlist URLs with their video URLs, keeping order. Other
// URLs pass through unchanged, as do playlists that cannot be listed so the
// caller reports them as invalid.
func (e *Expander) Expand(ctx context.Context, urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		id, ok := ID(raw)
		if !ok {
			out = append(out, raw)
			continue
		}
		items, err := e.list(ctx, id)
		if err != nil {
			log.Warn("Failed to expand playlist %s: %v", id, err)
			out = append(out, raw)
			continue
		}
		log.Info("Playlist %s expanded to %d videos", id, len(items))
		for _, it := range items {
			if it.VideoID != "" {
				out = append(out, videoid.WatchURL(it.VideoID))
			}
		}
	}
	return out
}

func (e *Expander) list(ctx context.Context, id string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	items, err := e.fetch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list playlist items: %w", err)
	}
	return items, nil
}
