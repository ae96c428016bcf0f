// Package metadata looks up video titles without running the extraction
// tool: the oEmbed endpoint first, then the watch page's og:title.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MimeLyc/subtube/internal/httpx"
	"github.com/MimeLyc/subtube/internal/videoid"
	"github.com/MimeLyc/subtube/pkg/log"
	"github.com/MimeLyc/subtube/pkg/strategy"
	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultOEmbedURL = "https://www.youtube.com/oembed"
	DefaultWatchURL  = "https://www.youtube.com/watch"
)

type Client struct {
	http      *http.Client
	oembedURL string
	watchURL  string
}

type Option func(*Client)

// WithEndpoints overrides the oEmbed and watch page base URLs.
func WithEndpoints(oembedURL, watchURL string) Option {
	return func(c *Client) {
		c.oembedURL = oembedURL
		c.watchURL = watchURL
	}
}

func NewClient(httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		http:      httpClient,
		oembedURL: DefaultOEmbedURL,
		watchURL:  DefaultWatchURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Title returns the first title any strategy produces.
func (c *Client) Title(ctx context.Context, videoID string) (string, error) {
	chain := strategy.Chain[string]{
		{Name: "oembed", Run: func(ctx context.Context) (string, error) { return c.oembedTitle(ctx, videoID) }},
		{Name: "watch-page", Run: func(ctx context.Context) (string, error) { return c.pageTitle(ctx, videoID) }},
	}

	title, outcome := chain.Run(ctx, func(r strategy.Result[string]) {
		if !r.OK() {
			log.Debug("Title lookup %s failed for %s: %v", r.Name, videoID, r.Err)
		}
	})
	if err := outcome.Err(); err != nil {
		return "", fmt.Errorf("title lookup for %s: %w", videoID, err)
	}
	return title, nil
}

func (c *Client) oembedTitle(ctx context.Context, videoID string) (string, error) {
	q := url.Values{}
	q.Set("url", videoid.WatchURL(videoID))
	q.Set("format", "json")

	resp, err := httpx.Get(ctx, c.http, c.oembedURL+"?"+q.Encode())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode oembed response: %w", err)
	}
	if strings.TrimSpace(body.Title) == "" {
		return "", fmt.Errorf("no title found in oembed response")
	}
	return strings.TrimSpace(body.Title), nil
}

func (c *Client) pageTitle(ctx context.Context, videoID string) (string, error) {
	resp, err := httpx.Get(ctx, c.http, c.watchURL+"?v="+url.QueryEscape(videoID))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse watch page: %w", err)
	}

	if title := strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", "")); title != "" {
		return title, nil
	}
	if title := strings.TrimSpace(doc.Find(`meta[name="title"]`).AttrOr("content", "")); title != "" {
		return title, nil
	}
	title := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(doc.Find("title").First().Text()), "- YouTube"))
	if title == "" || title == "YouTube" {
		return "", fmt.Errorf("no title found on watch page")
	}
	return title, nil
}
