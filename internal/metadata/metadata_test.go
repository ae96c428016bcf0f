package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MimeLyc/subtube/internal/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, oembed http.HandlerFunc, watch http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oembed", oembed)
	mux.HandleFunc("/watch", watch)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewClient(httpx.NewClient(httpx.Options{RetryMax: 0}), WithEndpoints(srv.URL+"/oembed", srv.URL+"/watch"))
}

func TestTitle_FromOEmbed(t *testing.T) {
	var gotURL string
	c := newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			gotURL = r.URL.Query().Get("url")
			_, _ = w.Write([]byte(`{"title":" Rick Astley - Never Gonna Give You Up ","author_name":"Rick Astley"}`))
		},
		func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("watch page should not be fetched")
		})

	title, err := c.Title(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Rick Astley - Never Gonna Give You Up", title)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", gotURL)
}

func TestTitle_FallsBackToWatchPage(t *testing.T) {
	c := newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		},
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("v"))
			_, _ = w.Write([]byte(`<html><head>
<meta property="og:title" content="Never Gonna Give You Up">
<title>Never Gonna Give You Up - YouTube</title>
</head><body></body></html>`))
		})

	title, err := c.Title(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Never Gonna Give You Up", title)
}

func TestTitle_PageTitleTagFallback(t *testing.T) {
	c := newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"title":""}`))
		},
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html><head><title>Lecture 1 - YouTube</title></head></html>`))
		})

	title, err := c.Title(context.Background(), "abcdefghijk")
	require.NoError(t, err)
	assert.Equal(t, "Lecture 1", title)
}

func TestTitle_AllStrategiesFail(t *testing.T) {
	c := newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
		func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`<html><title>YouTube</title></html>`)) })

	_, err := c.Title(context.Background(), "abcdefghijk")
	require.Error(t, err)
	assert.ErrorContains(t, err, "oembed")
	assert.ErrorContains(t, err, "watch-page")
}
