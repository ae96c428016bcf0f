package thumbnail

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MimeLyc/subtube/internal/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "dQw4w9WgXcQ"

func client() *http.Client {
	return httpx.NewClient(httpx.Options{RetryMax: 0})
}

func TestAcquire_PrefersMaxRes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg:" + r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	var statuses []string
	path, ok := NewAcquirer(client(), srv.URL).Acquire(context.Background(), testID, dir, func(s string) {
		statuses = append(statuses, s)
	})
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, testID+".jpg"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg:/"+testID+"/maxresdefault.jpg", string(data))
	assert.Contains(t, statuses, "Downloading thumbnail: 100.0%")
	assert.Equal(t, "Thumbnail saved", statuses[len(statuses)-1])
}

func TestAcquire_FallsBackToHQ(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "maxresdefault.jpg") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("hq"))
	}))
	defer srv.Close()

	path, ok := NewAcquirer(client(), srv.URL).Acquire(context.Background(), testID, t.TempDir(), nil)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hq", string(data))
}

func TestAcquire_BothTiersFail(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	var statuses []string
	path, ok := NewAcquirer(client(), srv.URL).Acquire(context.Background(), testID, dir, func(s string) {
		statuses = append(statuses, s)
	})
	assert.False(t, ok)
	assert.Empty(t, path)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []string{"Thumbnail unavailable"}, statuses)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial file may remain")
}

func TestNewAcquirer_DefaultBaseURL(t *testing.T) {
	a := NewAcquirer(client(), "")
	assert.Equal(t, DefaultBaseURL, a.baseURL)
	assert.Equal(t, "https://example.com/vi", NewAcquirer(client(), "https://example.com/vi/").baseURL)
}
