// Package httpx builds the HTTP client shared by caption, thumbnail and
// metadata requests: fixed user agent, bounded retry of idempotent requests
// and an overall timeout.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultRetryMax = 2
	defaultUA       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

// Transport retries GET and HEAD requests without a body when the
// underlying round trip fails. HTTP error statuses are returned as is.
type Transport struct {
	Base http.RoundTripper

	// UserAgent is set on requests that carry none.
	UserAgent string

	// RetryMax excludes the first attempt: 2 means up to 3 attempts.
	RetryMax int

	// Backoff is the wait before retry n, multiplied by n.
	Backoff time.Duration
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	retries := max(t.RetryMax, 0)
	if !canRetry {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 && t.Backoff > 0 {
			select {
			case <-req.Context().Done():
				return nil, lastErr
			case <-time.After(time.Duration(attempt) * t.Backoff):
			}
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			ua := t.UserAgent
			if ua == "" {
				ua = defaultUA
			}
			r.Header.Set("User-Agent", ua)
		}

		resp, err := base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

type Options struct {
	Timeout   time.Duration
	RetryMax  int
	Backoff   time.Duration
	UserAgent string
}

// NewClient returns a client honouring proxy environment variables.
func NewClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := opts.RetryMax
	if retries < 0 {
		retries = defaultRetryMax
	}

	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   4,
	}
	return &http.Client{
		Transport: &Transport{
			Base:      base,
			UserAgent: opts.UserAgent,
			RetryMax:  retries,
			Backoff:   opts.Backoff,
		},
		Timeout: timeout,
	}
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Get issues a GET and turns non-2xx responses into *StatusError. The caller
// closes the body of a successful response.
func Get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
