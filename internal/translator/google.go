package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MimeLyc/subtube/internal/httpx"
	"golang.org/x/text/language"
)

const DefaultGoogleURL = "https://translate.googleapis.com/translate_a/single"

// googleTranslator uses the keyless web translation endpoint.
type googleTranslator struct {
	http     *http.Client
	endpoint string
}

func NewGoogleTranslator(client *http.Client, endpoint string) Translator {
	if endpoint == "" {
		endpoint = DefaultGoogleURL
	}
	return &googleTranslator{http: client, endpoint: endpoint}
}

func (t *googleTranslator) Name() string { return "google" }

func (t *googleTranslator) Translate(ctx context.Context, text string, target language.Tag) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "en")
	q.Set("tl", target.String())
	q.Set("dt", "t")
	q.Set("q", text)

	resp, err := httpx.Get(ctx, t.http, t.endpoint+"?"+q.Encode())
	if err != nil {
		if httpx.IsStatus(err, http.StatusTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return "", err
	}
	defer resp.Body.Close()

	var payload []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode translation response: %w", err)
	}
	return parseGoogleSegments(payload)
}

// parseGoogleSegments joins the translated part of each segment in
// [[["translated","source",...], ...], ...].
func parseGoogleSegments(payload []json.RawMessage) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("empty translation response")
	}
	var segments [][]any
	if err := json.Unmarshal(payload[0], &segments); err != nil {
		return "", fmt.Errorf("unexpected translation response: %w", err)
	}

	var sb strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			sb.WriteString(s)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("translation response has no text")
	}
	return out, nil
}
