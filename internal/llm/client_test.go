package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) *Config {
	return &Config{
		APIKey:      "test-key",
		APIURL:      url,
		Model:       "test-model",
		MaxTokens:   200,
		Temperature: 0.2,
		Timeout:     5,
		AppName:     "subtube",
	}
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(testConfig("https://api.example.com"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", client.baseURL)

	_, err = NewClient(&Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestSimpleChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "subtube", r.Header.Get("X-Title"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "hello", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"xin chào"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	got, err := client.SimpleChat(context.Background(), "hello", "translate")
	require.NoError(t, err)
	assert.Equal(t, "xin chào", got)
}

func TestSimpleChat_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"slow down"}}`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
			},
		},
		{
			name:   "embedded api error",
			status: http.StatusOK,
			body:   `{"error":{"message":"model overloaded","type":"server_error","code":503}}`,
			check: func(t *testing.T, err error) {
				var apiErr *Error
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, "model overloaded", apiErr.Message)
			},
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"id":"x","choices":[]}`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "no choices")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient(testConfig(server.URL))
			require.NoError(t, err)

			_, err = client.SimpleChat(context.Background(), "hello", "")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestConfigValidate_ReportsAllProblems(t *testing.T) {
	err := (&Config{APIURL: "ftp://x", Temperature: 3}).Validate()
	require.Error(t, err)
	for _, want := range []string{"missing API key", "http(s) URL", "missing model", "temperature"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := testConfig("https://api.example.com/v1/")
	cfg.MaxTokens = 0
	cfg.Timeout = 0
	assert.Equal(t, defaultMaxTokens, cfg.maxTokens())
	assert.Equal(t, defaultTimeout, cfg.timeout())
	assert.Equal(t, "https://api.example.com/v1/chat/completions", cfg.endpoint("/chat/completions"))
}
