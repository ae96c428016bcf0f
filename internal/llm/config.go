package llm

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMaxTokens = 2048
	defaultTimeout   = 60 * time.Second
)

// Config describes an OpenAI compatible chat endpoint such as OpenRouter
// or a local gateway. Zero MaxTokens and Timeout fall back to defaults.
type Config struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"` // seconds
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("missing API key"))
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		errs = append(errs, errors.New("API URL must be an http(s) URL"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("missing model"))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, errors.New("negative max tokens"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, errors.New("temperature outside [0, 2]"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("negative timeout"))
	}
	return errors.Join(errs...)
}

func (c *Config) maxTokens() int {
	if c.MaxTokens == 0 {
		return defaultMaxTokens
	}
	return c.MaxTokens
}

func (c *Config) timeout() time.Duration {
	if c.Timeout == 0 {
		return defaultTimeout
	}
	return time.Duration(c.Timeout) * time.Second
}

func (c *Config) endpoint(path string) string {
	return strings.TrimRight(c.APIURL, "/") + path
}

// setHeaders adds auth and the optional OpenRouter attribution headers.
func (c *Config) setHeaders(h http.Header) {
	h.Set("Authorization", "Bearer "+c.APIKey)
	h.Set("Content-Type", "application/json")
	if c.SiteURL != "" {
		h.Set("HTTP-Referer", c.SiteURL)
	}
	if c.AppName != "" {
		h.Set("X-Title", c.AppName)
	}
}
