package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/subtube/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Values come from environment variables with defaults; runtime settings
// from the settings file are layered on top through WithRuntimeSettings.
//
// Environment Variables:
// Storage:
// - DATA_DIR: Directory for the database and settings (default: /app/data)
// - OUTPUT_DIR: Directory for audio, caption and thumbnail files (default: /app/downloads)
// - DB_PATH: SQLite database file (default: $DATA_DIR/subtube.db)
// - DATABASE_URL: Postgres DSN; when set it replaces the SQLite database (optional)
//
// Extraction:
// - YTDLP_PATH: yt-dlp executable (default: yt-dlp)
// - FFPROBE_PATH: ffprobe executable used to verify audio (default: ffprobe)
// - AUDIO_FORMAT: Target audio codec (default: mp3)
// - AUDIO_QUALITY: Target audio bitrate (default: 192K)
//
// Captions & translation:
// - ACCEPT_MANUAL_CAPTIONS: Use manual English captions when no auto track exists (default: false)
// - TRANSLATE_BACKEND: google, llm or none (default: google)
// - TARGET_LANGUAGE: BCP 47 tag of the translation language (default: vi)
// - TRANSLATE_RATE_PER_MIN: Translation requests per minute, 0 for unlimited (default: 120)
// - TRANSLATE_PROGRESS_EVERY: Report translation progress every N lines (default: 10)
// - TRANSLATE_MAX_RETRIES: Retries for a rate limited line (default: 2)
// - TRANSLATE_BACKOFF_MS: Base backoff between retries (default: 2000)
//
// LLM (TRANSLATE_BACKEND=llm):
// - LLM_API_KEY, LLM_API_URL, LLM_MODEL, LLM_MAX_TOKENS, LLM_TEMPERATURE,
//   LLM_TIMEOUT, LLM_SITE_URL, LLM_APP_NAME
//
// Network:
// - HTTP_TIMEOUT: Per request timeout in seconds for thumbnails, captions and metadata (default: 20)
// - HTTP_RETRIES: Retries for idempotent requests (default: 2)
//
// Server & schedule:
// - HTTP_ADDR (default: :8080), UI_ENABLED (default: true), UI_STATIC_DIR (default: /app/web)
// - WATCH_FILE: File of URLs fetched on schedule (optional)
// - CRON_EXPR: Watch schedule (default: 0 * * * *)
//
// System:
// - APP_ORG / APP_NAME: Identifiers used in the user agent (default: MimeLyc / subtube)
// - LOG_LEVEL: debug, info, warn, error (default: info)
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Storage   StorageConfig   `json:"storage"`
	Extractor ExtractorConfig `json:"extractor"`
	Captions  CaptionConfig   `json:"captions"`
	Translate TranslateConfig `json:"translate"`
	Network   NetworkConfig   `json:"network"`
	HTTP      HTTPConfig      `json:"http"`
	Watch     WatchConfig     `json:"watch"`
	System    SystemConfig    `json:"system"`
}

// LLMConfig holds the configuration for an OpenAI compatible chat endpoint.
type LLMConfig struct {
	APIKey      string  `json:"-"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

type StorageConfig struct {
	OutputDir   string `json:"output_dir"`
	SQLitePath  string `json:"sqlite_path"`
	DatabaseURL string `json:"-"`
}

type ExtractorConfig struct {
	YtDlpPath    string `json:"ytdlp_path"`
	FFprobePath  string `json:"ffprobe_path"`
	AudioFormat  string `json:"audio_format"`
	AudioQuality string `json:"audio_quality"`
}

type CaptionConfig struct {
	AcceptManual bool `json:"accept_manual"`
}

type TranslateConfig struct {
	Backend        string        `json:"backend"`
	TargetLanguage language.Tag  `json:"target_language"`
	RatePerMinute  float64       `json:"rate_per_minute"`
	ProgressEvery  int           `json:"progress_every"`
	MaxRetries     int           `json:"max_retries"`
	Backoff        time.Duration `json:"backoff"`
}

type NetworkConfig struct {
	Timeout time.Duration `json:"timeout"`
	Retries int           `json:"retries"`
}

type HTTPConfig struct {
	Addr        string `json:"addr"`
	UIEnabled   bool   `json:"ui_enabled"`
	UIStaticDir string `json:"ui_static_dir"`
}

type WatchConfig struct {
	File     string `json:"file"`
	CronExpr string `json:"cron_expr"`
}

type SystemConfig struct {
	DataDir      string `json:"data_dir"`
	Organization string `json:"organization"`
	Application  string `json:"application"`
	LogLevel     string `json:"log_level"`
}

const (
	BackendGoogle = "google"
	BackendLLM    = "llm"
	BackendNone   = "none"
)

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
			Timeout:     getEnvInt("LLM_TIMEOUT", 30),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
		},
		Storage: StorageConfig{
			OutputDir:   getEnvString("OUTPUT_DIR", "/app/downloads"),
			SQLitePath:  getEnvString("DB_PATH", ""),
			DatabaseURL: getEnvString("DATABASE_URL", ""),
		},
		Extractor: ExtractorConfig{
			YtDlpPath:    getEnvString("YTDLP_PATH", "yt-dlp"),
			FFprobePath:  getEnvString("FFPROBE_PATH", "ffprobe"),
			AudioFormat:  getEnvString("AUDIO_FORMAT", "mp3"),
			AudioQuality: getEnvString("AUDIO_QUALITY", "192K"),
		},
		Captions: CaptionConfig{
			AcceptManual: getEnvBool("ACCEPT_MANUAL_CAPTIONS", false),
		},
		Translate: TranslateConfig{
			Backend:        strings.ToLower(getEnvString("TRANSLATE_BACKEND", BackendGoogle)),
			TargetLanguage: getEnvLanguage("TARGET_LANGUAGE", language.Vietnamese),
			RatePerMinute:  getEnvFloat("TRANSLATE_RATE_PER_MIN", 120),
			ProgressEvery:  getEnvInt("TRANSLATE_PROGRESS_EVERY", 10),
			MaxRetries:     getEnvInt("TRANSLATE_MAX_RETRIES", 2),
			Backoff:        time.Duration(getEnvInt("TRANSLATE_BACKOFF_MS", 2000)) * time.Millisecond,
		},
		Network: NetworkConfig{
			Timeout: time.Duration(getEnvInt("HTTP_TIMEOUT", 20)) * time.Second,
			Retries: getEnvInt("HTTP_RETRIES", 2),
		},
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", ":8080"),
			UIEnabled:   getEnvBool("UI_ENABLED", true),
			UIStaticDir: getEnvString("UI_STATIC_DIR", "/app/web"),
		},
		Watch: WatchConfig{
			File:     getEnvString("WATCH_FILE", ""),
			CronExpr: getEnvString("CRON_EXPR", "0 * * * *"),
		},
		System: SystemConfig{
			DataDir:      getEnvString("DATA_DIR", "/app/data"),
			Organization: getEnvString("APP_ORG", "MimeLyc"),
			Application:  getEnvString("APP_NAME", "subtube"),
			LogLevel:     getEnvString("LOG_LEVEL", "info"),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: output=%s backend=%s target=%s cron=%s",
		config.Storage.OutputDir, config.Translate.Backend, config.Translate.TargetLanguage, config.Watch.CronExpr)
	return config, nil
}

// DBPath is the SQLite database location: DB_PATH, or subtube.db under the
// data dir.
func (c *Config) DBPath() string {
	if c.Storage.SQLitePath != "" {
		return c.Storage.SQLitePath
	}
	return filepath.Join(c.System.DataDir, "subtube.db")
}

// UserAgent identifies outgoing HTTP requests.
func (c *Config) UserAgent() string {
	return fmt.Sprintf("%s/%s", c.System.Organization, c.System.Application)
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.Storage.OutputDir) == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	switch c.Translate.Backend {
	case BackendGoogle, BackendNone:
	case BackendLLM:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required when TRANSLATE_BACKEND=llm")
		}
	default:
		return fmt.Errorf("unknown TRANSLATE_BACKEND %q", c.Translate.Backend)
	}
	if c.Translate.RatePerMinute < 0 {
		return fmt.Errorf("TRANSLATE_RATE_PER_MIN must not be negative")
	}
	if c.Translate.ProgressEvery < 1 {
		c.Translate.ProgressEvery = 1
	}
	if _, err := cron.ParseStandard(c.Watch.CronExpr); err != nil {
		return fmt.Errorf("invalid CRON_EXPR: %w", err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvLanguage(key string, defaultValue language.Tag) language.Tag {
	if value := os.Getenv(key); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
		log.Warn("Ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}
