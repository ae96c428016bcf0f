package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

const DefaultRuntimeSettingsFile = "/app/config/settings.json"

// RuntimeSettings are the options editable through the API while the
// server runs.
type RuntimeSettings struct {
	TargetLanguage       string `json:"target_language"`
	TranslateBackend     string `json:"translate_backend"`
	AcceptManualCaptions bool   `json:"accept_manual_captions"`
	CronExpr             string `json:"cron_expr"`
	OutputDir            string `json:"output_dir"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.TargetLanguage) == "" {
		return fmt.Errorf("target_language is required")
	}
	if _, err := language.Parse(s.TargetLanguage); err != nil {
		return fmt.Errorf("invalid target_language: %w", err)
	}
	switch s.TranslateBackend {
	case BackendGoogle, BackendLLM, BackendNone:
	default:
		return fmt.Errorf("invalid translate_backend %q", s.TranslateBackend)
	}
	if strings.TrimSpace(s.CronExpr) == "" {
		return fmt.Errorf("cron_expr is required")
	}
	if _, err := cron.ParseStandard(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron_expr: %w", err)
	}
	if strings.TrimSpace(s.OutputDir) == "" {
		return fmt.Errorf("output_dir is required")
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		TargetLanguage:       c.Translate.TargetLanguage.String(),
		TranslateBackend:     c.Translate.Backend,
		AcceptManualCaptions: c.Captions.AcceptManual,
		CronExpr:             c.Watch.CronExpr,
		OutputDir:            c.Storage.OutputDir,
	}
}

// WithRuntimeSettings overrides env values with non-empty settings.
func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		c.ApplyRuntimeSettings(settings)
	}
}

// ApplyRuntimeSettings copies settings into c, skipping empty or invalid fields.
func (c *Config) ApplyRuntimeSettings(settings RuntimeSettings) {
	if tag, err := language.Parse(settings.TargetLanguage); err == nil {
		c.Translate.TargetLanguage = tag
	}
	if strings.TrimSpace(settings.TranslateBackend) != "" {
		c.Translate.Backend = strings.ToLower(settings.TranslateBackend)
	}
	c.Captions.AcceptManual = settings.AcceptManualCaptions
	if strings.TrimSpace(settings.CronExpr) != "" {
		c.Watch.CronExpr = settings.CronExpr
	}
	if strings.TrimSpace(settings.OutputDir) != "" {
		c.Storage.OutputDir = settings.OutputDir
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore keeps the current settings in memory and mirrors every
// update to the settings file.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
