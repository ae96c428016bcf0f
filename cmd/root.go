package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MimeLyc/subtube/internal/config"
	"github.com/MimeLyc/subtube/internal/persistence"
	"github.com/MimeLyc/subtube/pkg/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	envFile   string
	logLevel  string
	outputDir string
)

var rootCmd = &cobra.Command{
	Use:   "subtube",
	Short: "Download YouTube audio with English captions and their translation",
	Long: `subtube downloads the audio track, the English captions and the thumbnail
of YouTube videos, translates the captions and keeps a library of the results.
Run "subtube serve" for the web API and the scheduled watchlist.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

func setup() error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	level := logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	log.InitLogger(log.ParseLevel(level))
	return nil
}

// loadConfig reads the environment and layers the settings file on top.
// A missing settings file is not an error.
func loadConfig() (*config.Config, error) {
	opts := make([]config.Option, 0, 2)
	settings, err := config.LoadRuntimeSettingsFile(config.RuntimeSettingsFilePath())
	switch {
	case err == nil:
		opts = append(opts, config.WithRuntimeSettings(settings))
	case errors.Is(err, fs.ErrNotExist):
	default:
		log.Warn("Ignoring settings file: %v", err)
	}
	if outputDir != "" {
		opts = append(opts, func(c *config.Config) { c.Storage.OutputDir = outputDir })
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (persistence.Store, error) {
	if cfg.Storage.DatabaseURL == "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath()), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return persistence.Open(cfg.Storage.DatabaseURL, cfg.DBPath())
}

// Execute runs the command line.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default: $LOG_LEVEL or info)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory (default: $OUTPUT_DIR)")
}
