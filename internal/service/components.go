package service

import (
	"net/http"

	"github.com/MimeLyc/subtube/internal/audio"
	"github.com/MimeLyc/subtube/internal/caption"
	"github.com/MimeLyc/subtube/internal/config"
	"github.com/MimeLyc/subtube/internal/glossary"
	"github.com/MimeLyc/subtube/internal/httpx"
	"github.com/MimeLyc/subtube/internal/llm"
	"github.com/MimeLyc/subtube/internal/media"
	"github.com/MimeLyc/subtube/internal/metadata"
	"github.com/MimeLyc/subtube/internal/pipeline"
	"github.com/MimeLyc/subtube/internal/thumbnail"
	"github.com/MimeLyc/subtube/internal/translator"
	"github.com/MimeLyc/subtube/pkg/log"
)

// NewHTTPClient returns the shared client for captions, thumbnails,
// metadata and the Google backend.
func NewHTTPClient(cfg config.Config) *http.Client {
	return httpx.NewClient(httpx.Options{
		Timeout:   cfg.Network.Timeout,
		RetryMax:  cfg.Network.Retries,
		UserAgent: cfg.UserAgent(),
	})
}

// NewTranslator builds the backend selected by cfg. It returns nil when
// translation is disabled or cannot be set up; captions are then saved
// without translations.
func NewTranslator(cfg config.Config, client *http.Client) translator.Translator {
	switch cfg.Translate.Backend {
	case config.BackendGoogle:
		return translator.NewGoogleTranslator(client, "")
	case config.BackendLLM:
		c, err := llm.NewClient(&llm.Config{
			APIKey:      cfg.LLM.APIKey,
			APIURL:      cfg.LLM.APIURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			SiteURL:     cfg.LLM.SiteURL,
			AppName:     cfg.LLM.AppName,
		})
		if err != nil {
			log.Error("Failed to create LLM client, translation disabled: %v", err)
			return nil
		}
		return translator.NewLLMTranslator(c, translator.WithGlossary(loadGlossary(cfg)))
	default:
		return nil
	}
}

// loadGlossary looks for glossary.en-<target>.json in the data dir, then
// in the output dir. A missing or broken file yields an empty glossary.
func loadGlossary(cfg config.Config) glossary.Glossary {
	path := glossary.Find(
		[]string{cfg.System.DataDir, cfg.Storage.OutputDir},
		"en", cfg.Translate.TargetLanguage.String(),
	)
	if path == "" {
		return nil
	}
	g, err := glossary.Load(path)
	if err != nil {
		log.Warn("Ignoring glossary: %v", err)
		return nil
	}
	log.Info("Loaded %d glossary terms from %s", len(g), path)
	return g
}

// NewPipeline wires the production acquirers from cfg.
func NewPipeline(cfg config.Config) *pipeline.Pipeline {
	client := NewHTTPClient(cfg)

	stage := translator.NewStage(
		NewTranslator(cfg, client),
		cfg.Translate.TargetLanguage,
		translator.WithRatePerMinute(cfg.Translate.RatePerMinute),
		translator.WithProgressEvery(cfg.Translate.ProgressEvery),
		translator.WithRetry(cfg.Translate.MaxRetries, cfg.Translate.Backoff),
	)

	audioAcq := audio.NewAcquirer(
		audio.NewYtDlp(cfg.Extractor.YtDlpPath),
		cfg.Extractor.AudioFormat,
		cfg.Extractor.AudioQuality,
		audio.WithProber(media.NewProber(cfg.Extractor.FFprobePath)),
	)
	captionAcq := caption.NewAcquirer(
		caption.NewYtDlpLister(cfg.Extractor.YtDlpPath),
		client,
		stage,
		caption.Policy{AcceptManual: cfg.Captions.AcceptManual},
	)

	return pipeline.New(
		audioAcq,
		captionAcq,
		thumbnail.NewAcquirer(client, ""),
		pipeline.WithTitleSource(metadata.NewClient(client)),
	)
}
