package translator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MimeLyc/subtube/internal/progress"
	"github.com/MimeLyc/subtube/internal/subtitle"
	"github.com/MimeLyc/subtube/pkg/log"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"
)

// Stage fills TranslatedText for every caption line. A nil Translator means
// the backend is unavailable and every translation stays empty.
type Stage struct {
	translator    Translator
	target        language.Tag
	limiter       *rate.Limiter
	progressEvery int
	maxRetries    int
	backoff       time.Duration
}

type StageOption func(*Stage)

// WithRatePerMinute caps backend requests; zero or less disables the cap.
func WithRatePerMinute(rpm float64) StageOption {
	return func(s *Stage) {
		if rpm <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rpm/60.0), 1)
	}
}

func WithProgressEvery(n int) StageOption {
	return func(s *Stage) {
		if n > 0 {
			s.progressEvery = n
		}
	}
}

// WithRetry sets how often a rate limited line is retried and the base
// pause, which grows linearly per attempt.
func WithRetry(maxRetries int, backoff time.Duration) StageOption {
	return func(s *Stage) {
		s.maxRetries = max(maxRetries, 0)
		s.backoff = backoff
	}
}

func NewStage(t Translator, target language.Tag, opts ...StageOption) *Stage {
	s := &Stage{
		translator:    t,
		target:        target,
		limiter:       rate.NewLimiter(rate.Limit(2), 1),
		progressEvery: 10,
		maxRetries:    2,
		backoff:       2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether a backend is configured.
func (s *Stage) Available() bool {
	return s != nil && s.translator != nil
}

// Run translates lines in order and returns a copy with TranslatedText set.
// It never fails as a whole: per line errors end up in the report.
func (s *Stage) Run(ctx context.Context, lines []subtitle.Line, onProgress func(string)) ([]subtitle.Line, Report) {
	out := make([]subtitle.Line, len(lines))
	copy(out, lines)
	for i := range out {
		out[i].TranslatedText = ""
	}

	report := Report{Lines: len(lines)}
	if !s.Available() {
		return out, report
	}
	report.Backend = s.translator.Name()

	results := make([]LineResult, 0, len(lines))
	for i, line := range lines {
		results = append(results, s.translateLine(ctx, i, line.Text))

		done := i + 1
		if onProgress != nil && (done%s.progressEvery == 0 || done == len(lines)) {
			onProgress(progress.Translating(float64(done) / float64(len(lines)) * 100))
		}
	}

	for _, r := range results {
		if r.Attempts > 0 {
			report.Attempted++
		}
		if r.Err != nil {
			report.Errors = append(report.Errors, LineError{Index: r.Index, Err: r.Err})
			continue
		}
		out[r.Index].TranslatedText = r.Translation
		if r.Translation != "" {
			report.Translated++
		}
	}

	if report.Failed() > 0 {
		log.Warn("Translation via %s left %d of %d lines untranslated (first error: %v)",
			report.Backend, report.Failed(), report.Lines, report.Errors[0].Err)
	}
	return out, report
}

func (s *Stage) translateLine(ctx context.Context, index int, text string) LineResult {
	result := LineResult{Index: index}
	if strings.TrimSpace(text) == "" {
		return result
	}

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Duration(attempt)*s.backoff); err != nil {
				result.Err = err
				return result
			}
		}
		if err := s.limiter.Wait(ctx); err != nil {
			result.Err = err
			return result
		}

		result.Attempts++
		translated, err := s.translator.Translate(ctx, text, s.target)
		if err == nil {
			result.Translation = translated
			result.Err = nil
			return result
		}
		result.Err = err
		log.Debug("Line %d translation attempt %d failed: %v", index, result.Attempts, err)
		if !errors.Is(err, ErrRateLimited) {
			return result
		}
	}
	return result
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
