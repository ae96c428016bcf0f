package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MimeLyc/subtube/internal/glossary"
	"github.com/MimeLyc/subtube/internal/llm"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

type chatClient interface {
	SimpleChat(ctx context.Context, prompt string, systemPrompt string) (string, error)
}

// llmTranslator asks a chat model for one line at a time.
type llmTranslator struct {
	client   chatClient
	glossary glossary.Glossary
}

type LLMOption func(*llmTranslator)

// WithGlossary makes the model keep the glossary translation of every term
// found in a line.
func WithGlossary(g glossary.Glossary) LLMOption {
	return func(t *llmTranslator) { t.glossary = g }
}

func NewLLMTranslator(client chatClient, opts ...LLMOption) Translator {
	t := &llmTranslator{client: client}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *llmTranslator) Name() string { return "llm" }

func (t *llmTranslator) Translate(ctx context.Context, text string, target language.Tag) (string, error) {
	out, err := t.client.SimpleChat(ctx, text, systemPrompt(target, t.glossary.Match(text)))
	if err != nil {
		var se *llm.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return "", err
	}
	return cleanOutput(out), nil
}

func systemPrompt(target language.Tag, terms []glossary.Term) string {
	name := display.English.Languages().Name(target)
	if name == "" {
		name = target.String()
	}
	prompt := fmt.Sprintf(
		"You translate English video captions into %s. "+
			"Reply with the translation of the user's line only, on a single line, without quotes or notes. "+
			"Keep names and numbers unchanged.", name)
	if len(terms) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString(" Translate these terms exactly as given:")
	for _, term := range terms {
		fmt.Fprintf(&b, "\n%s => %s", term.Source, term.Target)
	}
	return b.String()
}

func cleanOutput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
