// Package translator translates caption text line by line. Failures are
// per line: a line that cannot be translated keeps an empty translation.
package translator

import (
	"context"
	"errors"

	"golang.org/x/text/language"
)

// Translator translates a single text from English into target.
type Translator interface {
	Translate(ctx context.Context, text string, target language.Tag) (string, error)
	Name() string
}

// ErrRateLimited marks failures worth retrying after a pause.
var ErrRateLimited = errors.New("translation backend rate limited")

// LineResult is the outcome of translating one caption line.
type LineResult struct {
	Index       int
	Translation string
	Attempts    int
	Err         error
}

// LineError records a line that kept an empty translation.
type LineError struct {
	Index int
	Err   error
}

type Report struct {
	Backend    string
	Lines      int
	Attempted  int
	Translated int
	Errors     []LineError
}

func (r Report) Failed() int {
	return len(r.Errors)
}
