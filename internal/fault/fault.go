// Package fault defines the typed errors that cross component boundaries.
// Error returns the technical detail, UserMessage the short text shown to
// whoever triggered the run.
package fault

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindExtraction
	KindFileNotFound
	KindNoEnglishCaptions
	KindThumbnail
	KindTranslation
	KindIO
	KindConfig
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindExtraction:
		return "Extraction"
	case KindFileNotFound:
		return "FileNotFound"
	case KindNoEnglishCaptions:
		return "NoEnglishCaptions"
	case KindThumbnail:
		return "Thumbnail"
	case KindTranslation:
		return "Translation"
	case KindIO:
		return "IO"
	case KindConfig:
		return "Config"
	case KindNetwork:
		return "Network"
	default:
		return "Unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error

	// User overrides the kind's default user-facing text.
	User string
}

func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

func Wrap(err error, kind Kind, message string) *Error {
	e := New(kind, message)
	e.Cause = err
	return e
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Kind, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "context: "+strings.Join(ctxParts, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets the short text returned by UserMessage.
func (e *Error) WithUserMessage(msg string) *Error {
	e.User = msg
	return e
}

func (e *Error) UserMessage() string {
	if e.User != "" {
		return e.User
	}
	return defaultUserMessage(e.Kind)
}

func defaultUserMessage(kind Kind) string {
	switch kind {
	case KindValidation:
		return "Invalid YouTube URL"
	case KindExtraction:
		return "Could not download the audio track"
	case KindFileNotFound:
		return "Downloaded audio file could not be found"
	case KindNoEnglishCaptions:
		return "Video has no English captions and was skipped"
	case KindThumbnail:
		return "Thumbnail unavailable"
	case KindTranslation:
		return "Caption translation failed"
	case KindIO:
		return "Could not write output files"
	case KindConfig:
		return "Configuration is invalid"
	case KindNetwork:
		return "Network request failed"
	default:
		return "Unexpected error"
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}

// UserMessage extracts the user-facing text of err, falling back to the
// unknown-kind message for plain errors.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.UserMessage()
	}
	return defaultUserMessage(KindUnknown)
}
