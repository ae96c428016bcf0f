package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("HTTP Error 403: Forbidden")
	err := Wrap(cause, KindExtraction, "audio download failed").
		With("video_id", "dQw4w9WgXcQ").
		With("attempt", 2)

	assert.Equal(t,
		"[Extraction] audio download failed | context: attempt=2, video_id=dQw4w9WgXcQ | cause: HTTP Error 403: Forbidden",
		err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Could not download the audio track", err.UserMessage())
}

func TestKindLookupThroughWrapping(t *testing.T) {
	inner := New(KindNoEnglishCaptions, "no english track").WithUserMessage("skipped")
	wrapped := fmt.Errorf("captions: %w", inner)

	assert.True(t, IsKind(wrapped, KindNoEnglishCaptions))
	assert.False(t, IsKind(wrapped, KindIO))
	assert.Equal(t, KindNoEnglishCaptions, KindOf(wrapped))
	assert.Equal(t, "skipped", UserMessage(wrapped))

	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "Unexpected error", UserMessage(errors.New("plain")))
	assert.Equal(t, "", UserMessage(nil))
}
