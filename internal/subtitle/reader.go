package subtitle

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// JSONReader reads the caption JSON array written by JSONWriter.
type JSONReader struct{}

func NewReader() Reader {
	return &JSONReader{}
}

func (r *JSONReader) Read(path string) (*File, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".json") {
		return nil, fmt.Errorf("only JSON caption files are supported: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("caption file does not exist: %s", path)
		}
		return nil, fmt.Errorf("failed to read caption file: %w", err)
	}

	return ParseJSON(data)
}

// ParseJSON decodes a caption JSON array and detects its source language.
func ParseJSON(data []byte) (*File, error) {
	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("failed to parse caption file: %w", err)
	}
	if lines == nil {
		lines = []Line{}
	}
	return &File{
		Lines:    lines,
		Language: DetectLanguage(lines),
	}, nil
}

// DetectLanguage returns the ISO 639-1 code most lines are written in, or
// an empty string when nothing could be detected.
func DetectLanguage(lines []Line) string {
	counts := make(map[string]int)
	for _, line := range lines {
		if strings.TrimSpace(line.Text) == "" {
			continue
		}
		lang := whatlanggo.DetectLang(line.Text).Iso6391()
		if lang == "" {
			continue
		}
		counts[lang]++
	}

	var top string
	var topCount int
	for lang, count := range counts {
		if count > topCount || (count == topCount && lang < top) {
			top = lang
			topCount = count
		}
	}
	return top
}
