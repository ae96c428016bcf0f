package subtitle

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// JSONWriter writes captions as an indented JSON array. The file is
// replaced atomically so readers never see a partial track.
type JSONWriter struct{}

func NewWriter() Writer {
	return &JSONWriter{}
}

func (w *JSONWriter) Write(path string, subtitle *File) error {
	if subtitle == nil {
		return fmt.Errorf("subtitle data is empty")
	}

	lines := subtitle.Lines
	if lines == nil {
		lines = []Line{}
	}
	content, err := json.MarshalIndent(lines, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode captions: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write caption file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to move caption file into place: %w", err)
	}
	return nil
}

// SRTWriter exports captions for ordinary players. Translated text, when
// present, is placed on a second line under the source text.
type SRTWriter struct{}

func NewSRTWriter() Writer {
	return &SRTWriter{}
}

func (w *SRTWriter) Write(path string, subtitle *File) error {
	if subtitle == nil {
		return fmt.Errorf("subtitle data is empty")
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for i, line := range subtitle.Lines {
		fmt.Fprintf(writer, "%d\n", i+1)
		fmt.Fprintf(writer, "%s --> %s\n", formatDuration(line.StartTime()), formatDuration(line.EndTime()))
		fmt.Fprintf(writer, "%s\n", line.Text)
		if line.TranslatedText != "" {
			fmt.Fprintf(writer, "%s\n", line.TranslatedText)
		}
		fmt.Fprint(writer, "\n")
	}

	return writer.Flush()
}

// formatDuration renders d as an SRT timestamp.
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
