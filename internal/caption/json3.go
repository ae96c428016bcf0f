package caption

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/subtube/internal/subtitle"
)

type json3Doc struct {
	Events []struct {
		StartMs    int64 `json:"tStartMs"`
		DurationMs int64 `json:"dDurationMs"`
		Segs       []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// parseJSON3 converts YouTube's json3 timed text into caption lines.
// Events without text, such as window definitions and bare line breaks,
// are dropped. Line breaks inside an event become spaces.
func parseJSON3(data []byte) ([]subtitle.Line, error) {
	var doc json3Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse json3 captions: %w", err)
	}

	lines := make([]subtitle.Line, 0, len(doc.Events))
	for _, ev := range doc.Events {
		var sb strings.Builder
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
		text := strings.Join(strings.Fields(strings.ReplaceAll(sb.String(), "\n", " ")), " ")
		if text == "" {
			continue
		}
		lines = append(lines, subtitle.Line{
			Text:     text,
			Start:    float64(ev.StartMs) / 1000,
			Duration: float64(ev.DurationMs) / 1000,
		})
	}

	subtitle.SortByStart(lines)
	return lines, nil
}
