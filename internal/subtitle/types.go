package subtitle

import (
	"math"
	"sort"
	"time"
)

// Reader loads a caption file.
type Reader interface {
	Read(path string) (*File, error)
}

// Writer persists a caption file.
type Writer interface {
	Write(path string, subtitle *File) error
}

// Line is one caption entry. Start and Duration are seconds.
type Line struct {
	Text           string  `json:"text"`
	Start          float64 `json:"start"`
	Duration       float64 `json:"duration"`
	TranslatedText string  `json:"translated_text"`
}

func (l Line) End() float64 {
	return l.Start + l.Duration
}

// Covers reports whether t falls inside the closed interval [Start, End].
func (l Line) Covers(t float64) bool {
	return l.Start <= t && t <= l.End()
}

func (l Line) StartTime() time.Duration {
	return seconds(l.Start)
}

func (l Line) EndTime() time.Duration {
	return seconds(l.End())
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// File is a caption track plus the language detected from its text.
type File struct {
	Lines    []Line
	Language string
}

// SortByStart orders lines by start time, keeping the relative order of
// lines that start together.
func SortByStart(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Start < lines[j].Start
	})
}
