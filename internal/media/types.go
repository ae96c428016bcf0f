package media

import "context"

// AudioInfo describes the audio streams of a downloaded file.
type AudioInfo struct {
	Duration float64 // seconds
	Streams  []AudioStream
}

type AudioStream struct {
	Codec      string
	SampleRate int
	Channels   int
	BitRate    int // bits per second
}

type Prober interface {
	Probe(ctx context.Context, path string) (*AudioInfo, error)
}
