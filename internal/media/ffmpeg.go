package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/MimeLyc/subtube/pkg/log"
)

// ErrProbeUnavailable means ffprobe is not installed.
var ErrProbeUnavailable = errors.New("ffprobe not available")

type ffprobe struct {
	cmd string
}

func NewProber(cmd string) Prober {
	if cmd == "" {
		cmd = "ffprobe"
	}
	return ffprobe{cmd: cmd}
}

// Probe reads the audio streams and container duration of path.
func (f ffprobe) Probe(ctx context.Context, path string) (*AudioInfo, error) {
	cmdPath, err := exec.LookPath(f.cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, cmdPath, probeArgs(path)...)
	output, err := cmd.Output()
	if err != nil {
		log.Error("Failed to run ffprobe on %s: %v", path, err)
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbeOutput(output)
}

// Verify fails when path holds no audio stream. A missing ffprobe is not
// treated as a failure.
func Verify(ctx context.Context, p Prober, path string) error {
	if p == nil {
		return nil
	}
	info, err := p.Probe(ctx, path)
	if errors.Is(err, ErrProbeUnavailable) {
		log.Debug("Skipping audio verification of %s: %v", path, err)
		return nil
	}
	if err != nil {
		return err
	}
	if len(info.Streams) == 0 {
		return fmt.Errorf("%s contains no audio stream", path)
	}
	log.Debug("Verified %s: codec=%s duration=%.1fs", path, info.Streams[0].Codec, info.Duration)
	return nil
}

func parseProbeOutput(output []byte) (*AudioInfo, error) {
	var probeResult struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
			BitRate    string `json:"bit_rate"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
			BitRate  string `json:"bit_rate"`
		} `json:"format"`
	}

	if err := json.Unmarshal(output, &probeResult); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &AudioInfo{}
	info.Duration, _ = strconv.ParseFloat(probeResult.Format.Duration, 64)
	for _, stream := range probeResult.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		s := AudioStream{
			Codec:    stream.CodecName,
			Channels: stream.Channels,
		}
		s.SampleRate, _ = strconv.Atoi(stream.SampleRate)
		bitRate := stream.BitRate
		if bitRate == "" {
			bitRate = probeResult.Format.BitRate
		}
		s.BitRate, _ = strconv.Atoi(bitRate)
		info.Streams = append(info.Streams, s)
	}
	return info, nil
}

func probeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		"-select_streams", "a",
		path,
	}
}
