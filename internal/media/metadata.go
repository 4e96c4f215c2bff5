package media

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"
)

// VideoInfo describes the first video stream of a file
type VideoInfo struct {
	FrameRate   float64 // frames per second, 0 when unknown
	Width       int
	Height      int
	TotalFrames int
}

// Duration returns the clip length in seconds, 0 when the frame rate is unknown
func (v VideoInfo) Duration() float64 {
	if v.FrameRate <= 0 {
		return 0
	}
	return float64(v.TotalFrames) / v.FrameRate
}

// readStreamInfo runs ffprobe on path
func readStreamInfo(ctx context.Context, ffprobePath, path string) (VideoInfo, error) {
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_streams",
		"-print_format", "json",
		path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return VideoInfo{}, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return VideoInfo{}, unreadable(path, "ffprobe failed: "+msg, nil)
	}

	info, err := parseStreamInfo(out)
	if err != nil {
		return VideoInfo{}, unreadable(path, err.Error(), nil)
	}
	return info, nil
}

// parseStreamInfo extracts VideoInfo from ffprobe -show_streams JSON
func parseStreamInfo(data []byte) (VideoInfo, error) {
	obj, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("invalid ffprobe output: %w", err)
	}
	streams, err := obj.GetObjectArray("streams")
	if err != nil || len(streams) == 0 {
		return VideoInfo{}, fmt.Errorf("no video stream")
	}
	s := streams[0]

	width, _ := s.GetInt64("width")
	height, _ := s.GetInt64("height")
	if width <= 0 || height <= 0 {
		return VideoInfo{}, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	info := VideoInfo{Width: int(width), Height: int(height)}

	for _, key := range []string{"avg_frame_rate", "r_frame_rate"} {
		if r, err := s.GetString(key); err == nil {
			if fps := parseRate(r); fps > 0 {
				info.FrameRate = fps
				break
			}
		}
	}

	if nb, err := s.GetString("nb_frames"); err == nil {
		if n, err := strconv.Atoi(nb); err == nil && n > 0 {
			info.TotalFrames = n
		}
	}
	if info.TotalFrames == 0 && info.FrameRate > 0 {
		if d, err := s.GetString("duration"); err == nil {
			if secs, err := strconv.ParseFloat(d, 64); err == nil && secs > 0 {
				info.TotalFrames = int(math.Round(secs * info.FrameRate))
			}
		}
	}
	return info, nil
}

// parseRate parses an ffprobe rational such as "30000/1001"; 0 when invalid
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
