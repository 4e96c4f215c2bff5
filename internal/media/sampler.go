// Package media decodes camera clips into frames and writes the derived
// outputs: bird crops and the annotated video.
//
// Video is handled by ffmpeg and ffprobe running as child processes. Still
// images are decoded in process and behave as a one-frame video.
package media

import (
	"context"
	"image"
	"io"
	"iter"
	"os/exec"

	"github.com/spf13/afero"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// Frame is one decoded frame
type Frame struct {
	Index int // position in the decoded stream, starting at 0
	Image *image.RGBA
}

// Sampler reads clips frame by frame
type Sampler interface {
	// Open returns stream metadata. Unreadable files yield ErrUnreadableMedia.
	Open(ctx context.Context, path string) (VideoInfo, error)
	// Frames yields every stride-th frame in increasing index order. Each
	// call starts from frame 0. A decode failure is yielded as the final
	// element with ErrDecode; frames yielded before it remain valid.
	Frames(ctx context.Context, path string, stride int) iter.Seq2[Frame, error]
}

// FFmpegSampler implements Sampler with ffmpeg and ffprobe
type FFmpegSampler struct {
	ffmpegPath  string
	ffprobePath string
	fs          afero.Fs
	log         logger.Logger
}

// SamplerOption configures an FFmpegSampler
type SamplerOption func(*FFmpegSampler)

// WithFs sets the filesystem used for still images
func WithFs(fs afero.Fs) SamplerOption {
	return func(s *FFmpegSampler) { s.fs = fs }
}

// WithSamplerLogger sets the logger
func WithSamplerLogger(l logger.Logger) SamplerOption {
	return func(s *FFmpegSampler) { s.log = l }
}

// NewFFmpegSampler creates a sampler using the given binaries
func NewFFmpegSampler(ffmpegPath, ffprobePath string, opts ...SamplerOption) *FFmpegSampler {
	s := &FFmpegSampler{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		fs:          afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}
	return s
}

// Open reads the stream metadata of path
func (s *FFmpegSampler) Open(ctx context.Context, path string) (VideoInfo, error) {
	if IsStillImage(path) {
		img, err := decodeStill(s.fs, path)
		if err != nil {
			return VideoInfo{}, err
		}
		b := img.Bounds()
		return VideoInfo{FrameRate: 1, Width: b.Dx(), Height: b.Dy(), TotalFrames: 1}, nil
	}
	return readStreamInfo(ctx, s.ffprobePath, path)
}

// Frames implements Sampler. The ffmpeg process lives only while the
// sequence is iterated and is killed when the consumer stops early.
func (s *FFmpegSampler) Frames(ctx context.Context, path string, stride int) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		if stride < 1 {
			yield(Frame{}, errors.Newf("stride must be at least 1, got %d", stride).
				Component("media").
				Category(errors.CategoryValidation).
				Build())
			return
		}

		if IsStillImage(path) {
			img, err := decodeStill(s.fs, path)
			if err != nil {
				yield(Frame{}, err)
				return
			}
			yield(Frame{Index: 0, Image: img}, nil)
			return
		}

		info, err := s.Open(ctx, path)
		if err != nil {
			yield(Frame{}, err)
			return
		}
		s.streamFrames(ctx, path, info, stride, yield)
	}
}

func (s *FFmpegSampler) streamFrames(ctx context.Context, path string, info VideoInfo, stride int, yield func(Frame, error) bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-")
	tail := newStderrTail(stderrTailSize)
	cmd.Stderr = tail

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		yield(Frame{}, unreadable(path, "ffmpeg pipe failed", err))
		return
	}
	if err := cmd.Start(); err != nil {
		yield(Frame{}, unreadable(path, "ffmpeg start failed", err))
		return
	}

	waited := false
	defer func() {
		if !waited {
			cancel()
			_ = cmd.Wait()
		}
	}()

	frameSize := info.Width * info.Height * 4
	scratch := make([]byte, frameSize)
	idx := 0
	for ; ; idx++ {
		keep := idx%stride == 0
		buf := scratch
		if keep {
			buf = make([]byte, frameSize)
		}

		_, err := io.ReadFull(stdout, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				yield(Frame{}, ctx.Err())
				return
			}
			reason := "read failed"
			if errors.Is(err, io.ErrUnexpectedEOF) {
				reason = "truncated frame"
			}
			waited = true
			_ = cmd.Wait()
			yield(Frame{}, decodeFailed(path, reason, idx, tail.String()))
			return
		}

		if keep {
			img := &image.RGBA{
				Pix:    buf,
				Stride: info.Width * 4,
				Rect:   image.Rect(0, 0, info.Width, info.Height),
			}
			if !yield(Frame{Index: idx, Image: img}, nil) {
				return
			}
		}
	}

	waited = true
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			yield(Frame{}, ctx.Err())
			return
		}
		yield(Frame{}, decodeFailed(path, "ffmpeg exited with error", idx, tail.String()))
		return
	}

	if idx == 0 {
		yield(Frame{}, decodeFailed(path, "no frames decoded", 0, tail.String()))
		return
	}
	s.log.Debug("frames decoded",
		logger.String("path", path),
		logger.Int("frames", idx),
		logger.Int("stride", stride))
}
