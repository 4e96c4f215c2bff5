package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os/exec"
	"strconv"

	"github.com/spf13/afero"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/tphakala/birdhomie/internal/detection"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// AnnotatedVideoName is the file name of the annotated clip in a file's output directory
const AnnotatedVideoName = "annotated.mp4"

var boxColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Annotation is one box to draw
type Annotation struct {
	BBox       detection.BBox
	Confidence float64
}

// FrameAnnotations maps frame index to the boxes drawn on it
type FrameAnnotations map[int][]Annotation

// Annotator renders detections onto a copy of a clip
type Annotator interface {
	Annotate(ctx context.Context, src, dst string, boxes FrameAnnotations) error
}

// encoder is one ffmpeg video encoder configuration
type encoder struct {
	codec string
	args  []string
}

// encoders are tried in order; hardware first
var encoders = []encoder{
	{codec: "h264_videotoolbox", args: []string{"-b:v", "5M"}},
	{codec: "libx264", args: []string{"-preset", "fast", "-crf", "23"}},
}

// FFmpegAnnotator re-decodes the clip, draws boxes and encodes H.264
type FFmpegAnnotator struct {
	sampler    *FFmpegSampler
	ffmpegPath string
	// fs moves the encoded temp file into place; ffmpeg writes it to disk,
	// so fs must be backed by the OS filesystem
	fs  afero.Fs
	log logger.Logger
}

// NewFFmpegAnnotator creates an annotator decoding through sampler
func NewFFmpegAnnotator(sampler *FFmpegSampler) *FFmpegAnnotator {
	return &FFmpegAnnotator{
		sampler:    sampler,
		ffmpegPath: sampler.ffmpegPath,
		fs:         sampler.fs,
		log:        sampler.log,
	}
}

// Annotate writes dst with a green box and confidence label drawn for
// every annotation. Frames without annotations are copied unchanged.
func (a *FFmpegAnnotator) Annotate(ctx context.Context, src, dst string, boxes FrameAnnotations) error {
	if IsStillImage(src) {
		return errors.Newf("cannot annotate still image %s", src).
			Component("media").
			Category(errors.CategoryValidation).
			Build()
	}
	info, err := a.sampler.Open(ctx, src)
	if err != nil {
		return err
	}
	fps := info.FrameRate
	if fps <= 0 {
		fps = 25
	}

	tmp := dst + ".tmp.mp4"
	defer func() { _ = a.fs.Remove(tmp) }()

	var lastErr error
	for _, enc := range encoders {
		err := a.encode(ctx, src, tmp, info, fps, boxes, enc)
		if err == nil {
			if err := a.fs.Rename(tmp, dst); err != nil {
				return errors.FileError(err, dst)
			}
			a.log.Info("annotated video written",
				logger.String("path", dst),
				logger.String("codec", enc.codec))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		a.log.Debug("encoder failed, trying next",
			logger.String("codec", enc.codec),
			logger.Error(err))
	}
	return lastErr
}

func (a *FFmpegAnnotator) encode(ctx context.Context, src, dst string, info VideoInfo, fps float64, boxes FrameAnnotations, enc encoder) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := []string{
		"-y", "-v", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", enc.codec,
	}
	args = append(args, enc.args...)
	args = append(args, "-pix_fmt", "yuv420p", "-movflags", "+faststart", dst)

	cmd := exec.CommandContext(ctx, a.ffmpegPath, args...)
	tail := newStderrTail(stderrTailSize)
	cmd.Stderr = tail
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return errors.New(err).
			Component("media").
			Category(errors.CategoryCommandExecution).
			Context("codec", enc.codec).
			Build()
	}

	var streamErr error
	for frame, err := range a.sampler.Frames(ctx, src, 1) {
		if err != nil {
			streamErr = err
			break
		}
		if anns := boxes[frame.Index]; len(anns) > 0 {
			for _, ann := range anns {
				drawAnnotation(frame.Image, ann)
			}
		}
		if _, err := stdin.Write(frame.Image.Pix); err != nil {
			// encoder exited; Wait reports why
			break
		}
	}
	_ = stdin.Close()

	if streamErr != nil {
		cancel()
		_ = cmd.Wait()
		return streamErr
	}
	if err := cmd.Wait(); err != nil {
		return errors.New(fmt.Errorf("ffmpeg %s: %w: %s", enc.codec, err, tail.String())).
			Component("media").
			Category(errors.CategoryCommandExecution).
			Context("codec", enc.codec).
			Build()
	}
	return nil
}

// drawAnnotation draws a 2px box and the confidence 10px above its top-left corner
func drawAnnotation(img *image.RGBA, ann Annotation) {
	b := ann.BBox.Clamp(img.Bounds().Dx(), img.Bounds().Dy())
	if b.Empty() {
		return
	}
	drawRect(img, b, 2)

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(boxColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(b.X1, max(b.Y1-10, basicfont.Face7x13.Ascent)),
	}
	d.DrawString(fmt.Sprintf("%.2f", ann.Confidence))
}

func drawRect(img *image.RGBA, b detection.BBox, thickness int) {
	for t := range thickness {
		for x := b.X1; x < b.X2; x++ {
			img.SetRGBA(x, b.Y1+t, boxColor)
			img.SetRGBA(x, b.Y2-1-t, boxColor)
		}
		for y := b.Y1; y < b.Y2; y++ {
			img.SetRGBA(b.X1+t, y, boxColor)
			img.SetRGBA(b.X2-1-t, y, boxColor)
		}
	}
}
