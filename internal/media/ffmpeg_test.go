package media

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/birdhomie/internal/detection"
)

// skipIfNoFFmpeg skips tests that need ffmpeg and ffprobe on PATH
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available, skipping test", bin)
		}
	}
}

// makeClip renders a 64x48 test pattern of frames frames at 10 fps
func makeClip(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	cmd := exec.CommandContext(t.Context(), "ffmpeg", "-v", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=10",
		"-frames:v", strconv.Itoa(frames),
		"-pix_fmt", "yuv420p",
		path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Skipf("cannot render test clip: %v: %s", err, out)
	}
	return path
}

func TestFFmpegSamplerStride(t *testing.T) {
	skipIfNoFFmpeg(t)
	defer goleak.VerifyNone(t)

	clip := makeClip(t, 20)
	s := NewFFmpegSampler("ffmpeg", "ffprobe", WithSamplerLogger(quietLogger()))

	info, err := s.Open(t.Context(), clip)
	require.NoError(t, err)
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)
	assert.InDelta(t, 10.0, info.FrameRate, 0.01)
	assert.Equal(t, 20, info.TotalFrames)

	var indices []int
	for f, err := range s.Frames(t.Context(), clip, 5) {
		require.NoError(t, err)
		assert.Equal(t, 64, f.Image.Bounds().Dx())
		indices = append(indices, f.Index)
	}
	assert.Equal(t, []int{0, 5, 10, 15}, indices)

	// a second pass restarts at frame 0
	for f, err := range s.Frames(t.Context(), clip, 7) {
		require.NoError(t, err)
		assert.Equal(t, 0, f.Index)
		break
	}
}

func TestFFmpegSamplerUnreadable(t *testing.T) {
	skipIfNoFFmpeg(t)

	path := filepath.Join(t.TempDir(), "broken.mp4")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a video"), 0o644))

	s := NewFFmpegSampler("ffmpeg", "ffprobe", WithSamplerLogger(quietLogger()))
	_, err := s.Open(t.Context(), path)
	assert.ErrorIs(t, err, ErrUnreadableMedia)
}

func TestFFmpegAnnotator(t *testing.T) {
	skipIfNoFFmpeg(t)

	clip := makeClip(t, 10)
	s := NewFFmpegSampler("ffmpeg", "ffprobe", WithSamplerLogger(quietLogger()))
	a := NewFFmpegAnnotator(s)

	dst := filepath.Join(t.TempDir(), AnnotatedVideoName)
	err := a.Annotate(t.Context(), clip, dst, FrameAnnotations{
		0: {{BBox: detection.BBox{X1: 10, Y1: 20, X2: 40, Y2: 40}, Confidence: 0.91}},
	})
	if err != nil {
		t.Skipf("no usable h264 encoder: %v", err)
	}

	info, err := s.Open(t.Context(), dst)
	require.NoError(t, err)
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 10, info.TotalFrames)
}
