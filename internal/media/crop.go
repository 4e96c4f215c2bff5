package media

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/tphakala/birdhomie/internal/detection"
	"github.com/tphakala/birdhomie/internal/errors"
)

// DefaultJPEGQuality is used when no quality is configured
const DefaultJPEGQuality = 90

// CropName returns the file name of the crop for detection det on frame
func CropName(frame, det int) string {
	return fmt.Sprintf("frame_%06d_det%02d.jpg", frame, det)
}

// Crop copies the region b of img after clamping it to the frame. It
// returns nil when nothing of the box lies inside the frame.
func Crop(img *image.RGBA, b detection.BBox) *image.RGBA {
	bounds := img.Bounds()
	c := b.Clamp(bounds.Dx(), bounds.Dy())
	if c.Empty() {
		return nil
	}
	src := c.Rect().Add(bounds.Min)
	out := image.NewRGBA(image.Rect(0, 0, c.Width(), c.Height()))
	draw.Draw(out, out.Bounds(), img, src.Min, draw.Src)
	return out
}

// WriteJPEG encodes img as JPEG at path on fs, creating parent directories
func WriteJPEG(fs afero.Fs, path string, img image.Image, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileError(err, filepath.Dir(path))
	}
	f, err := fs.Create(path)
	if err != nil {
		return errors.FileError(err, path)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		_ = f.Close()
		return errors.FileError(fmt.Errorf("jpeg encode: %w", err), path)
	}
	if err := f.Close(); err != nil {
		return errors.FileError(err, path)
	}
	return nil
}
