package inference

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/tphakala/birdhomie/internal/errors"
)

// ErrModelLoad indicates a model server could not be reached or the model
// could not be prepared. It halts the whole batch.
var ErrModelLoad = errors.NewStd("model load failed")

// uploadQuality is the JPEG quality of frames sent to the model servers
const uploadQuality = 95

func modelLoadError(model, endpoint string, cause error) error {
	return errors.New(fmt.Errorf("%w: %s: %w", ErrModelLoad, model, cause)).
		Component("inference").
		Category(errors.CategoryModelLoad).
		Context("model", model).
		Context("endpoint", endpoint).
		Build()
}

func inferenceError(model, op string, cause error) error {
	return errors.New(fmt.Errorf("%s %s: %w", model, op, cause)).
		Component("inference").
		Category(errors.CategoryInference).
		Context("model", model).
		Context("operation", op).
		Build()
}

func encodeJPEG(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: uploadQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
