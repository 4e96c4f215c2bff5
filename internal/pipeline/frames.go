package pipeline

import (
	"context"
	"path"
	"path/filepath"
	"strconv"

	"github.com/tphakala/birdhomie/internal/classifier"
	"github.com/tphakala/birdhomie/internal/detection"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
	"github.com/tphakala/birdhomie/internal/media"
)

// detect samples the file, runs detection on every sampled frame, saves a
// crop per box and classifies the boxes that are clear of the frame edge
func (p *Processor) detect(ctx context.Context, log logger.Logger, fileID uint, abs string, det detection.Detector, cls classifier.Classifier) (*outcome, media.FrameAnnotations, error) {
	info, err := p.deps.Sampler.Open(ctx, abs)
	if err != nil {
		return nil, nil, err
	}
	log.Info("video processing started",
		logger.Int("width", info.Width),
		logger.Int("height", info.Height),
		logger.Float64("fps", info.FrameRate),
		logger.Int("total_frames", info.TotalFrames))

	id := strconv.FormatUint(uint64(fileID), 10)
	cropDir := filepath.Join(p.outputDir(fileID), "crops")
	logInterval := max(100, info.TotalFrames/10)

	out := &outcome{duration: info.Duration()}
	annotations := make(media.FrameAnnotations)

	for frame, err := range p.deps.Sampler.Frames(ctx, abs, p.cfg.FrameSkip) {
		if err != nil {
			return nil, nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		out.frames++
		if frame.Index > 0 && frame.Index%logInterval == 0 {
			log.Info("video processing progress",
				logger.Int("frame", frame.Index),
				logger.Int("total_frames", info.TotalFrames),
				logger.Int("detections_so_far", len(out.records)))
		}

		boxes, err := det.Detect(ctx, frame.Image)
		if err != nil {
			return nil, nil, err
		}
		width, height := frame.Image.Bounds().Dx(), frame.Image.Bounds().Dy()

		for i, box := range boxes {
			crop := media.Crop(frame.Image, box.BBox)
			if crop == nil {
				log.Debug("detection outside frame, ignored",
					logger.Int("frame", frame.Index),
					logger.String("bbox", box.BBox.String()))
				continue
			}
			name := media.CropName(frame.Index, i)
			if err := media.WriteJPEG(p.deps.Fs, filepath.Join(cropDir, name), crop, p.cfg.JPEGQuality); err != nil {
				return nil, nil, err
			}

			rec := detection.Record{
				FrameIndex:          frame.Index,
				Timestamp:           timestamp(frame.Index, info.FrameRate),
				BBox:                box.BBox,
				DetectionConfidence: box.Confidence,
				DetectionModel:      det.ModelName(),
				CropPath:            path.Join(id, "crops", name),
				IsEdge:              detection.IsEdge(box.BBox, width, height, p.cfg.EdgeMargin),
			}
			if rec.IsEdge {
				out.edge++
			} else {
				res := cls.Classify(ctx, crop)
				rec.SetSpecies(res.Label, res.Confidence, cls.ModelName())
				if res.IsUnknown() {
					out.unclassified++
				} else {
					out.classified++
				}
			}
			if err := rec.Validate(); err != nil {
				return nil, nil, errors.New(err).
					Component("pipeline").
					Category(errors.CategoryValidation).
					Context("frame", frame.Index).
					Build()
			}
			out.records = append(out.records, rec)
			annotations[frame.Index] = append(annotations[frame.Index], media.Annotation{
				BBox:       box.BBox,
				Confidence: box.Confidence,
			})
		}
	}

	log.Info("video processing complete",
		logger.Int("frames_sampled", out.frames),
		logger.Int("total_detections", len(out.records)),
		logger.Float64("duration", out.duration))
	return out, annotations, nil
}

func timestamp(frame int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(frame) / fps
}
