package inference

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync/atomic"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/birdhomie/internal/detection"
	"github.com/tphakala/birdhomie/internal/httpclient"
)

// DefaultBirdClassID is the COCO class id of "bird"
const DefaultBirdClassID = 14

// DefaultMinDetectionConfidence is the detector threshold
const DefaultMinDetectionConfidence = 0.80

// YOLODetector implements detection.Detector against an object detection
// server. Frames are uploaded as JPEG to POST {endpoint}/detect; the server
// answers with {"detections":[{"class_id":14,"confidence":0.91,"bbox":[x1,y1,x2,y2]}]}.
type YOLODetector struct {
	client        *httpclient.Client
	endpoint      string
	model         string
	classID       int
	minConfidence float64
	loaded        atomic.Bool
}

// YOLOOption configures a YOLODetector
type YOLOOption func(*YOLODetector)

// WithClassID overrides DefaultBirdClassID
func WithClassID(id int) YOLOOption {
	return func(d *YOLODetector) { d.classID = id }
}

// WithMinConfidence overrides DefaultMinDetectionConfidence
func WithMinConfidence(c float64) YOLOOption {
	return func(d *YOLODetector) { d.minConfidence = c }
}

// NewYOLODetector creates a detector for the model served at endpoint
func NewYOLODetector(client *httpclient.Client, endpoint, model string, opts ...YOLOOption) *YOLODetector {
	d := &YOLODetector{
		client:        client,
		endpoint:      strings.TrimRight(endpoint, "/"),
		model:         model,
		classID:       DefaultBirdClassID,
		minConfidence: DefaultMinDetectionConfidence,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ModelName implements detection.Detector
func (d *YOLODetector) ModelName() string { return d.model }

// Load checks the server health endpoint. Once it succeeds later calls are no-ops.
func (d *YOLODetector) Load(ctx context.Context) error {
	if d.loaded.Load() {
		return nil
	}
	if err := checkHealth(ctx, d.client, d.endpoint); err != nil {
		return modelLoadError(d.model, d.endpoint, err)
	}
	d.loaded.Store(true)
	return nil
}

// Detect uploads img and returns boxes of the configured class at or above
// the minimum confidence, in server order
func (d *YOLODetector) Detect(ctx context.Context, img image.Image) ([]detection.Box, error) {
	data, err := encodeJPEG(img)
	if err != nil {
		return nil, inferenceError(d.model, "detect", err)
	}

	resp, err := d.client.PostMultipart(ctx, d.endpoint+"/detect",
		httpclient.FilePart{Field: "file", Filename: "frame.jpg", Data: data},
		map[string]string{
			"conf_threshold": fmt.Sprintf("%.2f", d.minConfidence),
			"model":          d.model,
		})
	if err != nil {
		return nil, inferenceError(d.model, "detect", err)
	}
	defer resp.Body.Close()
	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, inferenceError(d.model, "detect", err)
	}

	obj, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, inferenceError(d.model, "detect", fmt.Errorf("invalid response: %w", err))
	}
	boxes, err := d.parseDetections(obj)
	if err != nil {
		return nil, inferenceError(d.model, "detect", err)
	}
	return boxes, nil
}

func (d *YOLODetector) parseDetections(obj *jason.Object) ([]detection.Box, error) {
	items, err := obj.GetObjectArray("detections")
	if err != nil {
		return nil, fmt.Errorf("response has no detections array: %w", err)
	}

	var boxes []detection.Box
	for i, item := range items {
		classID, err := item.GetInt64("class_id")
		if err != nil {
			return nil, fmt.Errorf("detection %d: missing class_id", i)
		}
		conf, err := item.GetFloat64("confidence")
		if err != nil {
			return nil, fmt.Errorf("detection %d: missing confidence", i)
		}
		if int(classID) != d.classID || conf < d.minConfidence {
			continue
		}
		coords, err := item.GetFloat64Array("bbox")
		if err != nil || len(coords) != 4 {
			return nil, fmt.Errorf("detection %d: bbox must have 4 numbers", i)
		}
		boxes = append(boxes, detection.Box{
			BBox: detection.BBox{
				X1: int(coords[0]),
				Y1: int(coords[1]),
				X2: int(coords[2]),
				Y2: int(coords[3]),
			},
			Confidence: conf,
			ClassID:    int(classID),
		})
	}
	return boxes, nil
}

func checkHealth(ctx context.Context, client *httpclient.Client, endpoint string) error {
	resp, err := client.Get(ctx, endpoint+"/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return httpclient.CheckStatus(resp)
}
