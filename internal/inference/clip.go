package inference

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync/atomic"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/birdhomie/internal/httpclient"
)

// CLIPEmbedder implements classifier.Embedder against an embedding server
// exposing POST /embed/text (JSON) and POST /embed/image (multipart JPEG).
type CLIPEmbedder struct {
	client   *httpclient.Client
	endpoint string
	model    string
	loaded   atomic.Bool
}

// NewCLIPEmbedder creates an embedder for the model served at endpoint
func NewCLIPEmbedder(client *httpclient.Client, endpoint, model string) *CLIPEmbedder {
	return &CLIPEmbedder{
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
	}
}

// ModelName implements classifier.Embedder
func (e *CLIPEmbedder) ModelName() string { return e.model }

// Load checks the server health endpoint
func (e *CLIPEmbedder) Load(ctx context.Context) error {
	if e.loaded.Load() {
		return nil
	}
	if err := checkHealth(ctx, e.client, e.endpoint); err != nil {
		return modelLoadError(e.model, e.endpoint, err)
	}
	e.loaded.Store(true)
	return nil
}

// EmbedTexts returns one embedding per text, in order
func (e *CLIPEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.PostJSON(ctx, e.endpoint+"/embed/text", map[string]any{
		"model": e.model,
		"texts": texts,
	})
	if err != nil {
		return nil, inferenceError(e.model, "embed text", err)
	}
	defer resp.Body.Close()
	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, inferenceError(e.model, "embed text", err)
	}

	obj, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, inferenceError(e.model, "embed text", fmt.Errorf("invalid response: %w", err))
	}
	rows, err := obj.GetValueArray("embeddings")
	if err != nil {
		return nil, inferenceError(e.model, "embed text", fmt.Errorf("response has no embeddings: %w", err))
	}
	if len(rows) != len(texts) {
		return nil, inferenceError(e.model, "embed text",
			fmt.Errorf("got %d embeddings for %d texts", len(rows), len(texts)))
	}

	out := make([][]float32, len(rows))
	for i, row := range rows {
		values, err := row.Array()
		if err != nil {
			return nil, inferenceError(e.model, "embed text", fmt.Errorf("embedding %d is not an array", i))
		}
		if out[i], err = toFloat32(values); err != nil {
			return nil, inferenceError(e.model, "embed text", fmt.Errorf("embedding %d: %w", i, err))
		}
	}
	return out, nil
}

// EmbedImage returns the embedding of img
func (e *CLIPEmbedder) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	data, err := encodeJPEG(img)
	if err != nil {
		return nil, inferenceError(e.model, "embed image", err)
	}
	resp, err := e.client.PostMultipart(ctx, e.endpoint+"/embed/image",
		httpclient.FilePart{Field: "file", Filename: "crop.jpg", Data: data},
		map[string]string{"model": e.model})
	if err != nil {
		return nil, inferenceError(e.model, "embed image", err)
	}
	defer resp.Body.Close()
	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, inferenceError(e.model, "embed image", err)
	}

	obj, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, inferenceError(e.model, "embed image", fmt.Errorf("invalid response: %w", err))
	}
	values, err := obj.GetValueArray("embedding")
	if err != nil {
		return nil, inferenceError(e.model, "embed image", fmt.Errorf("response has no embedding: %w", err))
	}
	vec, err := toFloat32(values)
	if err != nil {
		return nil, inferenceError(e.model, "embed image", err)
	}
	return vec, nil
}

func toFloat32(values []*jason.Value) ([]float32, error) {
	out := make([]float32, len(values))
	for i, v := range values {
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		out[i] = float32(f)
	}
	return out, nil
}
