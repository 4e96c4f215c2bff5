package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsEdge(t *testing.T) {
	t.Parallel()

	const w, h, m = 1920, 1080, 20

	tests := []struct {
		name string
		box  BBox
		want bool
	}{
		{"centered", BBox{500, 300, 700, 500}, false},
		{"exactly on margin", BBox{20, 20, 1900, 1060}, false},
		{"left", BBox{19, 300, 200, 500}, true},
		{"top", BBox{500, 5, 700, 500}, true},
		{"right", BBox{1700, 300, 1901, 500}, true},
		{"bottom", BBox{500, 900, 700, 1061}, true},
		{"full frame", BBox{0, 0, w, h}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsEdge(tt.box, w, h, m))
		})
	}
}

func TestIsEdgeZeroMargin(t *testing.T) {
	t.Parallel()
	assert.False(t, IsEdge(BBox{0, 0, 640, 480}, 640, 480, 0))
	assert.True(t, IsEdge(BBox{-1, 0, 640, 480}, 640, 480, 0))
}

func TestBBoxClamp(t *testing.T) {
	t.Parallel()

	b := BBox{X1: -10, Y1: 5, X2: 700, Y2: 500}.Clamp(640, 480)
	assert.Equal(t, BBox{X1: 0, Y1: 5, X2: 640, Y2: 480}, b)
	assert.Equal(t, 640, b.Width())
	assert.Equal(t, 475, b.Height())
	assert.False(t, b.Empty())

	outside := BBox{X1: 700, Y1: 10, X2: 800, Y2: 20}.Clamp(640, 480)
	assert.True(t, outside.Empty())
}

func TestRecordSpecies(t *testing.T) {
	t.Parallel()

	r := Record{FrameIndex: 10, DetectionConfidence: 0.9, DetectionModel: "yolov8n"}
	assert.False(t, r.Classified())
	require.NoError(t, r.Validate())

	r.SetSpecies("Parus major", 0.93, "bioclip-2")
	assert.True(t, r.Classified())
	assert.Equal(t, "Parus major", *r.SpeciesLabel)

	bad := r
	c := 1.5
	bad.SpeciesConfidence = &c
	assert.Error(t, bad.Validate())

	bad = r
	bad.DetectionModel = ""
	assert.Error(t, bad.Validate())
}

func TestMapperRoundTrip(t *testing.T) {
	t.Parallel()

	r := Record{
		FrameIndex:          25,
		Timestamp:           1.0,
		BBox:                BBox{10, 20, 110, 220},
		DetectionConfidence: 0.88,
		DetectionModel:      "yolov8n",
		CropPath:            "7/crops/frame_000025_det00.jpg",
	}
	r.SetSpecies("Parus major", 0.91, "bioclip-2")

	e := ToEntity(&r)
	assert.Zero(t, e.VisitID)
	assert.Equal(t, 25, e.FrameNumber)
	assert.Equal(t, 220, e.BBoxY2)
	assert.Equal(t, "bioclip-2", *e.SpeciesConfidenceModel)

	back := FromEntity(&e, "Parus major")
	assert.Equal(t, r, back)

	edge := Record{FrameIndex: 1, DetectionConfidence: 0.85, DetectionModel: "yolov8n", IsEdge: true}
	ee := ToEntity(&edge)
	assert.True(t, ee.IsEdgeDetection)
	assert.Nil(t, ee.SpeciesConfidence)
	assert.False(t, FromEntity(&ee, "Parus major").Classified())
}
