// Package detect contains the object detection plumbing shared by the hold colour
// detector and the hold type classifier: model input preparation, YOLO output
// decoding, non-maximum suppression and detection filters.
package detect

import (
	"context"
	"image"
	"strings"
)

// Detection is one labelled bounding box in image coordinates.
type Detection struct {
	Box   image.Rectangle `json:"box"`
	Score float64         `json:"score"`
	Label string          `json:"label"`
}

// Area of the bounding box in pixels.
func (d Detection) Area() int {
	return d.Box.Dx() * d.Box.Dy()
}

// Detector finds objects in an image. Implementations return detections sorted by
// descending score.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// DetectorFunc adapts a plain function to a Detector.
type DetectorFunc func(ctx context.Context, img image.Image) ([]Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return f(ctx, img)
}

// Postprocessor filters or modifies a set of detections.
type Postprocessor func([]Detection) []Detection

// NewScoreFilter drops detections below a confidence.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Score >= conf {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewAreaFilter drops detections whose box is smaller than area pixels.
func NewAreaFilter(area int) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Area() >= area {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewLabelFilter keeps only detections whose label matches one of labels, ignoring case.
func NewLabelFilter(labels ...string) Postprocessor {
	want := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		want[strings.ToLower(l)] = struct{}{}
	}
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if _, ok := want[strings.ToLower(d.Label)]; ok {
				out = append(out, d)
			}
		}
		return out
	}
}

// Apply runs the postprocessors in order.
func Apply(dets []Detection, posts ...Postprocessor) []Detection {
	for _, p := range posts {
		if p != nil {
			dets = p(dets)
		}
	}
	return dets
}
