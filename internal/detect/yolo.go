package detect

import (
	"context"
	"image"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/Brownie44l1/route-grader/internal/model"
)

// Defaults used by the upstream predictor.
const (
	DefaultConfidence = 0.25
	DefaultIoU        = 0.7
)

// Runner executes a model on a flat input tensor. *model.Session implements it.
type Runner interface {
	Run(input []float32) ([]float32, error)
}

// YOLO is a Detector backed by a YOLOv8-style single-output model.
type YOLO struct {
	runner  Runner
	md      model.Metadata
	layout  Layout
	conf    float64
	iou     float64
	posts   []Postprocessor
	anchors int
}

// Layout describes how boxes are laid out in the output tensor.
type Layout int

const (
	// ChannelsFirst is [1, 4+nc, anchors], the default ultralytics export.
	ChannelsFirst Layout = iota
	// AnchorsFirst is [1, anchors, 4+nc].
	AnchorsFirst
)

// Option configures a YOLO detector.
type Option func(*YOLO)

// WithConfidence sets the minimum class score kept during decoding.
func WithConfidence(conf float64) Option {
	return func(y *YOLO) { y.conf = conf }
}

// WithIoU sets the overlap above which NMS suppresses a box.
func WithIoU(iou float64) Option {
	return func(y *YOLO) { y.iou = iou }
}

// WithPostprocessors appends filters run after NMS.
func WithPostprocessors(posts ...Postprocessor) Option {
	return func(y *YOLO) { y.posts = append(y.posts, posts...) }
}

// NewYOLO checks the metadata describes a detection head and returns a detector.
func NewYOLO(runner Runner, md model.Metadata, opts ...Option) (*YOLO, error) {
	if runner == nil {
		return nil, errors.New("must have a model runner")
	}
	if len(md.OutputShape) != 3 {
		return nil, errors.Errorf("expected a 3D detection output, got shape %v", md.OutputShape)
	}
	if len(md.InputShape) != 4 || md.InputShape[2] != md.InputShape[3] {
		return nil, errors.Errorf("expected a square NCHW input, got shape %v", md.InputShape)
	}
	md.ImageSize = int(md.InputShape[3])

	channels := 4 + len(md.Classes)
	y := &YOLO{runner: runner, md: md, conf: DefaultConfidence, iou: DefaultIoU}
	switch {
	case int(md.OutputShape[1]) == channels:
		y.layout, y.anchors = ChannelsFirst, int(md.OutputShape[2])
	case int(md.OutputShape[2]) == channels:
		y.layout, y.anchors = AnchorsFirst, int(md.OutputShape[1])
	default:
		return nil, errors.Errorf("output shape %v does not match %d classes", md.OutputShape, len(md.Classes))
	}
	for _, o := range opts {
		o(y)
	}
	return y, nil
}

// Classes returns the labels the detector can emit.
func (y *YOLO) Classes() []string {
	return y.md.Classes
}

// Detect runs the model on img and returns detections sorted by descending score.
func (y *YOLO) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, tf := Letterbox(img, y.md.ImageSize)
	output, err := y.runner.Run(input)
	if err != nil {
		return nil, err
	}
	dets, err := DecodeYOLO(output, y.layout, y.anchors, y.md.Classes, y.conf, tf)
	if err != nil {
		return nil, err
	}
	return Apply(NMS(dets, y.iou), y.posts...), nil
}

// DecodeYOLO turns a raw detection head into boxes. Each anchor contributes at most one
// detection, for its best scoring class, when that score reaches conf.
func DecodeYOLO(output []float32, layout Layout, anchors int, labels []string, conf float64, tf Transform) ([]Detection, error) {
	channels := 4 + len(labels)
	if len(output) != channels*anchors {
		return nil, errors.Errorf("expected %d output values, got %d", channels*anchors, len(output))
	}
	at := func(c, i int) float64 {
		if layout == AnchorsFirst {
			return float64(output[i*channels+c])
		}
		return float64(output[c*anchors+i])
	}

	var dets []Detection
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, 0.0
		for c := 0; c < len(labels); c++ {
			if s := at(4+c, i); best < 0 || s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || bestScore < conf {
			continue
		}
		box := tf.Box(at(0, i), at(1, i), at(2, i), at(3, i))
		if box.Empty() {
			continue
		}
		label := labels[best]
		if label == "" {
			label = strconv.Itoa(best)
		}
		dets = append(dets, Detection{Box: box, Score: bestScore, Label: label})
	}
	return dets, nil
}

// NMS performs class-aware non-maximum suppression. The result is sorted by descending
// score.
func NMS(dets []Detection, iou float64) []Detection {
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.Label == d.Label && IoU(k.Box, d.Box) > iou {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

// IoU is the intersection over union of two rectangles.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}
