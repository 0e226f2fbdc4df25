// Package holds turns detector output into the holds of a route: it filters the colour
// detector's boxes to one route colour, crops every hold and labels its type.
package holds

import (
	"context"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Brownie44l1/route-grader/internal/detect"
)

// UnknownType labels a hold the type classifier found nothing in.
const UnknownType = "unknown"

// Hold is a single detected grip, in wall pixel coordinates.
type Hold struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Color  string `json:"color,omitempty"`
}

// Box is the hold's bounding rectangle.
func (h Hold) Box() image.Rectangle {
	return image.Rect(h.X-h.Width/2, h.Y-h.Height/2, h.X-h.Width/2+h.Width, h.Y-h.Height/2+h.Height)
}

// Wall is the size of the photographed wall in pixels.
type Wall struct {
	Width  int `json:"wall_width"`
	Height int `json:"wall_height"`
}

// WallOf returns the wall size of img.
func WallOf(img image.Image) Wall {
	return Wall{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
}

// Contains reports whether the hold centre lies on the wall.
func (w Wall) Contains(h Hold) bool {
	return h.X >= 0 && h.Y >= 0 && h.X <= w.Width && h.Y <= w.Height
}

// FromDetection builds a hold from a colour detection. Centres use integer division.
func FromDetection(d detect.Detection, holdType string) Hold {
	x1, y1, x2, y2 := d.Box.Min.X, d.Box.Min.Y, d.Box.Max.X, d.Box.Max.Y
	return Hold{
		X:      (x1 + x2) / 2,
		Y:      (y1 + y2) / 2,
		Type:   holdType,
		Width:  x2 - x1,
		Height: y2 - y1,
		Color:  colorLabel(d.Label),
	}
}

// Extractor runs the colour detector over a wall and the type classifier over each hold.
type Extractor struct {
	colors detect.Detector
	types  detect.Detector
	logger *zap.SugaredLogger
}

// NewExtractor returns an Extractor using colors to find holds and types to label them.
func NewExtractor(colors, types detect.Detector, logger *zap.SugaredLogger) (*Extractor, error) {
	if colors == nil || types == nil {
		return nil, errors.New("extractor needs both a color detector and a type classifier")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Extractor{colors: colors, types: types, logger: logger}, nil
}

// Classify returns the holds of the route set in targetColor along with the wall size.
func (e *Extractor) Classify(ctx context.Context, img image.Image, targetColor string) ([]Hold, Wall, error) {
	target, err := CanonicalColor(targetColor)
	if err != nil {
		return nil, Wall{}, err
	}
	dets, err := e.colors.Detect(ctx, img)
	if err != nil {
		return nil, Wall{}, errors.Wrap(err, "color detection")
	}
	dets = lo.Filter(dets, func(d detect.Detection, _ int) bool { return colorLabel(d.Label) == target })
	e.logger.Debugw("color detection", "color", target, "holds", len(dets))

	holds, err := e.label(ctx, img, dets)
	if err != nil {
		return nil, Wall{}, err
	}
	return holds, WallOf(img), nil
}

// ClassifyAll returns every detected hold on the wall grouped by colour.
func (e *Extractor) ClassifyAll(ctx context.Context, img image.Image) (map[string][]Hold, Wall, error) {
	dets, err := e.colors.Detect(ctx, img)
	if err != nil {
		return nil, Wall{}, errors.Wrap(err, "color detection")
	}
	holds, err := e.label(ctx, img, dets)
	if err != nil {
		return nil, Wall{}, err
	}
	return lo.GroupBy(holds, func(h Hold) string { return h.Color }), WallOf(img), nil
}

func (e *Extractor) label(ctx context.Context, img image.Image, dets []detect.Detection) ([]Hold, error) {
	origin := img.Bounds().Min
	holds := make([]Hold, 0, len(dets))
	for _, d := range dets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		crop := imaging.Crop(img, d.Box.Add(origin))
		holdType, err := e.classify(ctx, crop)
		if err != nil {
			return nil, err
		}
		holds = append(holds, FromDetection(d, holdType))
	}
	return holds, nil
}

func (e *Extractor) classify(ctx context.Context, crop image.Image) (string, error) {
	if crop.Bounds().Empty() {
		return UnknownType, nil
	}
	dets, err := e.types.Detect(ctx, crop)
	if err != nil {
		return "", errors.Wrap(err, "hold type classification")
	}
	if len(dets) == 0 {
		return UnknownType, nil
	}
	return strings.ToLower(dets[0].Label), nil
}
