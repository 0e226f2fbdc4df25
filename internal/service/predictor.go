// Package service wires detection, graph construction and the grade network into
// predictors the HTTP layer and the dataset tools call.
package service

import (
	"context"
	"image"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Brownie44l1/route-grader/internal/gnn"
	"github.com/Brownie44l1/route-grader/internal/graph"
	"github.com/Brownie44l1/route-grader/internal/holds"
	"github.com/Brownie44l1/route-grader/internal/route"
)

// ErrNoHolds is returned when no hold of the requested colour is on the wall.
var ErrNoHolds = errors.New("no holds found")

// Prediction is the grade of one route.
type Prediction struct {
	Grade      string       `json:"grade"`
	Confidence float64      `json:"confidence"`
	Holds      []holds.Hold `json:"holds,omitempty"`
	Wall       holds.Wall   `json:"wall"`
}

// Predictor grades routes.
type Predictor interface {
	// Predict grades the route set in holdColor on the wall in img.
	Predict(ctx context.Context, img image.Image, holdColor string) (*Prediction, error)
	// PredictHolds grades a route whose holds are already known.
	PredictHolds(ctx context.Context, hs []holds.Hold, wall holds.Wall) (*Prediction, error)
}

// Pipeline is the full predictor: hold extraction, graph construction and the grade
// network, run one after the other.
type Pipeline struct {
	extractor *holds.Extractor
	model     *gnn.Model
	logger    *zap.SugaredLogger
}

// NewPipeline returns a Pipeline.
func NewPipeline(extractor *holds.Extractor, model *gnn.Model, logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{extractor: extractor, model: model, logger: logger}
}

// Predict implements Predictor.
func (p *Pipeline) Predict(ctx context.Context, img image.Image, holdColor string) (*Prediction, error) {
	start := time.Now()
	hs, wall, err := p.extractor.Classify(ctx, img, holdColor)
	if err != nil {
		return nil, err
	}
	pred, err := p.PredictHolds(ctx, hs, wall)
	if err != nil {
		return nil, errors.Wrapf(err, "%s route", holdColor)
	}
	p.logger.Infow("graded route", "color", holdColor, "holds", len(hs),
		"grade", pred.Grade, "confidence", pred.Confidence, "took", time.Since(start))
	return pred, nil
}

// PredictHolds implements Predictor.
func (p *Pipeline) PredictHolds(ctx context.Context, hs []holds.Hold, wall holds.Wall) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(hs) == 0 {
		return nil, ErrNoHolds
	}
	g, err := graph.Build(hs, wall)
	if err != nil {
		return nil, err
	}
	out, err := p.model.Predict(g)
	if err != nil {
		return nil, err
	}
	p.logger.Debugw("graph", "nodes", g.NumNodes(), "edges", len(g.Edges), "logits", out.Logits)
	return &Prediction{Grade: out.Grade, Confidence: out.Confidence, Holds: hs, Wall: wall}, nil
}

// Random is the placeholder predictor used when no models are configured. It answers
// with a uniformly random grade after a simulated processing delay.
type Random struct {
	Delay  time.Duration
	Grades []string
}

// NewRandom returns a Random predictor over route.Grades.
func NewRandom(delay time.Duration) *Random {
	return &Random{Delay: delay, Grades: route.Grades}
}

// Predict implements Predictor.
func (r *Random) Predict(ctx context.Context, img image.Image, _ string) (*Prediction, error) {
	return r.guess(ctx, holds.WallOf(img))
}

// PredictHolds implements Predictor.
func (r *Random) PredictHolds(ctx context.Context, hs []holds.Hold, wall holds.Wall) (*Prediction, error) {
	pred, err := r.guess(ctx, wall)
	if err != nil {
		return nil, err
	}
	pred.Holds = hs
	return pred, nil
}

func (r *Random) guess(ctx context.Context, wall holds.Wall) (*Prediction, error) {
	if r.Delay > 0 {
		timer := time.NewTimer(r.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(r.Grades) == 0 {
		return nil, errors.New("random predictor has no grades")
	}
	return &Prediction{
		Grade:      r.Grades[rand.Intn(len(r.Grades))],
		Confidence: rand.Float64(),
		Wall:       wall,
	}, nil
}
