package service

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/Brownie44l1/route-grader/internal/detect"
	"github.com/Brownie44l1/route-grader/internal/gnn"
	"github.com/Brownie44l1/route-grader/internal/holds"
	"github.com/Brownie44l1/route-grader/internal/route"
)

// gradeByPosition scores V0 when holds sit on the left of the wall and V1 otherwise.
func gradeByPosition(t *testing.T) *gnn.Model {
	t.Helper()
	m, err := gnn.New(gnn.StateDict{
		Conv1Weight: [][]float64{{1, 0, 0, 0, 0, 0, 0, 0}},
		Conv1Bias:   []float64{0},
		Conv2Weight: [][]float64{{1}},
		Conv2Bias:   []float64{0},
		FCWeight:    [][]float64{{-1}, {1}},
		FCBias:      []float64{0.5, -0.5},
	})
	test.That(t, err, test.ShouldBeNil)
	return m
}

func newPipeline(t *testing.T, dets []detect.Detection) *Pipeline {
	t.Helper()
	colors := detect.DetectorFunc(func(context.Context, image.Image) ([]detect.Detection, error) {
		return dets, nil
	})
	types := detect.DetectorFunc(func(context.Context, image.Image) ([]detect.Detection, error) {
		return []detect.Detection{{Label: "Crimp", Score: 0.9}}, nil
	})
	e, err := holds.NewExtractor(colors, types, nil)
	test.That(t, err, test.ShouldBeNil)
	return NewPipeline(e, gradeByPosition(t), zaptest.NewLogger(t).Sugar())
}

func TestPipelinePredict(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1000, 800))

	p := newPipeline(t, []detect.Detection{
		{Box: image.Rect(800, 100, 840, 140), Label: "blue"},
		{Box: image.Rect(900, 300, 920, 330), Label: "blue"},
		{Box: image.Rect(10, 10, 20, 20), Label: "red"},
	})
	pred, err := p.Predict(context.Background(), img, "blue")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pred.Grade, test.ShouldEqual, "V1")
	test.That(t, pred.Confidence, test.ShouldBeGreaterThan, 0.5)
	test.That(t, pred.Holds, test.ShouldHaveLength, 2)
	test.That(t, pred.Holds[0].Type, test.ShouldEqual, "crimp")
	test.That(t, pred.Wall, test.ShouldResemble, holds.Wall{Width: 1000, Height: 800})

	pred, err = p.Predict(context.Background(), img, "red")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pred.Grade, test.ShouldEqual, "V0")
}

func TestPipelineNoHolds(t *testing.T) {
	p := newPipeline(t, []detect.Detection{{Box: image.Rect(10, 10, 20, 20), Label: "red"}})
	_, err := p.Predict(context.Background(), image.NewRGBA(image.Rect(0, 0, 100, 100)), "green")
	test.That(t, errors.Is(err, ErrNoHolds), test.ShouldBeTrue)

	_, err = p.Predict(context.Background(), image.NewRGBA(image.Rect(0, 0, 100, 100)), "chartreuse")
	test.That(t, errors.Is(err, holds.ErrUnknownColor), test.ShouldBeTrue)
}

func TestPipelinePredictHolds(t *testing.T) {
	p := newPipeline(t, nil)
	pred, err := p.PredictHolds(context.Background(),
		[]holds.Hold{{X: 10, Y: 10, Width: 5, Height: 5, Type: "jug"}}, holds.Wall{Width: 100, Height: 100})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pred.Grade, test.ShouldEqual, "V0")

	_, err = p.PredictHolds(context.Background(),
		[]holds.Hold{{X: 10, Y: 10}}, holds.Wall{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRandom(t *testing.T) {
	r := NewRandom(0)
	for i := 0; i < 20; i++ {
		pred, err := r.Predict(context.Background(), image.NewRGBA(image.Rect(0, 0, 30, 20)), "red")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, route.ValidGrade(pred.Grade), test.ShouldBeTrue)
		test.That(t, pred.Confidence, test.ShouldBeGreaterThanOrEqualTo, 0.0)
		test.That(t, pred.Confidence, test.ShouldBeLessThan, 1.0)
		test.That(t, pred.Wall.Width, test.ShouldEqual, 30)
	}

	pred, err := r.PredictHolds(context.Background(), []holds.Hold{{X: 1}}, holds.Wall{Width: 5, Height: 5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pred.Holds, test.ShouldHaveLength, 1)
}

func TestRandomDelayHonoursContext(t *testing.T) {
	r := NewRandom(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Predict(ctx, image.NewRGBA(image.Rect(0, 0, 1, 1)), "red")
	test.That(t, err, test.ShouldEqual, context.DeadlineExceeded)

	r = &Random{}
	_, err = r.Predict(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)), "red")
	test.That(t, err, test.ShouldNotBeNil)
}
