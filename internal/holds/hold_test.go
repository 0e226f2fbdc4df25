package holds

import (
	"context"
	"errors"
	"image"
	"testing"

	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/Brownie44l1/route-grader/internal/detect"
)

func wallDetections() []detect.Detection {
	return []detect.Detection{
		{Box: image.Rect(10, 20, 31, 40), Score: 0.9, Label: "Black"},
		{Box: image.Rect(100, 100, 120, 130), Score: 0.8, Label: "red"},
		{Box: image.Rect(200, 50, 240, 70), Score: 0.7, Label: "black"},
	}
}

// typeByWidth labels crops so tests can tell which hold a crop came from.
func typeByWidth(labels map[int]string) detect.Detector {
	return detect.DetectorFunc(func(_ context.Context, img image.Image) ([]detect.Detection, error) {
		l, ok := labels[img.Bounds().Dx()]
		if !ok {
			return nil, nil
		}
		return []detect.Detection{{Box: img.Bounds(), Score: 0.9, Label: l}, {Box: img.Bounds(), Score: 0.2, Label: "pinch"}}, nil
	})
}

func TestClassify(t *testing.T) {
	colors := detect.DetectorFunc(func(context.Context, image.Image) ([]detect.Detection, error) {
		return wallDetections(), nil
	})
	e, err := NewExtractor(colors, typeByWidth(map[int]string{21: "Jug"}), zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldBeNil)

	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	holds, wall, err := e.Classify(context.Background(), img, " BLACK ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wall, test.ShouldResemble, Wall{Width: 400, Height: 300})
	test.That(t, holds, test.ShouldResemble, []Hold{
		{X: 20, Y: 30, Type: "jug", Width: 21, Height: 20, Color: "black"},
		{X: 220, Y: 60, Type: UnknownType, Width: 40, Height: 20, Color: "black"},
	})
	for _, h := range holds {
		test.That(t, wall.Contains(h), test.ShouldBeTrue)
	}
}

func TestClassifyErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := detect.DetectorFunc(func(context.Context, image.Image) ([]detect.Detection, error) {
		return nil, boom
	})
	ok := detect.DetectorFunc(func(context.Context, image.Image) ([]detect.Detection, error) {
		return wallDetections(), nil
	})
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))

	_, err := NewExtractor(nil, ok, nil)
	test.That(t, err, test.ShouldNotBeNil)

	e, err := NewExtractor(ok, ok, nil)
	test.That(t, err, test.ShouldBeNil)
	_, _, err = e.Classify(context.Background(), img, "teal")
	test.That(t, errors.Is(err, ErrUnknownColor), test.ShouldBeTrue)

	e, _ = NewExtractor(failing, ok, nil)
	_, _, err = e.Classify(context.Background(), img, "red")
	test.That(t, errors.Is(err, boom), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "color detection")

	e, _ = NewExtractor(ok, failing, nil)
	_, _, err = e.Classify(context.Background(), img, "red")
	test.That(t, err.Error(), test.ShouldContainSubstring, "hold type classification")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e, _ = NewExtractor(ok, ok, nil)
	_, _, err = e.Classify(ctx, img, "red")
	test.That(t, err, test.ShouldEqual, context.Canceled)
}

func TestClassifyAll(t *testing.T) {
	colors := detect.DetectorFunc(func(context.Context, image.Image) ([]detect.Detection, error) {
		return wallDetections(), nil
	})
	e, err := NewExtractor(colors, typeByWidth(map[int]string{20: "crimp"}), nil)
	test.That(t, err, test.ShouldBeNil)

	groups, wall, err := e.ClassifyAll(context.Background(), image.NewRGBA(image.Rect(0, 0, 400, 300)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wall.Width, test.ShouldEqual, 400)
	test.That(t, groups, test.ShouldHaveLength, 2)
	test.That(t, groups["black"], test.ShouldHaveLength, 2)
	test.That(t, groups["red"], test.ShouldResemble, []Hold{
		{X: 110, Y: 115, Type: "crimp", Width: 20, Height: 30, Color: "red"},
	})
}

func TestClassifyGreyLabels(t *testing.T) {
	colors := detect.DetectorFunc(func(context.Context, image.Image) ([]detect.Detection, error) {
		return []detect.Detection{
			{Box: image.Rect(10, 10, 30, 30), Score: 0.9, Label: "Grey"},
			{Box: image.Rect(50, 50, 60, 70), Score: 0.8, Label: " gray"},
			{Box: image.Rect(80, 80, 90, 90), Score: 0.7, Label: "Teal"},
		}, nil
	})
	e, err := NewExtractor(colors, typeByWidth(nil), nil)
	test.That(t, err, test.ShouldBeNil)
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))

	hs, _, err := e.Classify(context.Background(), img, "grey")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, hs, test.ShouldHaveLength, 2)
	for _, h := range hs {
		test.That(t, h.Color, test.ShouldEqual, "gray")
	}

	groups, _, err := e.ClassifyAll(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, groups["gray"], test.ShouldHaveLength, 2)
	test.That(t, groups["teal"], test.ShouldHaveLength, 1)
	_, ok := groups["grey"]
	test.That(t, ok, test.ShouldBeFalse)
}

func TestCanonicalColor(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "red", want: "red"},
		{in: "  Purple", want: "purple"},
		{in: "GREY", want: "gray"},
		{in: "teal", err: true},
		{in: "", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CanonicalColor(tt.in)
			if tt.err {
				test.That(t, errors.Is(err, ErrUnknownColor), test.ShouldBeTrue)
				return
			}
			test.That(t, err, test.ShouldBeNil)
			test.That(t, got, test.ShouldEqual, tt.want)
		})
	}
	test.That(t, Colors(), test.ShouldHaveLength, 10)
	test.That(t, Colors()[0], test.ShouldEqual, "black")
}

func TestHoldBox(t *testing.T) {
	h := FromDetection(detect.Detection{Box: image.Rect(10, 20, 30, 60), Label: "Blue"}, "edge")
	test.That(t, h.Color, test.ShouldEqual, "blue")
	test.That(t, h.Box(), test.ShouldResemble, image.Rect(10, 20, 30, 60))
}
