// Package annotate draws detected holds onto wall photos.
package annotate

import (
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/Brownie44l1/route-grader/internal/holds"
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Options controls how holds are drawn.
type Options struct {
	LineWidth float64
	FontSize  float64
	// Label picks the text drawn above a hold. Nil draws the hold type.
	Label func(holds.Hold) string
}

// DefaultOptions scales line width and text to the photo.
func DefaultOptions(img image.Image) Options {
	size := float64(max(img.Bounds().Dx(), img.Bounds().Dy()))
	return Options{
		LineWidth: max(2, size/400),
		FontSize:  max(12, size/60),
	}
}

// Draw returns a copy of img with a box around every hold in its route colour and the
// hold's label above it.
func Draw(img image.Image, hs []holds.Hold, opts Options) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: opts.FontSize}))
	origin := img.Bounds().Min

	for _, h := range hs {
		box := h.Box().Sub(origin)
		c := holds.DisplayColor(h.Color)

		dc.SetColor(c)
		dc.SetLineWidth(opts.LineWidth)
		dc.DrawRectangle(float64(box.Min.X), float64(box.Min.Y), float64(box.Dx()), float64(box.Dy()))
		dc.Stroke()

		text := h.Type
		if opts.Label != nil {
			text = opts.Label(h)
		}
		if text == "" {
			continue
		}
		drawLabel(dc, text, box.Min, c, holds.ContrastColor(h.Color))
	}
	return dc.Image()
}

func drawLabel(dc *gg.Context, text string, at image.Point, bg, fg color.Color) {
	w, h := dc.MeasureString(text)
	pad := h / 4
	x := float64(at.X)
	y := float64(at.Y) - h - 2*pad
	if y < 0 {
		y = float64(at.Y)
	}
	dc.SetColor(bg)
	dc.DrawRectangle(x, y, w+2*pad, h+2*pad)
	dc.Fill()
	dc.SetColor(fg)
	dc.DrawStringAnchored(text, x+pad, y+pad, 0, 1)
}

// WriteJPEG draws hs onto img and encodes the result to w.
func WriteJPEG(w io.Writer, img image.Image, hs []holds.Hold) error {
	out := Draw(img, hs, DefaultOptions(img))
	return errors.Wrap(jpeg.Encode(w, out, &jpeg.Options{Quality: 90}), "encode annotated image")
}
