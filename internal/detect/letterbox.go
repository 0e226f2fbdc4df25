package detect

import (
	"image"
	"math"

	"github.com/nfnt/resize"
)

// padValue is the grey used by the upstream trainer to fill letterbox borders.
const padValue = 114.0 / 255.0

// Transform maps coordinates in a letterboxed model input back to the source image.
// PadX and PadY are the whole-pixel offsets of the resized image on the canvas.
type Transform struct {
	Scale  float64
	PadX   int
	PadY   int
	Width  int
	Height int
}

// Letterbox resizes img to fit a size x size square keeping its aspect ratio, centres it
// on a grey canvas and returns the canvas as planar RGB float32 values in [0, 1].
func Letterbox(img image.Image, size int) ([]float32, Transform) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	tf := Transform{Width: w, Height: h, Scale: 1}
	input := make([]float32, 3*size*size)
	for i := range input {
		input[i] = padValue
	}
	if w == 0 || h == 0 {
		return input, tf
	}

	tf.Scale = math.Min(float64(size)/float64(w), float64(size)/float64(h))
	newW := int(math.Round(float64(w) * tf.Scale))
	newH := int(math.Round(float64(h) * tf.Scale))
	newW, newH = max(1, min(newW, size)), max(1, min(newH, size))
	tf.PadX = (size - newW) / 2
	tf.PadY = (size - newH) / 2

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)
	rb := resized.Bounds()
	offX, offY := tf.PadX, tf.PadY
	plane := size * size

	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			r, g, bl, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			idx := (y+offY)*size + (x + offX)
			input[idx] = float32(r) / 65535.0
			input[plane+idx] = float32(g) / 65535.0
			input[2*plane+idx] = float32(bl) / 65535.0
		}
	}
	return input, tf
}

// Box converts a centre/size box in model input space into a rectangle in source
// image space, clamped to the image bounds.
func (tf Transform) Box(cx, cy, w, h float64) image.Rectangle {
	padX, padY := float64(tf.PadX), float64(tf.PadY)
	x1 := (cx - w/2 - padX) / tf.Scale
	y1 := (cy - h/2 - padY) / tf.Scale
	x2 := (cx + w/2 - padX) / tf.Scale
	y2 := (cy + h/2 - padY) / tf.Scale
	return image.Rect(
		int(clamp(x1, 0, float64(tf.Width))),
		int(clamp(y1, 0, float64(tf.Height))),
		int(clamp(x2, 0, float64(tf.Width))),
		int(clamp(y2, 0, float64(tf.Height))),
	)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
