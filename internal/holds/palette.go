package holds

import (
	"image/color"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// ErrUnknownColor is returned for a hold colour outside the palette.
var ErrUnknownColor = errors.New("unknown hold color")

// palette holds the tape colours routes are set in, with a display colour for each.
var palette = map[string]colorful.Color{
	"red":    mustHex("#e53935"),
	"blue":   mustHex("#1e88e5"),
	"green":  mustHex("#43a047"),
	"yellow": mustHex("#fdd835"),
	"orange": mustHex("#fb8c00"),
	"purple": mustHex("#8e24aa"),
	"pink":   mustHex("#ec407a"),
	"black":  mustHex("#212121"),
	"white":  mustHex("#fafafa"),
	"gray":   mustHex("#9e9e9e"),
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Colors lists the palette names in alphabetical order.
func Colors() []string {
	names := make([]string, 0, len(palette))
	for n := range palette {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CanonicalColor trims and lower-cases name and checks it is in the palette.
// "grey" is accepted as "gray".
func CanonicalColor(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "grey" {
		n = "gray"
	}
	if _, ok := palette[n]; !ok {
		return "", errors.Wrapf(ErrUnknownColor, "%q", name)
	}
	return n, nil
}

// colorLabel normalises a detector class name the way CanonicalColor normalises user
// input. Names outside the palette are only trimmed and lower-cased.
func colorLabel(label string) string {
	if c, err := CanonicalColor(label); err == nil {
		return c
	}
	return strings.ToLower(strings.TrimSpace(label))
}

// DisplayColor is the colour used to draw holds of the named route colour. Names
// outside the palette get a neutral green.
func DisplayColor(name string) color.Color {
	c, ok := palette[strings.ToLower(name)]
	if !ok {
		c = colorful.Color{R: 0, G: 1, B: 0}
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// ContrastColor picks black or white, whichever reads better on top of the named colour.
func ContrastColor(name string) color.Color {
	c, ok := palette[strings.ToLower(name)]
	if !ok {
		return color.White
	}
	_, _, l := c.Hsl()
	if l > 0.6 {
		return color.Black
	}
	return color.White
}
