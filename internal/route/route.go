// Package route holds the route record produced by the pipeline and the stores that
// persist it.
package route

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/Brownie44l1/route-grader/internal/holds"
)

// Grades is the fixed label set the grade network predicts.
var Grades = []string{"V0", "V1", "V2", "V3", "V4", "V5", "V6", "V7", "V8", "V9"}

// ValidGrade reports whether g is one of Grades.
func ValidGrade(g string) bool {
	return lo.Contains(Grades, g)
}

// Route is every hold of one colour on one wall photo, with its grade.
type Route struct {
	RouteID    string       `json:"route_id" bson:"route_id"`
	Image      string       `json:"image" bson:"image"`
	WallWidth  int          `json:"wall_width" bson:"wall_width"`
	WallHeight int          `json:"wall_height" bson:"wall_height"`
	NumHolds   int          `json:"num_holds" bson:"num_holds"`
	Holds      []holds.Hold `json:"holds" bson:"holds"`
	Grade      string       `json:"grade" bson:"grade"`
	HoldColor  string       `json:"hold_color,omitempty" bson:"hold_color,omitempty"`
	CreatedAt  *time.Time   `json:"created_at,omitempty" bson:"created_at,omitempty"`
}

// New assembles a route record.
func New(id, image, color string, wall holds.Wall, hs []holds.Hold, grade string) Route {
	return Route{
		RouteID:    id,
		Image:      image,
		WallWidth:  wall.Width,
		WallHeight: wall.Height,
		NumHolds:   len(hs),
		Holds:      hs,
		Grade:      grade,
		HoldColor:  color,
	}
}

// Wall returns the route's wall size.
func (r Route) Wall() holds.Wall {
	return holds.Wall{Width: r.WallWidth, Height: r.WallHeight}
}

// Validate checks the invariants a stored route must hold.
func (r Route) Validate() error {
	if r.RouteID == "" {
		return errors.New("route id is required")
	}
	if !ValidGrade(r.Grade) {
		return errors.Errorf("route %s: grade %q is not one of %s", r.RouteID, r.Grade, strings.Join(Grades, ", "))
	}
	if r.NumHolds != len(r.Holds) {
		return errors.Errorf("route %s: num_holds %d but %d holds", r.RouteID, r.NumHolds, len(r.Holds))
	}
	wall := r.Wall()
	for i, h := range r.Holds {
		if !wall.Contains(h) {
			return errors.Errorf("route %s: hold %d at (%d, %d) is off the %dx%d wall",
				r.RouteID, i, h.X, h.Y, wall.Width, wall.Height)
		}
	}
	return nil
}

var filenamePattern = regexp.MustCompile(`^(?P<color>\w+)_V(?P<grade>\d+)(?:-\d+)?$`)

// ParseFilename extracts the route colour and grade from a labelled dataset image such as
// "orange_V4.jpg" or "black_V3-1.jpg".
func ParseFilename(name string) (color, grade string, ok bool) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	m := filenamePattern.FindStringSubmatch(stem)
	if m == nil {
		return "", "", false
	}
	return m[filenamePattern.SubexpIndex("color")], "V" + m[filenamePattern.SubexpIndex("grade")], true
}
