package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/Brownie44l1/route-grader/internal/holds"
	"github.com/Brownie44l1/route-grader/internal/route"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// labelledImage is a dataset photo whose filename names the route colour and grade.
type labelledImage struct {
	Name  string
	Path  string
	ID    string
	Color string
	Grade string
}

// RouteID is the identifier of the route set in this image.
func (li labelledImage) RouteID() string {
	return li.ID + "_" + li.Color
}

// collectImages lists the labelled images directly inside dir, sorted by name. Images
// whose filename does not carry a known colour and grade are returned in skipped.
func collectImages(dir string) (images []labelledImage, skipped []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read image folder")
	}
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}
		color, grade, ok := route.ParseFilename(e.Name())
		if !ok {
			skipped = append(skipped, e.Name())
			continue
		}
		canonical, err := holds.CanonicalColor(color)
		if err != nil {
			skipped = append(skipped, e.Name())
			continue
		}
		images = append(images, labelledImage{
			Name:  e.Name(),
			Path:  filepath.Join(dir, e.Name()),
			ID:    strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Color: canonical,
			Grade: grade,
		})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
	return images, skipped, nil
}

func isImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range imageExtensions {
		if ext == want {
			return true
		}
	}
	return false
}
