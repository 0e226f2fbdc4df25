// Package graph builds the feature graph the grade network consumes from a route's holds.
package graph

import (
	"math"

	"github.com/pkg/errors"

	"github.com/Brownie44l1/route-grader/internal/holds"
)

// HoldTypes is the one-hot order of hold types in node features.
var HoldTypes = []string{"jug", "crimp", "sloper", "pinch", "edge"}

// NumFeatures is the length of every node feature vector: x, y, area and the type one-hot.
var NumFeatures = 3 + len(HoldTypes)

// EdgeThreshold is the fraction of wall width below which two holds are connected.
const EdgeThreshold = 0.25

// Edge is a directed connection between two node indices.
type Edge struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Graph is a route as node features plus an edge list.
type Graph struct {
	Nodes [][]float64 `json:"nodes"`
	Edges []Edge      `json:"edges"`
}

// NumNodes returns the number of holds in the graph.
func (g *Graph) NumNodes() int {
	return len(g.Nodes)
}

var typeIndex = func() map[string]int {
	m := make(map[string]int, len(HoldTypes))
	for i, t := range HoldTypes {
		m[t] = i
	}
	return m
}()

// OneHot encodes a hold type. Unknown types encode as all zeros.
func OneHot(holdType string) []float64 {
	out := make([]float64, len(HoldTypes))
	if i, ok := typeIndex[holdType]; ok {
		out[i] = 1
	}
	return out
}

// Build turns holds on a wall into a graph. Positions are normalised by wall size, area
// by wall area, and every ordered pair of distinct holds closer than EdgeThreshold of
// the wall width is connected.
func Build(hs []holds.Hold, wall holds.Wall) (*Graph, error) {
	if wall.Width <= 0 || wall.Height <= 0 {
		return nil, errors.Errorf("wall must have a positive size, got %dx%d", wall.Width, wall.Height)
	}
	w, h := float64(wall.Width), float64(wall.Height)

	g := &Graph{Nodes: make([][]float64, 0, len(hs))}
	for _, hold := range hs {
		feat := make([]float64, 0, NumFeatures)
		feat = append(feat,
			float64(hold.X)/w,
			float64(hold.Y)/h,
			float64(hold.Width*hold.Height)/(w*h),
		)
		g.Nodes = append(g.Nodes, append(feat, OneHot(hold.Type)...))
	}

	for i := range hs {
		for j := range hs {
			if i == j {
				continue
			}
			dx := float64(hs[i].X - hs[j].X)
			dy := float64(hs[i].Y - hs[j].Y)
			if math.Hypot(dx, dy)/w < EdgeThreshold {
				g.Edges = append(g.Edges, Edge{From: i, To: j})
			}
		}
	}
	return g, nil
}
