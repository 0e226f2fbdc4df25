package gnn

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/Brownie44l1/route-grader/internal/graph"
)

// tinyStateDict picks the x feature, doubles it, and scores two classes as +v and -v.
func tinyStateDict() StateDict {
	return StateDict{
		Conv1Weight: [][]float64{{1, 0, 0, 0, 0, 0, 0, 0}},
		Conv1Bias:   []float64{0},
		Conv2Weight: [][]float64{{2}},
		Conv2Bias:   []float64{-0.5},
		FCWeight:    [][]float64{{1}, {-1}},
		FCBias:      []float64{0, 0},
	}
}

func node(x float64) []float64 {
	return []float64{x, 0, 0, 0, 0, 0, 0, 0}
}

func TestForward(t *testing.T) {
	m, err := New(tinyStateDict())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Grades(), test.ShouldResemble, []string{"V0", "V1"})

	g := &graph.Graph{
		Nodes: [][]float64{node(0.2), node(0.6)},
		Edges: []graph.Edge{{From: 0, To: 1}, {From: 1, To: 0}},
	}
	// both nodes average to 0.4, conv2 gives 2*0.4-0.5
	logits, err := m.Forward(g)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logits, test.ShouldHaveLength, 2)
	test.That(t, logits[0], test.ShouldAlmostEqual, 0.3, 1e-9)
	test.That(t, logits[1], test.ShouldAlmostEqual, -0.3, 1e-9)

	pred, err := m.Predict(g)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pred.Class, test.ShouldEqual, 0)
	test.That(t, pred.Grade, test.ShouldEqual, "V0")
	test.That(t, pred.Confidence, test.ShouldAlmostEqual, 1/(1+math.Exp(-0.6)), 1e-9)
}

func TestForwardWithoutEdges(t *testing.T) {
	m, err := New(tinyStateDict())
	test.That(t, err, test.ShouldBeNil)

	// isolated nodes only see themselves; relu clips the first node to zero
	g := &graph.Graph{Nodes: [][]float64{node(0.1), node(0.9)}}
	logits, err := m.Forward(g)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logits[0], test.ShouldAlmostEqual, (0+1.3)/2, 1e-9)

	pred, err := m.Predict(&graph.Graph{Nodes: [][]float64{node(0)}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pred.Grade, test.ShouldEqual, "V0")
	test.That(t, pred.Confidence, test.ShouldAlmostEqual, 0.5, 1e-9)
}

func TestForwardErrors(t *testing.T) {
	m, err := New(tinyStateDict())
	test.That(t, err, test.ShouldBeNil)

	_, err = m.Forward(&graph.Graph{})
	test.That(t, err, test.ShouldEqual, ErrEmptyGraph)

	_, err = m.Forward(&graph.Graph{Nodes: [][]float64{{1, 2}}})
	test.That(t, err.Error(), test.ShouldContainSubstring, "features")

	_, err = m.Forward(&graph.Graph{Nodes: [][]float64{node(0)}, Edges: []graph.Edge{{From: 0, To: 3}}})
	test.That(t, err.Error(), test.ShouldContainSubstring, "out of range")
}

func TestNewValidatesShapes(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*StateDict)
		want   string
	}{
		{"missing conv1", func(sd *StateDict) { sd.Conv1Weight = nil }, "conv1: missing weight"},
		{"wrong inputs", func(sd *StateDict) { sd.Conv1Weight = [][]float64{{1, 2}} }, "conv1: expected 8 inputs"},
		{"ragged", func(sd *StateDict) { sd.FCWeight = [][]float64{{1}, {1, 2}} }, "fc: row 1"},
		{"bias", func(sd *StateDict) { sd.Conv2Bias = nil }, "conv2: bias"},
		{"grades", func(sd *StateDict) { sd.Grades = []string{"V0"} }, "1 grade labels for 2 output classes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd := tinyStateDict()
			tt.modify(&sd)
			_, err := New(sd)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	sd := tinyStateDict()
	sd.Grades = []string{"V3", "V7"}
	raw, err := json.Marshal(sd)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(raw), test.ShouldContainSubstring, `"conv1.lin.weight"`)

	path := filepath.Join(t.TempDir(), "route_gnn_weights.json")
	test.That(t, os.WriteFile(path, raw, 0o600), test.ShouldBeNil)

	m, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Grades(), test.ShouldResemble, []string{"V3", "V7"})

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to open weights")
}

func TestForwardSymmetricNormalization(t *testing.T) {
	m, err := New(StateDict{
		Conv1Weight: [][]float64{{1, 0, 0, 0, 0, 0, 0, 0}},
		Conv1Bias:   []float64{0},
		Conv2Weight: [][]float64{{1}},
		Conv2Bias:   []float64{0},
		FCWeight:    [][]float64{{1}},
		FCBias:      []float64{0},
	})
	test.That(t, err, test.ShouldBeNil)

	// path 0-1-2: with self loops the degrees are 2, 3, 2, so each message is scaled by
	// 1/sqrt(deg_i*deg_j) rather than by the receiver's degree alone
	g := &graph.Graph{
		Nodes: [][]float64{node(1), node(0), node(0)},
		Edges: []graph.Edge{{From: 0, To: 1}, {From: 1, To: 0}, {From: 1, To: 2}, {From: 2, To: 1}},
	}
	logits, err := m.Forward(g)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logits, test.ShouldHaveLength, 1)
	// layer 1: [1/2, 1/sqrt6, 0]; layer 2: [5/12, 5/(6 sqrt6), 1/6]
	test.That(t, logits[0], test.ShouldAlmostEqual, (7.0/12+5/(6*math.Sqrt(6)))/3, 1e-12)
	test.That(t, logits[0], test.ShouldAlmostEqual, 0.30784674735107315, 1e-12)

	pred, err := m.Predict(g)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pred.Grade, test.ShouldEqual, "V0")
	test.That(t, pred.Confidence, test.ShouldAlmostEqual, 1.0, 1e-12)
}
