// Package gnn runs the pretrained route grading network: two graph convolutions, a mean
// pool over holds and a linear classifier over grades.
package gnn

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/Brownie44l1/route-grader/internal/graph"
)

// ErrEmptyGraph is returned when asked to grade a route without holds.
var ErrEmptyGraph = errors.New("cannot grade a route with no holds")

type linear struct {
	weight *mat.Dense // out x in
	bias   []float64
}

func newLinear(name string, w [][]float64, b []float64, in int) (linear, error) {
	if len(w) == 0 {
		return linear{}, errors.Errorf("%s: missing weight", name)
	}
	if len(w[0]) != in {
		return linear{}, errors.Errorf("%s: expected %d inputs, weight has %d", name, in, len(w[0]))
	}
	if len(b) != len(w) {
		return linear{}, errors.Errorf("%s: bias has %d values for %d outputs", name, len(b), len(w))
	}
	flat := make([]float64, 0, len(w)*in)
	for i, row := range w {
		if len(row) != in {
			return linear{}, errors.Errorf("%s: row %d has %d values, want %d", name, i, len(row), in)
		}
		flat = append(flat, row...)
	}
	return linear{weight: mat.NewDense(len(w), in, flat), bias: b}, nil
}

func (l linear) out() int {
	r, _ := l.weight.Dims()
	return r
}

// apply computes x W^T + b for every row of x.
func (l linear) apply(x mat.Matrix) *mat.Dense {
	var y mat.Dense
	y.Mul(x, l.weight.T())
	y.Apply(func(_, j int, v float64) float64 { return v + l.bias[j] }, &y)
	return &y
}

// Model is a loaded grade network. It is read-only after construction and safe for
// concurrent use.
type Model struct {
	conv1  linear
	conv2  linear
	fc     linear
	grades []string
}

// Load reads weights from path.
func Load(path string) (*Model, error) {
	sd, err := LoadStateDict(path)
	if err != nil {
		return nil, err
	}
	return New(sd)
}

// New validates the parameter shapes and builds a Model.
func New(sd StateDict) (*Model, error) {
	conv1, err := newLinear("conv1", sd.Conv1Weight, sd.Conv1Bias, graph.NumFeatures)
	if err != nil {
		return nil, err
	}
	conv2, err := newLinear("conv2", sd.Conv2Weight, sd.Conv2Bias, conv1.out())
	if err != nil {
		return nil, err
	}
	fc, err := newLinear("fc", sd.FCWeight, sd.FCBias, conv2.out())
	if err != nil {
		return nil, err
	}

	grades := sd.Grades
	if len(grades) == 0 {
		grades = make([]string, fc.out())
		for i := range grades {
			grades[i] = fmt.Sprintf("V%d", i)
		}
	}
	if len(grades) != fc.out() {
		return nil, errors.Errorf("%d grade labels for %d output classes", len(grades), fc.out())
	}
	return &Model{conv1: conv1, conv2: conv2, fc: fc, grades: grades}, nil
}

// Grades returns the output class labels.
func (m *Model) Grades() []string {
	return m.grades
}

// Prediction is the network's verdict for one route.
type Prediction struct {
	Class      int       `json:"class"`
	Grade      string    `json:"grade"`
	Confidence float64   `json:"confidence"`
	Logits     []float64 `json:"logits"`
}

// Forward returns the raw class logits for g.
func (m *Model) Forward(g *graph.Graph) ([]float64, error) {
	n := g.NumNodes()
	if n == 0 {
		return nil, ErrEmptyGraph
	}
	flat := make([]float64, 0, n*graph.NumFeatures)
	for i, node := range g.Nodes {
		if len(node) != graph.NumFeatures {
			return nil, errors.Errorf("node %d has %d features, want %d", i, len(node), graph.NumFeatures)
		}
		flat = append(flat, node...)
	}
	x := mat.NewDense(n, graph.NumFeatures, flat)

	adj, err := normalizedAdjacency(n, g.Edges)
	if err != nil {
		return nil, err
	}

	h := relu(m.convolve(m.conv1, adj, x))
	h = relu(m.convolve(m.conv2, adj, h))

	pooled := meanPool(h)
	logits := m.fc.apply(pooled.T())
	return mat.Row(nil, 0, logits), nil
}

// Predict grades g, taking the most likely class.
func (m *Model) Predict(g *graph.Graph) (Prediction, error) {
	logits, err := m.Forward(g)
	if err != nil {
		return Prediction{}, err
	}
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	probs := softmax(logits)
	return Prediction{
		Class:      best,
		Grade:      m.grades[best],
		Confidence: probs[best],
		Logits:     logits,
	}, nil
}

// convolve is one GCN layer: Â (x W^T) + b where Â is the normalised adjacency.
func (m *Model) convolve(l linear, adj *mat.Dense, x mat.Matrix) *mat.Dense {
	var xw mat.Dense
	xw.Mul(x, l.weight.T())
	var out mat.Dense
	out.Mul(adj, &xw)
	out.Apply(func(_, j int, v float64) float64 { return v + l.bias[j] }, &out)
	return &out
}

// normalizedAdjacency builds D^-1/2 (A+I) D^-1/2 with rows as message targets.
func normalizedAdjacency(n int, edges []graph.Edge) (*mat.Dense, error) {
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, 1)
	}
	for _, e := range edges {
		if e.From < 0 || e.From >= n || e.To < 0 || e.To >= n {
			return nil, errors.Errorf("edge %d->%d out of range for %d nodes", e.From, e.To, n)
		}
		if e.From == e.To {
			continue
		}
		a.Set(e.To, e.From, a.At(e.To, e.From)+1)
	}

	deg := make([]float64, n)
	for i := 0; i < n; i++ {
		deg[i] = mat.Sum(a.RowView(i))
	}
	a.Apply(func(i, j int, v float64) float64 {
		if v == 0 {
			return 0
		}
		return v / math.Sqrt(deg[i]*deg[j])
	}, a)
	return a, nil
}

func relu(x *mat.Dense) *mat.Dense {
	x.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, x)
	return x
}

// meanPool averages node rows into a single column vector.
func meanPool(x *mat.Dense) *mat.VecDense {
	r, c := x.Dims()
	out := mat.NewVecDense(c, nil)
	for j := 0; j < c; j++ {
		out.SetVec(j, mat.Sum(x.ColView(j))/float64(r))
	}
	return out
}

func softmax(in []float64) []float64 {
	hi := math.Inf(-1)
	for _, v := range in {
		hi = math.Max(hi, v)
	}
	out := make([]float64, len(in))
	sum := 0.0
	for i, v := range in {
		out[i] = math.Exp(v - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
