package gnn

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// StateDict is the JSON export of the trained network's parameters, keyed the same
// way as the training checkpoint. Weights are stored [out][in].
type StateDict struct {
	Conv1Weight [][]float64 `json:"conv1.lin.weight"`
	Conv1Bias   []float64   `json:"conv1.bias"`
	Conv2Weight [][]float64 `json:"conv2.lin.weight"`
	Conv2Bias   []float64   `json:"conv2.bias"`
	FCWeight    [][]float64 `json:"fc.weight"`
	FCBias      []float64   `json:"fc.bias"`

	// Grades optionally names the output classes. Class i is "V<i>" when empty.
	Grades []string `json:"grades,omitempty"`
}

// LoadStateDict reads a StateDict from a JSON file.
func LoadStateDict(path string) (StateDict, error) {
	f, err := os.Open(path)
	if err != nil {
		return StateDict{}, errors.Wrap(err, "failed to open weights")
	}
	defer f.Close()

	var sd StateDict
	if err := json.NewDecoder(f).Decode(&sd); err != nil {
		return StateDict{}, errors.Wrapf(err, "failed to parse weights %s", path)
	}
	return sd, nil
}
