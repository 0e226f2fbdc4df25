package model

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

const (
	defaultInputName  = "images"
	defaultOutputName = "output0"
)

// Metadata is the JSON sidecar exported next to every ONNX model.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
}

// LoadMetadata reads and validates a metadata sidecar.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "failed to read metadata")
	}

	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return Metadata{}, errors.Wrap(err, "failed to parse metadata")
	}
	if err := md.Validate(); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

// Validate fills in default tensor names and checks the shapes are usable.
func (md *Metadata) Validate() error {
	if md.InputName == "" {
		md.InputName = defaultInputName
	}
	if md.OutputName == "" {
		md.OutputName = defaultOutputName
	}
	if len(md.InputShape) == 0 || len(md.OutputShape) == 0 {
		return errors.New("metadata must declare input_shape and output_shape")
	}
	for _, d := range append(append([]int64{}, md.InputShape...), md.OutputShape...) {
		if d <= 0 {
			return errors.Errorf("metadata shapes must be static and positive, got input %v output %v",
				md.InputShape, md.OutputShape)
		}
	}
	if len(md.Classes) == 0 {
		return errors.New("metadata must list at least one class")
	}
	if md.ImageSize <= 0 {
		md.ImageSize = int(md.InputShape[len(md.InputShape)-1])
	}
	return nil
}

// InputSize is the number of float32 values the model expects.
func (md Metadata) InputSize() int {
	return volume(md.InputShape)
}

// OutputSize is the number of float32 values the model produces.
func (md Metadata) OutputSize() int {
	return volume(md.OutputShape)
}

func volume(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
