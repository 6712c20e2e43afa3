package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Tensor layouts understood by Preprocess.
const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"
)

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	Layout      string   `json:"layout"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
}

// InputSize is the number of float32 values the model consumes.
func (m Metadata) InputSize() int {
	return shapeSize(m.InputShape)
}

// OutputSize is the number of float32 values the model emits.
func (m Metadata) OutputSize() int {
	return shapeSize(m.OutputShape)
}

func shapeSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// LoadMetadata reads and validates the model's metadata file.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := meta.normalize(); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

func (m *Metadata) normalize() error {
	if m.Layout == "" {
		m.Layout = LayoutNHWC
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if m.Layout != LayoutNHWC && m.Layout != LayoutNCHW {
		return fmt.Errorf("unsupported layout %q", m.Layout)
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("image_size must be positive, got %d", m.ImageSize)
	}
	if want := 3 * m.ImageSize * m.ImageSize; m.InputSize() != want {
		return fmt.Errorf("input_shape %v does not hold one %dx%d RGB image", m.InputShape, m.ImageSize, m.ImageSize)
	}
	if m.OutputSize() != len(m.Classes) {
		return fmt.Errorf("output_shape %v does not match %d classes", m.OutputShape, len(m.Classes))
	}
	return nil
}

// PredictionRequest carries a preprocessed tensor for the raw prediction endpoint.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}
