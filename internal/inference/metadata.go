package inference

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/image-classifier/internal/imageprocessor"
)

// Metadata describes the model artifact and the preprocessing it was trained
// with. It is written by the training pipeline next to the model file.
type Metadata struct {
	ModelName  string   `json:"model_name"`
	Version    string   `json:"version"`
	Accuracy   float64  `json:"accuracy,omitempty"`
	Classes    []string `json:"classes"`
	ImageSize  int      `json:"image_size"`
	Resample   string   `json:"resample"`
	InputName  string   `json:"input_name"`
	OutputName string   `json:"output_name"`
}

// DefaultMetadata matches the cat/dog CNN: 224×224 RGB input, bilinear
// resize, one sigmoid output where 1 means "Dog".
func DefaultMetadata() Metadata {
	return Metadata{
		ModelName:  "catdog-cnn",
		Version:    "1",
		Classes:    []string{"Cat", "Dog"},
		ImageSize:  imageprocessor.DefaultSize,
		Resample:   imageprocessor.Bilinear.Name(),
		InputName:  "input",
		OutputName: "output",
	}
}

// LoadMetadata reads the metadata file at path over the defaults. An empty
// path returns the defaults unchanged.
func LoadMetadata(path string) (Metadata, error) {
	meta := DefaultMetadata()
	if path == "" {
		return meta, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Validate checks that the metadata describes a binary image classifier.
func (m Metadata) Validate() error {
	if len(m.Classes) != 2 {
		return fmt.Errorf("expected 2 classes, got %d", len(m.Classes))
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("invalid image size %d", m.ImageSize)
	}
	if m.InputName == "" || m.OutputName == "" {
		return fmt.Errorf("input and output tensor names are required")
	}
	if _, err := imageprocessor.ParseResampler(m.Resample); err != nil {
		return err
	}
	return nil
}

// Normalizer builds the image normalizer this model was trained against.
func (m Metadata) Normalizer() (*imageprocessor.Normalizer, error) {
	resampler, err := imageprocessor.ParseResampler(m.Resample)
	if err != nil {
		return nil, err
	}
	return imageprocessor.NewNormalizer(m.ImageSize, resampler), nil
}
