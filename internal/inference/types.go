package inference

import "fmt"

// Prediction is the labeled outcome of one classification. Confidence is
// rounded to two decimals; Score keeps the raw sigmoid output.
type Prediction struct {
	Label      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Score      float32 `json:"-"`
}

// InferenceError reports a failed forward pass or an unusable model output.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference: %v", e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// ModelLoadError reports a model artifact that could not be loaded.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}
