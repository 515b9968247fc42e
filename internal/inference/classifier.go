package inference

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/example/image-classifier/internal/imageprocessor"
)

// Threshold splits the sigmoid score. Scores strictly above it select the
// second class; a score of exactly 0.5 selects the first.
const Threshold = 0.5

// Model runs a forward pass and returns the sigmoid score of the positive
// class. Implementations must be safe for concurrent use.
type Model interface {
	Score(ctx context.Context, tensor *imageprocessor.Tensor) (float32, error)
}

// Classifier maps model scores to labels. It holds no mutable state.
type Classifier struct {
	model   Model
	classes [2]string
}

// NewClassifier binds a loaded model to its two class names, negative first.
func NewClassifier(model Model, classes []string) (*Classifier, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	if len(classes) != 2 {
		return nil, fmt.Errorf("expected 2 class names, got %d", len(classes))
	}
	return &Classifier{model: model, classes: [2]string{classes[0], classes[1]}}, nil
}

// Classes returns the class names, negative class first.
func (c *Classifier) Classes() []string {
	return []string{c.classes[0], c.classes[1]}
}

// Classify scores tensor and applies the decision threshold.
func (c *Classifier) Classify(ctx context.Context, tensor *imageprocessor.Tensor) (*Prediction, error) {
	score, err := c.model.Score(ctx, tensor)
	if err != nil {
		var inferenceErr *InferenceError
		if errors.As(err, &inferenceErr) {
			return nil, err
		}
		return nil, &InferenceError{Err: err}
	}
	if math.IsNaN(float64(score)) || score < 0 || score > 1 {
		return nil, &InferenceError{Err: fmt.Errorf("score %v outside [0,1]", score)}
	}

	prediction := Decide(score, c.classes)
	return &prediction, nil
}

// Decide applies Threshold to score.
func Decide(score float32, classes [2]string) Prediction {
	s := float64(score)
	if s > Threshold {
		return Prediction{Label: classes[1], Confidence: Round2(s), Score: score}
	}
	return Prediction{Label: classes[0], Confidence: Round2(1 - s), Score: score}
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
