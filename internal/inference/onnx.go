package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/example/image-classifier/internal/imageprocessor"
)

// LoadOptions locates the artifacts produced by the training pipeline.
type LoadOptions struct {
	ModelPath     string
	MetadataPath  string
	SharedLibrary string
}

// ONNXModel runs the exported classifier through onnxruntime. The session is
// bound to a single pre-allocated input and output tensor, so Run calls are
// serialized behind mu.
type ONNXModel struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	output     *ort.Tensor[float32]
	inputShape [4]int64
	metadata   Metadata
}

// LoadModel reads the metadata, initializes onnxruntime and opens a session.
// It is meant to run once at process start; every failure is a *ModelLoadError.
func LoadModel(opts LoadOptions) (*ONNXModel, error) {
	meta, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, &ModelLoadError{Path: opts.MetadataPath, Err: err}
	}

	if opts.ModelPath == "" {
		return nil, &ModelLoadError{Err: errors.New("model path is empty")}
	}
	info, err := os.Stat(opts.ModelPath)
	if err != nil {
		return nil, &ModelLoadError{Path: opts.ModelPath, Err: err}
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, &ModelLoadError{Path: opts.ModelPath, Err: errors.New("not a model file")}
	}

	if opts.SharedLibrary != "" {
		ort.SetSharedLibraryPath(opts.SharedLibrary)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, &ModelLoadError{Path: opts.ModelPath, Err: fmt.Errorf("initialize onnxruntime: %w", err)}
	}

	size := int64(meta.ImageSize)
	inputShape := [4]int64{1, size, size, imageprocessor.Channels}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape[:]...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, &ModelLoadError{Path: opts.ModelPath, Err: fmt.Errorf("create input tensor: %w", err)}
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		input.Destroy()
		ort.DestroyEnvironment()
		return nil, &ModelLoadError{Path: opts.ModelPath, Err: fmt.Errorf("create output tensor: %w", err)}
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		ort.DestroyEnvironment()
		return nil, &ModelLoadError{Path: opts.ModelPath, Err: fmt.Errorf("create session: %w", err)}
	}

	return &ONNXModel{
		session:    session,
		input:      input,
		output:     output,
		inputShape: inputShape,
		metadata:   meta,
	}, nil
}

// Metadata returns a copy of the model description.
func (m *ONNXModel) Metadata() Metadata {
	meta := m.metadata
	meta.Classes = append([]string(nil), m.metadata.Classes...)
	return meta
}

// Score runs one forward pass. The tensor must match the model input shape
// exactly; no reshaping is attempted.
func (m *ONNXModel) Score(_ context.Context, tensor *imageprocessor.Tensor) (float32, error) {
	if tensor == nil || tensor.Shape != m.inputShape || int64(len(tensor.Data)) != tensor.Len() {
		var got [4]int64
		if tensor != nil {
			got = tensor.Shape
		}
		return 0, &InferenceError{Err: fmt.Errorf("tensor shape %v does not match model input %v", got, m.inputShape)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.input.GetData(), tensor.Data)
	if err := m.session.Run(); err != nil {
		return 0, &InferenceError{Err: err}
	}

	out := m.output.GetData()
	if len(out) == 0 {
		return 0, &InferenceError{Err: errors.New("model produced no output")}
	}
	return out[0], nil
}

// Close releases the session and the onnxruntime environment.
func (m *ONNXModel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
	if m.session != nil {
		m.session.Destroy()
	}
	ort.DestroyEnvironment()
}
