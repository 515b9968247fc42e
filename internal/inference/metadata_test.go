package inference

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/image-classifier/internal/imageprocessor"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMetadataDefaults(t *testing.T) {
	meta, err := LoadMetadata("")
	require.NoError(t, err)
	require.Equal(t, []string{"Cat", "Dog"}, meta.Classes)
	require.Equal(t, imageprocessor.DefaultSize, meta.ImageSize)
	require.Equal(t, "bilinear", meta.Resample)

	n, err := meta.Normalizer()
	require.NoError(t, err)
	require.Equal(t, imageprocessor.DefaultSize, n.Size())
	require.Equal(t, "bilinear", n.Resampler().Name())
}

func TestLoadMetadataOverridesDefaults(t *testing.T) {
	path := writeFile(t, "model_metadata.json", `{
		"model_name": "pets",
		"version": "2024-05",
		"accuracy": 0.942,
		"resample": "lanczos3",
		"output_name": "dense_1"
	}`)

	meta, err := LoadMetadata(path)
	require.NoError(t, err)
	require.Equal(t, "pets", meta.ModelName)
	require.Equal(t, 0.942, meta.Accuracy)
	require.Equal(t, "dense_1", meta.OutputName)
	require.Equal(t, "input", meta.InputName)
	require.Equal(t, []string{"Cat", "Dog"}, meta.Classes)

	n, err := meta.Normalizer()
	require.NoError(t, err)
	require.Equal(t, "lanczos3", n.Resampler().Name())
}

func TestLoadMetadataRejectsInvalidFiles(t *testing.T) {
	for name, body := range map[string]string{
		"bad json":      `{"classes":`,
		"three classes": `{"classes":["a","b","c"]}`,
		"bad resample":  `{"resample":"area"}`,
		"zero size":     `{"image_size":0}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadMetadata(writeFile(t, "meta.json", body))
			require.Error(t, err)
		})
	}
}

func TestLoadModelFailsWithoutArtifact(t *testing.T) {
	_, err := LoadModel(LoadOptions{ModelPath: filepath.Join(t.TempDir(), "missing.onnx")})

	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadModelFailsOnBadMetadata(t *testing.T) {
	model := writeFile(t, "model.onnx", "not really onnx")
	_, err := LoadModel(LoadOptions{
		ModelPath:    model,
		MetadataPath: writeFile(t, "meta.json", `{"classes":["only"]}`),
	})

	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestLoadModelRejectsEmptyFile(t *testing.T) {
	_, err := LoadModel(LoadOptions{ModelPath: writeFile(t, "empty.onnx", "")})

	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
}
