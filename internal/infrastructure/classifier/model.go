package classifier

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"gonum.org/v1/gonum/mat"
)

// Model is a pretrained linear classification head over preprocessed leaf
// images. It is loaded once at process start and read-only afterwards, so any
// number of goroutines may call Classify concurrently.
type Model struct {
	version   string
	inputSize int

	labels  []entity.Label // row order of weights and bias
	weights *mat.Dense     // len(labels) x featureDim
	bias    *mat.VecDense
}

type modelFile struct {
	Version   string      `json:"version"`
	InputSize int         `json:"input_size"`
	Labels    []string    `json:"labels"`
	Weights   [][]float64 `json:"weights"`
	Bias      []float64   `json:"bias"`
}

// Load reads exported model weights from path. Any error here is fatal for the
// service: without a model it must not declare itself ready.
func Load(path string) (*Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier - Load - os.ReadFile: %w", err)
	}

	var mf modelFile
	if err := json.Unmarshal(b, &mf); err != nil {
		return nil, fmt.Errorf("classifier - Load - json.Unmarshal: %w", err)
	}

	labels := make([]entity.Label, 0, len(mf.Labels))
	for _, s := range mf.Labels {
		label, err := entity.ParseLabel(s)
		if err != nil {
			return nil, fmt.Errorf("classifier - Load: %w", err)
		}
		labels = append(labels, label)
	}

	return New(mf.Version, mf.InputSize, labels, mf.Weights, mf.Bias)
}

func New(version string, inputSize int, labels []entity.Label, weights [][]float64, bias []float64) (*Model, error) {
	if version == "" {
		return nil, fmt.Errorf("classifier - New - empty model version")
	}
	if inputSize <= 0 {
		return nil, fmt.Errorf("classifier - New - input size %d", inputSize)
	}
	if len(labels) != len(entity.Labels()) {
		return nil, fmt.Errorf("classifier - New - got %d labels, want %d", len(labels), len(entity.Labels()))
	}

	seen := make(map[entity.Label]bool, len(labels))
	for _, l := range labels {
		if seen[l] {
			return nil, fmt.Errorf("classifier - New - duplicate label %q", l)
		}
		seen[l] = true
	}

	featureDim := inputSize * inputSize * 3

	if len(weights) != len(labels) || len(bias) != len(labels) {
		return nil, fmt.Errorf("classifier - New - weights/bias rows do not match %d labels", len(labels))
	}

	flat := make([]float64, 0, len(labels)*featureDim)
	for i, row := range weights {
		if len(row) != featureDim {
			return nil, fmt.Errorf("classifier - New - weights row %d has %d values, want %d", i, len(row), featureDim)
		}
		flat = append(flat, row...)
	}

	return &Model{
		version:   version,
		inputSize: inputSize,
		labels:    labels,
		weights:   mat.NewDense(len(labels), featureDim, flat),
		bias:      mat.NewVecDense(len(labels), bias),
	}, nil
}

func (m *Model) Version() string {
	return m.version
}
