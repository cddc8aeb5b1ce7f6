package classifier

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// per-channel normalization constants the model was trained with
var (
	_channelMean = [3]float64{0.485, 0.456, 0.406}
	_channelStd  = [3]float64{0.229, 0.224, 0.225}
)

// Probabilities this close to the maximum count as tied; ties resolve to the
// lexicographically first label so the prediction never depends on iteration
// order.
const _tieEpsilon = 1e-9

// Classify runs the model on raw image bytes and returns the full probability
// distribution plus the arg-max label. It never mutates model state.
func (m *Model) Classify(ctx context.Context, data []byte) (entity.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return entity.Prediction{}, fmt.Errorf("classifier - Classify - ctx.Err: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return entity.Prediction{}, fmt.Errorf("classifier - Classify - imaging.Decode: %w", errs.ErrDecodeImage)
	}

	features := m.preprocess(img)

	logits := mat.NewVecDense(len(m.labels), nil)
	logits.MulVec(m.weights, mat.NewVecDense(len(features), features))
	logits.AddVec(logits, m.bias)

	probs := softmax(logits.RawVector().Data)

	byLabel := make(map[entity.Label]float64, len(m.labels))
	for i, label := range m.labels {
		byLabel[label] = probs[i]
	}

	max := floats.Max(probs)

	var predicted entity.Label
	for _, label := range entity.Labels() {
		if byLabel[label] >= max-_tieEpsilon {
			predicted = label
			break
		}
	}

	return entity.Prediction{
		Probabilities: byLabel,
		Label:         predicted,
		Confidence:    byLabel[predicted],
	}, nil
}

// preprocess resizes to the model input and normalizes per channel, matching
// the training pipeline.
func (m *Model) preprocess(img image.Image) []float64 {
	resized := imaging.Resize(img, m.inputSize, m.inputSize, imaging.Lanczos)

	features := make([]float64, 0, m.inputSize*m.inputSize*3)
	for y := 0; y < m.inputSize; y++ {
		for x := 0; x < m.inputSize; x++ {
			offset := resized.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float64(resized.Pix[offset+c]) / 255.0
				features = append(features, (v-_channelMean[c])/_channelStd[c])
			}
		}
	}

	return features
}

// softmax over logits, computed against the log-sum-exp for numeric stability.
func softmax(logits []float64) []float64 {
	lse := floats.LogSumExp(logits)

	probs := make([]float64, len(logits))
	for i, l := range logits {
		probs[i] = math.Exp(l - lse)
	}

	return probs
}
