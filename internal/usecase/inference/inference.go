package inference

import (
	"context"
	"fmt"

	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/internal/usecase"
)

// UseCase hands image bytes to the loaded model. The model reference is set
// once at startup and only ever read afterwards.
type UseCase struct {
	model usecase.Classifier
}

func New(model usecase.Classifier) *UseCase {
	return &UseCase{model: model}
}

func (uc *UseCase) Classify(ctx context.Context, data []byte) (entity.Prediction, error) {
	p, err := uc.model.Classify(ctx, data)
	if err != nil {
		return entity.Prediction{}, fmt.Errorf("UseCase - Classify - uc.model.Classify: %w", err)
	}

	return p, nil
}

func (uc *UseCase) ModelVersion() string {
	return uc.model.Version()
}
