package v1

import (
	"github.com/agrovision/leaf-diagnosis/internal/usecase"
	"github.com/agrovision/leaf-diagnosis/pkg/logger"
)

type V1 struct {
	diag   usecase.DiagnosisUseCase
	inf    usecase.InferenceUseCase
	logger logger.Interface
}

type Analytics struct {
	an     usecase.AnalyticsUseCase
	logger logger.Interface
}
