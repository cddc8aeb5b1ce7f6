package v1

import (
	"github.com/agrovision/leaf-diagnosis/internal/usecase"
	"github.com/agrovision/leaf-diagnosis/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

func NewDiagnosisRoutes(apiV1Group fiber.Router, diag usecase.DiagnosisUseCase, inf usecase.InferenceUseCase, l logger.Interface) {
	r := &V1{diag: diag, inf: inf, logger: l}

	{
		apiV1Group.Post("/diagnosis/upload-image", r.uploadImage)
		apiV1Group.Post("/diagnosis/upload-images", r.uploadImages)
		apiV1Group.Post("/diagnosis/diagnose", r.diagnoseOnUpload)
		apiV1Group.Put("/diagnosis/:id/manual", r.updateManualDiagnosis)
		apiV1Group.Get("/diagnoses", r.listDiagnoses)
	}
}

func NewAnalyticsRoutes(apiV1Group fiber.Router, an usecase.AnalyticsUseCase, l logger.Interface) {
	r := &Analytics{an: an, logger: l}

	{
		apiV1Group.Get("/analytics/diagnosis-report", r.diagnosisReport)
		apiV1Group.Get("/analytics/system-report", r.systemReport)
	}
}
