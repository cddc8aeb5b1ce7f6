package usecase

import (
	"context"

	"github.com/agrovision/leaf-diagnosis/internal/dto"
	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/google/uuid"
)

type (
	// Classifier is the pretrained model boundary: pure over immutable
	// weights, safe for concurrent callers, no retries of its own.
	Classifier interface {
		Classify(ctx context.Context, data []byte) (entity.Prediction, error)
		Version() string
	}

	// InferenceUseCase exposes the classifier to the controllers.
	InferenceUseCase interface {
		Classify(ctx context.Context, data []byte) (entity.Prediction, error)
		ModelVersion() string
	}

	DiagnosisUseCase interface {
		IntakeImage(ctx context.Context, ownerID uuid.UUID, item dto.IntakeItem) (*entity.ImageAsset, *entity.Diagnosis, error)
		IntakeImages(ctx context.Context, ownerID uuid.UUID, items []dto.IntakeItem) []dto.IntakeResult
		GetByID(ctx context.Context, diagnosisID uuid.UUID) (*entity.Diagnosis, error)
		RecordAutomatic(ctx context.Context, diagnosisID uuid.UUID, p entity.Prediction) (*entity.Diagnosis, error)
		ApplyManualCorrection(ctx context.Context, diagnosisID uuid.UUID, c dto.ManualCorrection) (*entity.Diagnosis, error)
		List(ctx context.Context, f dto.DiagnosisFilter, page dto.Page) ([]*entity.Diagnosis, error)
		DownloadImageBytes(ctx context.Context, storageKey string) ([]byte, error)

		GetPendingEvents(ctx context.Context, maxRetries, limit int) ([]*entity.OutboxEvent, error)
		MarkAsProcessingBatch(ctx context.Context, events []*entity.OutboxEvent) error
		MarkAsProcessedBatch(ctx context.Context, events []*entity.OutboxEvent) error
		IncrementRetryCountBatch(ctx context.Context, events []*entity.OutboxEvent) error
		MarkMaxRetriesAsFailed(ctx context.Context, maxRetries int) error
		CleanupOutbox(ctx context.Context) error
	}

	AnalyticsUseCase interface {
		DiagnosisReport(ctx context.Context, f dto.ReportFilter) (*entity.AnalyticsSnapshot, error)
		SystemReport(ctx context.Context) (*entity.SystemReport, error)
	}
)
