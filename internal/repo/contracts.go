package repo

import (
	"context"
	"time"

	"github.com/agrovision/leaf-diagnosis/internal/dto"
	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/google/uuid"
)

type (
	// BlobRepo stores raw image bytes in durable object storage.
	BlobRepo interface {
		UploadBytes(ctx context.Context, key string, data []byte, contentType string) error
		DownloadBytes(ctx context.Context, key string) ([]byte, error)
		Delete(ctx context.Context, key string) error
	}

	ImageAssetRepo interface {
		Create(ctx context.Context, asset *entity.ImageAsset) error
		GetByID(ctx context.Context, id uuid.UUID) (*entity.ImageAsset, error)
		Count(ctx context.Context) (int64, error)
	}

	// DiagnosisRepo persists diagnosis records. Status transitions are
	// compare-and-set: the update applies only if the record is still in the
	// expected source state, so concurrent transitions can never interleave
	// into an invalid state.
	DiagnosisRepo interface {
		Create(ctx context.Context, d *entity.Diagnosis) error
		GetByID(ctx context.Context, id uuid.UUID) (*entity.Diagnosis, error)

		// RecordAutomatic moves pending -> auto_classified. Fails with
		// errs.ErrAlreadyClassified when the record already left pending.
		RecordAutomatic(ctx context.Context, id uuid.UUID, p entity.Prediction, at time.Time) (*entity.Diagnosis, error)

		// ApplyManualCorrection moves auto_classified|corrected|confirmed ->
		// corrected (or confirmed when the label matches the automatic one).
		// Fails with errs.ErrNotYetClassified from pending.
		ApplyManualCorrection(ctx context.Context, id, ownerID uuid.UUID, c dto.ManualCorrection, at time.Time) (*entity.Diagnosis, error)

		Query(ctx context.Context, f dto.DiagnosisFilter, page dto.Page) ([]*entity.Diagnosis, error)

		CountByLabel(ctx context.Context, f dto.DiagnosisFilter) (map[entity.Label]int64, error)
		AgreementCounts(ctx context.Context, f dto.DiagnosisFilter) (reviewed, agreed int64, err error)
		CountByBucket(ctx context.Context, f dto.DiagnosisFilter, g dto.Granularity) (map[time.Time]int64, error)
		Count(ctx context.Context) (int64, error)
		CountDistinctOwners(ctx context.Context) (int64, error)
	}

	OutboxRepo interface {
		Create(ctx context.Context, event *entity.OutboxEvent) error
		GetPendingEvents(ctx context.Context, maxRetries, limit int) ([]*entity.OutboxEvent, error)
		MarkAsProcessingBatch(ctx context.Context, ids uuid.UUIDs) error
		MarkAsProcessedBatch(ctx context.Context, ids uuid.UUIDs) error
		IncrementRetryCountBatch(ctx context.Context, ids uuid.UUIDs) error
		MarkMaxRetriesAsFailed(ctx context.Context, maxRetries int) error
		DeleteOldProcessedAndFailed(ctx context.Context) (int64, error)
	}

	Transactor interface {
		WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error
	}
)
