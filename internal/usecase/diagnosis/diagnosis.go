package diagnosis

import (
	"context"
	"fmt"
	"time"

	"github.com/agrovision/leaf-diagnosis/internal/dto"
	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/internal/repo"
	"github.com/agrovision/leaf-diagnosis/pkg/logger"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/google/uuid"
)

const _maxImageBytes = 10 * 1024 * 1024

var _allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
}

type UseCase struct {
	blobRepo   repo.BlobRepo
	assetRepo  repo.ImageAssetRepo
	diagRepo   repo.DiagnosisRepo
	outboxRepo repo.OutboxRepo
	transactor repo.Transactor

	logger logger.Interface
}

func New(
	blobRepo repo.BlobRepo,
	assetRepo repo.ImageAssetRepo,
	diagRepo repo.DiagnosisRepo,
	outboxRepo repo.OutboxRepo,
	transactor repo.Transactor,
	l logger.Interface,
) *UseCase {
	return &UseCase{
		blobRepo:   blobRepo,
		assetRepo:  assetRepo,
		diagRepo:   diagRepo,
		outboxRepo: outboxRepo,
		transactor: transactor,
		logger:     l,
	}
}

// IntakeImage stores the raw bytes durably, then creates the asset record, a
// pending diagnosis and a classification outbox event in one transaction.
// Bytes land in S3 before anything is acknowledged; if the transaction fails
// the stored object is deleted again.
func (uc *UseCase) IntakeImage(ctx context.Context, ownerID uuid.UUID, item dto.IntakeItem) (*entity.ImageAsset, *entity.Diagnosis, error) {
	if err := validateItem(item); err != nil {
		return nil, nil, err
	}

	assetID := uuid.New()
	storageKey := fmt.Sprintf("leaves/%s", assetID)

	// 1. durable storage first
	err := uc.blobRepo.UploadBytes(ctx, storageKey, item.Data, item.ContentType)
	if err != nil {
		return nil, nil, fmt.Errorf("UseCase - IntakeImage - uc.blobRepo.UploadBytes: %w", err)
	}

	now := time.Now()

	asset := &entity.ImageAsset{
		ID:           assetID,
		OwnerUserID:  ownerID,
		StorageKey:   storageKey,
		OriginalName: item.OriginalName,
		ContentType:  item.ContentType,
		ByteSize:     int64(len(item.Data)),
		UploadedAt:   now,
	}

	diagnosis := &entity.Diagnosis{
		ID:          uuid.New(),
		ImageID:     assetID,
		OwnerUserID: ownerID,
		Status:      entity.Pending,
		CreatedAt:   now,
	}

	// 2. asset + diagnosis + outbox event in one transaction
	err = uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := uc.assetRepo.Create(ctx, asset); err != nil {
			return fmt.Errorf("UseCase - IntakeImage - uc.assetRepo.Create: %w", err)
		}

		if err := uc.diagRepo.Create(ctx, diagnosis); err != nil {
			return fmt.Errorf("UseCase - IntakeImage - uc.diagRepo.Create: %w", err)
		}

		event, err := uc.createOutboxEvent(diagnosis, storageKey, item.ContentType)
		if err != nil {
			return fmt.Errorf("UseCase - IntakeImage - uc.createOutboxEvent: %w", err)
		}
		if err := uc.outboxRepo.Create(ctx, event); err != nil {
			return fmt.Errorf("UseCase - IntakeImage - uc.outboxRepo.Create: %w", err)
		}

		return nil
	})

	if err != nil {
		deleteErr := uc.blobRepo.Delete(ctx, storageKey)
		if deleteErr != nil {
			uc.logger.Error(deleteErr, "UseCase - IntakeImage - uc.blobRepo.Delete")
		}
		return nil, nil, fmt.Errorf("UseCase - IntakeImage - uc.transactor.WithinTransaction: %w", err)
	}

	return asset, diagnosis, nil
}

// IntakeImages processes each item independently: one bad image never aborts
// the rest of the batch.
func (uc *UseCase) IntakeImages(ctx context.Context, ownerID uuid.UUID, items []dto.IntakeItem) []dto.IntakeResult {
	results := make([]dto.IntakeResult, 0, len(items))

	for _, item := range items {
		asset, diagnosis, err := uc.IntakeImage(ctx, ownerID, item)
		results = append(results, dto.IntakeResult{
			OriginalName: item.OriginalName,
			Asset:        asset,
			Diagnosis:    diagnosis,
			Err:          err,
		})
	}

	return results
}

func (uc *UseCase) GetByID(ctx context.Context, diagnosisID uuid.UUID) (*entity.Diagnosis, error) {
	d, err := uc.diagRepo.GetByID(ctx, diagnosisID)
	if err != nil {
		return nil, fmt.Errorf("UseCase - GetByID - uc.diagRepo.GetByID: %w", err)
	}

	return d, nil
}

// RecordAutomatic attaches the classifier output to a pending record. The
// underlying transition is a compare-and-set, so a concurrent or repeated call
// surfaces errs.ErrAlreadyClassified instead of overwriting the first result.
func (uc *UseCase) RecordAutomatic(ctx context.Context, diagnosisID uuid.UUID, p entity.Prediction) (*entity.Diagnosis, error) {
	d, err := uc.diagRepo.RecordAutomatic(ctx, diagnosisID, p, time.Now())
	if err != nil {
		return nil, fmt.Errorf("UseCase - RecordAutomatic - uc.diagRepo.RecordAutomatic: %w", err)
	}

	return d, nil
}

// ApplyManualCorrection records a human verdict. Allowed only once the record
// has an automatic baseline; re-correction overwrites the previous verdict in
// place.
func (uc *UseCase) ApplyManualCorrection(ctx context.Context, diagnosisID uuid.UUID, c dto.ManualCorrection) (*entity.Diagnosis, error) {
	d, err := uc.diagRepo.ApplyManualCorrection(ctx, diagnosisID, c.ByUserID, c, time.Now())
	if err != nil {
		return nil, fmt.Errorf("UseCase - ApplyManualCorrection - uc.diagRepo.ApplyManualCorrection: %w", err)
	}

	return d, nil
}

func (uc *UseCase) List(ctx context.Context, f dto.DiagnosisFilter, page dto.Page) ([]*entity.Diagnosis, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	diagnoses, err := uc.diagRepo.Query(ctx, f, page)
	if err != nil {
		return nil, fmt.Errorf("UseCase - List - uc.diagRepo.Query: %w", err)
	}

	return diagnoses, nil
}

func (uc *UseCase) DownloadImageBytes(ctx context.Context, storageKey string) ([]byte, error) {
	b, err := uc.blobRepo.DownloadBytes(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("UseCase - DownloadImageBytes - uc.blobRepo.DownloadBytes: %w", err)
	}

	return b, nil
}

func validateItem(item dto.IntakeItem) error {
	if len(item.Data) == 0 {
		return fmt.Errorf("UseCase - validateItem - empty image: %w", errs.ErrInvalidFormat)
	}

	if len(item.Data) > _maxImageBytes {
		return fmt.Errorf("UseCase - validateItem - %d bytes: %w", len(item.Data), errs.ErrPayloadTooLarge)
	}

	if !_allowedContentTypes[item.ContentType] {
		return fmt.Errorf("UseCase - validateItem - content type %q: %w", item.ContentType, errs.ErrInvalidFormat)
	}

	return nil
}
