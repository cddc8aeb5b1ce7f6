package persistent

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/pkg/postgres"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	// Table
	imagesTable = "images"

	// Columns
	imageIDColumn      = "id"
	imageOwnerColumn   = "owner_user_id"
	storageKeyColumn   = "storage_key"
	originalNameColumn = "original_name"
	contentTypeColumn  = "content_type"
	byteSizeColumn     = "byte_size"
	uploadedAtColumn   = "uploaded_at"
)

type ImageAssetRepo struct {
	*postgres.Postgres
}

func NewImageAssetRepo(pg *postgres.Postgres) *ImageAssetRepo {
	return &ImageAssetRepo{pg}
}

func (r *ImageAssetRepo) Create(ctx context.Context, asset *entity.ImageAsset) error {
	sql, args, err := r.Builder.
		Insert(imagesTable).
		Columns(
			imageIDColumn,
			imageOwnerColumn,
			storageKeyColumn,
			originalNameColumn,
			contentTypeColumn,
			byteSizeColumn,
			uploadedAtColumn,
		).
		Values(
			asset.ID,
			asset.OwnerUserID,
			asset.StorageKey,
			asset.OriginalName,
			asset.ContentType,
			asset.ByteSize,
			asset.UploadedAt,
		).ToSql()
	if err != nil {
		return fmt.Errorf("ImageAssetRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("ImageAssetRepo - Create - executor.Exec: %w", err)
	}

	return nil
}

func (r *ImageAssetRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.ImageAsset, error) {
	sql, args, err := r.Builder.
		Select(
			imageIDColumn,
			imageOwnerColumn,
			storageKeyColumn,
			originalNameColumn,
			contentTypeColumn,
			byteSizeColumn,
			uploadedAtColumn,
		).
		From(imagesTable).
		Where(squirrel.Eq{imageIDColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ImageAssetRepo - GetByID - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var asset entity.ImageAsset
	err = executor.QueryRow(ctx, sql, args...).Scan(
		&asset.ID,
		&asset.OwnerUserID,
		&asset.StorageKey,
		&asset.OriginalName,
		&asset.ContentType,
		&asset.ByteSize,
		&asset.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ImageAssetRepo - GetByID: %w", errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("ImageAssetRepo - GetByID - executor.QueryRow: %w", err)
	}

	return &asset, nil
}

func (r *ImageAssetRepo) Count(ctx context.Context) (int64, error) {
	sql, args, err := r.Builder.
		Select("COUNT(*)").
		From(imagesTable).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("ImageAssetRepo - Count - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var count int64
	err = executor.QueryRow(ctx, sql, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ImageAssetRepo - Count - executor.QueryRow: %w", err)
	}

	return count, nil
}
