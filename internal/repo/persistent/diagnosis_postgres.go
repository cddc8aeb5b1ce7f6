package persistent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/agrovision/leaf-diagnosis/internal/dto"
	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/pkg/postgres"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	// Table
	diagnosisTable = "diagnosis"

	// Columns
	diagIDColumn         = "id"
	diagImageIDColumn    = "image_id"
	diagOwnerColumn      = "owner_user_id"
	autoLabelColumn      = "automatic_label"
	autoConfidenceColumn = "automatic_confidence"
	probabilitiesColumn  = "probabilities"
	manualLabelColumn    = "manual_label"
	remarkColumn         = "remark"
	diagStatusColumn     = "status"
	diagCreatedAtColumn  = "created_at"
	diagnosedAtColumn    = "diagnosed_at"
	correctedAtColumn    = "corrected_at"
	correctedByColumn    = "corrected_by"

	// COALESCE(manual, automatic): the label a record effectively carries.
	effectiveLabelExpr = "COALESCE(" + manualLabelColumn + ", " + autoLabelColumn + ")"
)

var diagnosisColumns = []string{
	diagIDColumn,
	diagImageIDColumn,
	diagOwnerColumn,
	autoLabelColumn,
	autoConfidenceColumn,
	probabilitiesColumn,
	manualLabelColumn,
	remarkColumn,
	diagStatusColumn,
	diagCreatedAtColumn,
	diagnosedAtColumn,
	correctedAtColumn,
	correctedByColumn,
}

type DiagnosisRepo struct {
	*postgres.Postgres
}

func NewDiagnosisRepo(pg *postgres.Postgres) *DiagnosisRepo {
	return &DiagnosisRepo{pg}
}

func (r *DiagnosisRepo) Create(ctx context.Context, d *entity.Diagnosis) error {
	sql, args, err := r.Builder.
		Insert(diagnosisTable).
		Columns(
			diagIDColumn,
			diagImageIDColumn,
			diagOwnerColumn,
			diagStatusColumn,
			diagCreatedAtColumn,
		).
		Values(
			d.ID,
			d.ImageID,
			d.OwnerUserID,
			d.Status,
			d.CreatedAt,
		).ToSql()
	if err != nil {
		return fmt.Errorf("DiagnosisRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("DiagnosisRepo - Create - executor.Exec: %w", err)
	}

	return nil
}

func (r *DiagnosisRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Diagnosis, error) {
	sql, args, err := r.Builder.
		Select(diagnosisColumns...).
		From(diagnosisTable).
		Where(squirrel.Eq{diagIDColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - GetByID - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	d, err := scanDiagnosis(executor.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("DiagnosisRepo - GetByID: %w", errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("DiagnosisRepo - GetByID - scanDiagnosis: %w", err)
	}

	return d, nil
}

// RecordAutomatic is a compare-and-set on status: the row is updated only while
// it is still pending, so classification is at-most-once per record.
func (r *DiagnosisRepo) RecordAutomatic(ctx context.Context, id uuid.UUID, p entity.Prediction, at time.Time) (*entity.Diagnosis, error) {
	probs, err := json.Marshal(p.Probabilities)
	if err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - RecordAutomatic - json.Marshal: %w", err)
	}

	sql, args, err := r.Builder.
		Update(diagnosisTable).
		Set(autoLabelColumn, p.Label).
		Set(autoConfidenceColumn, p.Confidence).
		Set(probabilitiesColumn, probs).
		Set(diagStatusColumn, entity.AutoClassified).
		Set(diagnosedAtColumn, at).
		Where(squirrel.And{
			squirrel.Eq{diagIDColumn: id},
			squirrel.Eq{diagStatusColumn: entity.Pending},
		}).
		Suffix("RETURNING " + strings.Join(diagnosisColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - RecordAutomatic - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	d, err := scanDiagnosis(executor.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.resolveTransitionConflict(ctx, id, entity.Pending)
		}
		return nil, fmt.Errorf("DiagnosisRepo - RecordAutomatic - scanDiagnosis: %w", err)
	}

	return d, nil
}

// ApplyManualCorrection is a compare-and-set on status: only records that
// already carry an automatic baseline can be corrected. A matching label yields
// confirmed, a differing one corrected; both states stay re-correctable.
func (r *DiagnosisRepo) ApplyManualCorrection(ctx context.Context, id, ownerID uuid.UUID, c dto.ManualCorrection, at time.Time) (*entity.Diagnosis, error) {
	reviewable := []entity.Status{entity.AutoClassified, entity.Corrected, entity.Confirmed}

	sql, args, err := r.Builder.
		Update(diagnosisTable).
		Set(manualLabelColumn, c.Label).
		Set(remarkColumn, c.Remark).
		Set(correctedAtColumn, at).
		Set(correctedByColumn, c.ByUserID).
		Set(diagStatusColumn, squirrel.Expr(
			"CASE WHEN "+autoLabelColumn+" = ? THEN ? ELSE ? END",
			c.Label, entity.Confirmed, entity.Corrected,
		)).
		Where(squirrel.And{
			squirrel.Eq{diagIDColumn: id},
			squirrel.Eq{diagOwnerColumn: ownerID},
			squirrel.Eq{diagStatusColumn: reviewable},
		}).
		Suffix("RETURNING " + strings.Join(diagnosisColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - ApplyManualCorrection - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	d, err := scanDiagnosis(executor.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.resolveCorrectionConflict(ctx, id, ownerID)
		}
		return nil, fmt.Errorf("DiagnosisRepo - ApplyManualCorrection - scanDiagnosis: %w", err)
	}

	return d, nil
}

func (r *DiagnosisRepo) Query(ctx context.Context, f dto.DiagnosisFilter, page dto.Page) ([]*entity.Diagnosis, error) {
	builder := r.Builder.
		Select(diagnosisColumns...).
		From(diagnosisTable).
		OrderBy(diagCreatedAtColumn + " DESC")

	builder = applyDiagnosisFilter(builder, f)

	if page.Limit > 0 {
		builder = builder.Limit(uint64(page.Limit)).Offset(uint64(page.Offset))
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - Query - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - Query - executor.Query: %w", err)
	}
	defer rows.Close()

	var result []*entity.Diagnosis
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, fmt.Errorf("DiagnosisRepo - Query - scanDiagnosis: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - Query - rows.Err: %w", err)
	}

	return result, nil
}

func (r *DiagnosisRepo) CountByLabel(ctx context.Context, f dto.DiagnosisFilter) (map[entity.Label]int64, error) {
	builder := r.Builder.
		Select(effectiveLabelExpr+" AS label", "COUNT(*)").
		From(diagnosisTable).
		Where(effectiveLabelExpr + " IS NOT NULL").
		GroupBy("1")

	builder = applyDiagnosisFilter(builder, f)

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - CountByLabel - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - CountByLabel - executor.Query: %w", err)
	}
	defer rows.Close()

	counts := make(map[entity.Label]int64)
	for rows.Next() {
		var label string
		var count int64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("DiagnosisRepo - CountByLabel - rows.Scan: %w", err)
		}
		counts[entity.Label(label)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - CountByLabel - rows.Err: %w", err)
	}

	return counts, nil
}

func (r *DiagnosisRepo) AgreementCounts(ctx context.Context, f dto.DiagnosisFilter) (int64, int64, error) {
	builder := r.Builder.
		Select(
			"COUNT(*) FILTER (WHERE "+diagStatusColumn+" IN ('confirmed', 'corrected'))",
			"COUNT(*) FILTER (WHERE "+diagStatusColumn+" = 'confirmed'"+
				" OR ("+diagStatusColumn+" = 'corrected' AND "+manualLabelColumn+" = "+autoLabelColumn+"))",
		).
		From(diagnosisTable)

	builder = applyDiagnosisFilter(builder, f)

	sql, args, err := builder.ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("DiagnosisRepo - AgreementCounts - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var reviewed, agreed int64
	err = executor.QueryRow(ctx, sql, args...).Scan(&reviewed, &agreed)
	if err != nil {
		return 0, 0, fmt.Errorf("DiagnosisRepo - AgreementCounts - executor.QueryRow: %w", err)
	}

	return reviewed, agreed, nil
}

func (r *DiagnosisRepo) CountByBucket(ctx context.Context, f dto.DiagnosisFilter, g dto.Granularity) (map[time.Time]int64, error) {
	// g comes from a closed enum, safe to interpolate
	bucketExpr := fmt.Sprintf("date_trunc('%s', %s AT TIME ZONE 'UTC')", g, diagCreatedAtColumn)

	builder := r.Builder.
		Select(bucketExpr+" AS bucket", "COUNT(*)").
		From(diagnosisTable).
		GroupBy("1")

	builder = applyDiagnosisFilter(builder, f)

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - CountByBucket - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - CountByBucket - executor.Query: %w", err)
	}
	defer rows.Close()

	counts := make(map[time.Time]int64)
	for rows.Next() {
		var bucket time.Time
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("DiagnosisRepo - CountByBucket - rows.Scan: %w", err)
		}
		counts[bucket.UTC()] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DiagnosisRepo - CountByBucket - rows.Err: %w", err)
	}

	return counts, nil
}

func (r *DiagnosisRepo) Count(ctx context.Context) (int64, error) {
	sql, args, err := r.Builder.
		Select("COUNT(*)").
		From(diagnosisTable).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("DiagnosisRepo - Count - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var count int64
	err = executor.QueryRow(ctx, sql, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("DiagnosisRepo - Count - executor.QueryRow: %w", err)
	}

	return count, nil
}

func (r *DiagnosisRepo) CountDistinctOwners(ctx context.Context) (int64, error) {
	sql, args, err := r.Builder.
		Select("COUNT(DISTINCT " + diagOwnerColumn + ")").
		From(diagnosisTable).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("DiagnosisRepo - CountDistinctOwners - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var count int64
	err = executor.QueryRow(ctx, sql, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("DiagnosisRepo - CountDistinctOwners - executor.QueryRow: %w", err)
	}

	return count, nil
}

// resolveTransitionConflict maps a missed CAS update on recordAutomatic to the
// proper state-conflict error.
func (r *DiagnosisRepo) resolveTransitionConflict(ctx context.Context, id uuid.UUID, expected entity.Status) error {
	d, err := r.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("DiagnosisRepo - resolveTransitionConflict: %w", err)
	}

	if d.Status != expected {
		return fmt.Errorf("DiagnosisRepo - resolveTransitionConflict - status %q: %w", d.Status, errs.ErrAlreadyClassified)
	}

	return fmt.Errorf("DiagnosisRepo - resolveTransitionConflict: %w", errs.ErrRecordNotFound)
}

func (r *DiagnosisRepo) resolveCorrectionConflict(ctx context.Context, id, ownerID uuid.UUID) error {
	d, err := r.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("DiagnosisRepo - resolveCorrectionConflict: %w", err)
	}

	if d.OwnerUserID != ownerID {
		return fmt.Errorf("DiagnosisRepo - resolveCorrectionConflict: %w", errs.ErrRecordNotFound)
	}

	if d.Status == entity.Pending {
		return fmt.Errorf("DiagnosisRepo - resolveCorrectionConflict: %w", errs.ErrNotYetClassified)
	}

	return fmt.Errorf("DiagnosisRepo - resolveCorrectionConflict: %w", errs.ErrRecordNotFound)
}

func applyDiagnosisFilter(builder squirrel.SelectBuilder, f dto.DiagnosisFilter) squirrel.SelectBuilder {
	if f.OwnerUserID != nil {
		builder = builder.Where(squirrel.Eq{diagOwnerColumn: *f.OwnerUserID})
	}
	if len(f.LabelIn) > 0 {
		builder = builder.Where(squirrel.Eq{effectiveLabelExpr: f.LabelIn})
	}
	if f.Status != nil {
		builder = builder.Where(squirrel.Eq{diagStatusColumn: *f.Status})
	}
	if f.DateFrom != nil {
		builder = builder.Where(squirrel.GtOrEq{diagCreatedAtColumn: *f.DateFrom})
	}
	if f.DateTo != nil {
		builder = builder.Where(squirrel.Lt{diagCreatedAtColumn: *f.DateTo})
	}

	return builder
}

func scanDiagnosis(row pgx.Row) (*entity.Diagnosis, error) {
	var (
		d         entity.Diagnosis
		autoLabel *string
		manLabel  *string
		probsJSON []byte
	)

	err := row.Scan(
		&d.ID,
		&d.ImageID,
		&d.OwnerUserID,
		&autoLabel,
		&d.AutomaticConfidence,
		&probsJSON,
		&manLabel,
		&d.Remark,
		&d.Status,
		&d.CreatedAt,
		&d.DiagnosedAt,
		&d.CorrectedAt,
		&d.CorrectedBy,
	)
	if err != nil {
		return nil, err
	}

	if autoLabel != nil {
		l := entity.Label(*autoLabel)
		d.AutomaticLabel = &l
	}
	if manLabel != nil {
		l := entity.Label(*manLabel)
		d.ManualLabel = &l
	}
	if len(probsJSON) > 0 {
		if err := json.Unmarshal(probsJSON, &d.Probabilities); err != nil {
			return nil, fmt.Errorf("json.Unmarshal probabilities: %w", err)
		}
	}

	return &d, nil
}
