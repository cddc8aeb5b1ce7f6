package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/agrovision/leaf-diagnosis/internal/dto"
	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/internal/repo"
	"github.com/agrovision/leaf-diagnosis/internal/usecase"
)

// default report window when the caller gives no date range
const _defaultWindow = 30 * 24 * time.Hour

// UseCase computes reports by scanning the diagnosis store at call time.
// Nothing here is cached or persisted; every snapshot reflects the store as of
// the call.
type UseCase struct {
	diagRepo  repo.DiagnosisRepo
	assetRepo repo.ImageAssetRepo
	model     usecase.Classifier
}

func New(diagRepo repo.DiagnosisRepo, assetRepo repo.ImageAssetRepo, model usecase.Classifier) *UseCase {
	return &UseCase{
		diagRepo:  diagRepo,
		assetRepo: assetRepo,
		model:     model,
	}
}

func (uc *UseCase) DiagnosisReport(ctx context.Context, f dto.ReportFilter) (*entity.AnalyticsSnapshot, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	from, to := resolveWindow(f.DiagnosisFilter)
	f.DateFrom = &from
	f.DateTo = &to

	labelCounts, err := uc.diagRepo.CountByLabel(ctx, f.DiagnosisFilter)
	if err != nil {
		return nil, fmt.Errorf("UseCase - DiagnosisReport - uc.diagRepo.CountByLabel: %w", err)
	}

	reviewed, agreed, err := uc.diagRepo.AgreementCounts(ctx, f.DiagnosisFilter)
	if err != nil {
		return nil, fmt.Errorf("UseCase - DiagnosisReport - uc.diagRepo.AgreementCounts: %w", err)
	}

	bucketCounts, err := uc.diagRepo.CountByBucket(ctx, f.DiagnosisFilter, f.Granularity)
	if err != nil {
		return nil, fmt.Errorf("UseCase - DiagnosisReport - uc.diagRepo.CountByBucket: %w", err)
	}

	trend := fillBuckets(from, to, f.Granularity, bucketCounts)

	var total int64
	for _, b := range trend {
		total += b.Count
	}

	return &entity.AnalyticsSnapshot{
		DateFrom:       from,
		DateTo:         to,
		LabelCounts:    labelCounts,
		AgreementRate:  AgreementRate(reviewed, agreed),
		TotalDiagnoses: total,
		Trend:          trend,
		ModelVersion:   uc.model.Version(),
	}, nil
}

func (uc *UseCase) SystemReport(ctx context.Context) (*entity.SystemReport, error) {
	users, err := uc.diagRepo.CountDistinctOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("UseCase - SystemReport - uc.diagRepo.CountDistinctOwners: %w", err)
	}

	diagnoses, err := uc.diagRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("UseCase - SystemReport - uc.diagRepo.Count: %w", err)
	}

	images, err := uc.assetRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("UseCase - SystemReport - uc.assetRepo.Count: %w", err)
	}

	return &entity.SystemReport{
		TotalUsers:     users,
		TotalDiagnoses: diagnoses,
		TotalImages:    images,
		ModelVersion:   uc.model.Version(),
	}, nil
}

// AgreementRate is the fraction of reviewed diagnoses whose human verdict
// matches the automatic prediction. Zero, not NaN, when nothing was reviewed.
func AgreementRate(reviewed, agreed int64) float64 {
	if reviewed == 0 {
		return 0
	}

	return float64(agreed) / float64(reviewed)
}

func resolveWindow(f dto.DiagnosisFilter) (time.Time, time.Time) {
	to := time.Now().UTC()
	if f.DateTo != nil {
		to = f.DateTo.UTC()
	}

	from := to.Add(-_defaultWindow)
	if f.DateFrom != nil {
		from = f.DateFrom.UTC()
	}

	return from, to
}

// fillBuckets produces one bucket per granularity unit across [from, to),
// zero-filled, so trend charts have no gaps. Bucket starts follow Postgres
// date_trunc: days at midnight UTC, weeks on Monday, months on the first.
func fillBuckets(from, to time.Time, g dto.Granularity, counts map[time.Time]int64) []entity.TrendBucket {
	var trend []entity.TrendBucket

	for start := BucketStart(from, g); start.Before(to); start = nextBucket(start, g) {
		trend = append(trend, entity.TrendBucket{
			Start: start,
			Count: counts[start],
		})
	}

	return trend
}

// BucketStart truncates t to the start of its bucket, mirroring
// date_trunc(granularity, t) in UTC.
func BucketStart(t time.Time, g dto.Granularity) time.Time {
	t = t.UTC()

	switch g {
	case dto.GranularityWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// back to Monday
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case dto.GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func nextBucket(start time.Time, g dto.Granularity) time.Time {
	switch g {
	case dto.GranularityWeek:
		return start.AddDate(0, 0, 7)
	case dto.GranularityMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}
