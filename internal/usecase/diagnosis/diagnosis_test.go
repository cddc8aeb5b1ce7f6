package diagnosis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agrovision/leaf-diagnosis/internal/dto"
	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/internal/usecase/analytics"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBlob struct {
	objects    map[string][]byte
	failUpload bool
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}}
}

func (b *memBlob) UploadBytes(_ context.Context, key string, data []byte, _ string) error {
	if b.failUpload {
		return errs.MarkTransient(errors.New("s3 down"))
	}
	b.objects[key] = data
	return nil
}

func (b *memBlob) DownloadBytes(_ context.Context, key string) ([]byte, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}
	return data, nil
}

func (b *memBlob) Delete(_ context.Context, key string) error {
	delete(b.objects, key)
	return nil
}

type memAssets struct {
	byID       map[uuid.UUID]*entity.ImageAsset
	failCreate bool
}

func newMemAssets() *memAssets {
	return &memAssets{byID: map[uuid.UUID]*entity.ImageAsset{}}
}

func (r *memAssets) Create(_ context.Context, asset *entity.ImageAsset) error {
	if r.failCreate {
		return errors.New("insert failed")
	}
	r.byID[asset.ID] = asset
	return nil
}

func (r *memAssets) GetByID(_ context.Context, id uuid.UUID) (*entity.ImageAsset, error) {
	asset, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}
	return asset, nil
}

func (r *memAssets) Count(context.Context) (int64, error) {
	return int64(len(r.byID)), nil
}

// memDiags mirrors the compare-and-set transition rules of the persistent
// repo, so state machine behavior is exercised through the use-case.
type memDiags struct {
	byID map[uuid.UUID]*entity.Diagnosis
}

func newMemDiags() *memDiags {
	return &memDiags{byID: map[uuid.UUID]*entity.Diagnosis{}}
}

func (r *memDiags) Create(_ context.Context, d *entity.Diagnosis) error {
	copied := *d
	r.byID[d.ID] = &copied
	return nil
}

func (r *memDiags) GetByID(_ context.Context, id uuid.UUID) (*entity.Diagnosis, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *memDiags) RecordAutomatic(_ context.Context, id uuid.UUID, p entity.Prediction, at time.Time) (*entity.Diagnosis, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}
	if d.Status != entity.Pending {
		return nil, errs.ErrAlreadyClassified
	}

	label := p.Label
	confidence := p.Confidence
	d.AutomaticLabel = &label
	d.AutomaticConfidence = &confidence
	d.Probabilities = p.Probabilities
	d.Status = entity.AutoClassified
	d.DiagnosedAt = &at

	copied := *d
	return &copied, nil
}

func (r *memDiags) ApplyManualCorrection(_ context.Context, id, ownerID uuid.UUID, c dto.ManualCorrection, at time.Time) (*entity.Diagnosis, error) {
	d, ok := r.byID[id]
	if !ok || d.OwnerUserID != ownerID {
		return nil, errs.ErrRecordNotFound
	}
	if d.Status == entity.Pending {
		return nil, errs.ErrNotYetClassified
	}

	label := c.Label
	d.ManualLabel = &label
	d.Remark = c.Remark
	d.CorrectedAt = &at
	d.CorrectedBy = &c.ByUserID

	if d.AutomaticLabel != nil && *d.AutomaticLabel == c.Label {
		d.Status = entity.Confirmed
	} else {
		d.Status = entity.Corrected
	}

	copied := *d
	return &copied, nil
}

func (r *memDiags) Query(_ context.Context, f dto.DiagnosisFilter, _ dto.Page) ([]*entity.Diagnosis, error) {
	var out []*entity.Diagnosis
	for _, d := range r.byID {
		if f.OwnerUserID != nil && d.OwnerUserID != *f.OwnerUserID {
			continue
		}
		copied := *d
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memDiags) CountByLabel(_ context.Context, f dto.DiagnosisFilter) (map[entity.Label]int64, error) {
	counts := map[entity.Label]int64{}
	for _, d := range r.byID {
		if label := d.EffectiveLabel(); label != nil {
			counts[*label]++
		}
	}
	return counts, nil
}

func (r *memDiags) AgreementCounts(context.Context, dto.DiagnosisFilter) (int64, int64, error) {
	var reviewed, agreed int64
	for _, d := range r.byID {
		if !d.Status.Reviewed() {
			continue
		}
		reviewed++
		if d.Status == entity.Confirmed {
			agreed++
		}
	}
	return reviewed, agreed, nil
}

func (r *memDiags) CountByBucket(context.Context, dto.DiagnosisFilter, dto.Granularity) (map[time.Time]int64, error) {
	counts := map[time.Time]int64{}
	for _, d := range r.byID {
		day := d.CreatedAt.UTC().Truncate(24 * time.Hour)
		counts[day]++
	}
	return counts, nil
}

func (r *memDiags) Count(context.Context) (int64, error) {
	return int64(len(r.byID)), nil
}

func (r *memDiags) CountDistinctOwners(context.Context) (int64, error) {
	owners := map[uuid.UUID]bool{}
	for _, d := range r.byID {
		owners[d.OwnerUserID] = true
	}
	return int64(len(owners)), nil
}

type memOutbox struct {
	events []*entity.OutboxEvent
}

func (r *memOutbox) Create(_ context.Context, event *entity.OutboxEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *memOutbox) GetPendingEvents(_ context.Context, _, limit int) ([]*entity.OutboxEvent, error) {
	var out []*entity.OutboxEvent
	for _, e := range r.events {
		if e.Status == entity.EventPending && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memOutbox) setStatus(ids uuid.UUIDs, status entity.Status) {
	for _, e := range r.events {
		for _, id := range ids {
			if e.ID == id {
				e.Status = status
			}
		}
	}
}

func (r *memOutbox) MarkAsProcessingBatch(_ context.Context, ids uuid.UUIDs) error {
	r.setStatus(ids, entity.EventProcessing)
	return nil
}

func (r *memOutbox) MarkAsProcessedBatch(_ context.Context, ids uuid.UUIDs) error {
	r.setStatus(ids, entity.EventProcessed)
	return nil
}

func (r *memOutbox) IncrementRetryCountBatch(_ context.Context, ids uuid.UUIDs) error {
	for _, e := range r.events {
		for _, id := range ids {
			if e.ID == id {
				e.RetryCount++
				e.Status = entity.EventPending
			}
		}
	}
	return nil
}

func (r *memOutbox) MarkMaxRetriesAsFailed(context.Context, int) error { return nil }

func (r *memOutbox) DeleteOldProcessedAndFailed(context.Context) (int64, error) { return 0, nil }

type noopTransactor struct{}

func (noopTransactor) WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	return f(ctx)
}

type noopLogger struct{}

func (noopLogger) Debug(interface{}, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})       {}
func (noopLogger) Warn(string, ...interface{})       {}
func (noopLogger) Error(interface{}, ...interface{}) {}
func (noopLogger) Fatal(interface{}, ...interface{}) {}

type fixture struct {
	uc     *UseCase
	blob   *memBlob
	assets *memAssets
	diags  *memDiags
	outbox *memOutbox
}

func newFixture() *fixture {
	f := &fixture{
		blob:   newMemBlob(),
		assets: newMemAssets(),
		diags:  newMemDiags(),
		outbox: &memOutbox{},
	}
	f.uc = New(f.blob, f.assets, f.diags, f.outbox, noopTransactor{}, noopLogger{})
	return f
}

func validItem(name string) dto.IntakeItem {
	return dto.IntakeItem{
		Data:         []byte("fake image bytes"),
		OriginalName: name,
		ContentType:  "image/jpeg",
	}
}

func TestIntakeImageCreatesPendingRecordAndOutboxEvent(t *testing.T) {
	f := newFixture()
	owner := uuid.New()

	asset, diagnosis, err := f.uc.IntakeImage(context.Background(), owner, validItem("leaf.jpg"))
	require.NoError(t, err)

	assert.Equal(t, owner, asset.OwnerUserID)
	assert.Equal(t, "leaf.jpg", asset.OriginalName)
	assert.Equal(t, asset.ID, diagnosis.ImageID)
	assert.Equal(t, entity.Pending, diagnosis.Status)
	assert.Nil(t, diagnosis.AutomaticLabel)

	// bytes are durable and addressable by the stored key
	data, err := f.uc.DownloadImageBytes(context.Background(), asset.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("fake image bytes"), data)

	// exactly one pending classification event
	events, err := f.outbox.GetPendingEvents(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, diagnosis.ID, events[0].AggregateID)
}

func TestIntakeImageValidation(t *testing.T) {
	f := newFixture()
	owner := uuid.New()

	tests := []struct {
		name    string
		item    dto.IntakeItem
		wantErr error
	}{
		{"empty data", dto.IntakeItem{OriginalName: "a.jpg", ContentType: "image/jpeg"}, errs.ErrInvalidFormat},
		{"oversized", dto.IntakeItem{
			Data:         make([]byte, _maxImageBytes+1),
			OriginalName: "big.jpg",
			ContentType:  "image/jpeg",
		}, errs.ErrPayloadTooLarge},
		{"wrong content type", dto.IntakeItem{
			Data:         []byte("x"),
			OriginalName: "doc.pdf",
			ContentType:  "application/pdf",
		}, errs.ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.uc.IntakeImage(context.Background(), owner, tt.item)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// nothing leaked into storage
	assert.Empty(t, f.blob.objects)
	assert.Empty(t, f.assets.byID)
}

func TestIntakeImageCompensatesStorageOnTxFailure(t *testing.T) {
	f := newFixture()
	f.assets.failCreate = true

	_, _, err := f.uc.IntakeImage(context.Background(), uuid.New(), validItem("leaf.jpg"))
	require.Error(t, err)

	// the uploaded object was rolled back
	assert.Empty(t, f.blob.objects)
	assert.Empty(t, f.diags.byID)
	assert.Empty(t, f.outbox.events)
}

func TestIntakeImagesIsolatesFailures(t *testing.T) {
	f := newFixture()
	owner := uuid.New()

	items := []dto.IntakeItem{
		validItem("one.jpg"),
		{Data: []byte("x"), OriginalName: "bad.pdf", ContentType: "application/pdf"},
		validItem("two.jpg"),
	}

	results := f.uc.IntakeImages(context.Background(), owner, items)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, errs.ErrInvalidFormat)
	assert.NoError(t, results[2].Err)

	assert.Len(t, f.assets.byID, 2)
	assert.Len(t, f.outbox.events, 2)
}

func TestRecordAutomaticIsIdempotentPerRecord(t *testing.T) {
	f := newFixture()
	_, diagnosis, err := f.uc.IntakeImage(context.Background(), uuid.New(), validItem("leaf.jpg"))
	require.NoError(t, err)

	prediction := entity.Prediction{
		Probabilities: map[entity.Label]float64{entity.BrownRust: 0.87, entity.Healthy: 0.13},
		Label:         entity.BrownRust,
		Confidence:    0.87,
	}

	classified, err := f.uc.RecordAutomatic(context.Background(), diagnosis.ID, prediction)
	require.NoError(t, err)
	assert.Equal(t, entity.AutoClassified, classified.Status)
	require.NotNil(t, classified.AutomaticLabel)
	assert.Equal(t, entity.BrownRust, *classified.AutomaticLabel)
	assert.NotNil(t, classified.DiagnosedAt)

	// a replayed event must not overwrite the first verdict
	_, err = f.uc.RecordAutomatic(context.Background(), diagnosis.ID, entity.Prediction{
		Label:      entity.Healthy,
		Confidence: 0.99,
	})
	assert.ErrorIs(t, err, errs.ErrAlreadyClassified)

	current, err := f.diags.GetByID(context.Background(), diagnosis.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BrownRust, *current.AutomaticLabel)
}

func TestApplyManualCorrectionStateMachine(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	_, diagnosis, err := f.uc.IntakeImage(context.Background(), owner, validItem("leaf.jpg"))
	require.NoError(t, err)

	correction := dto.ManualCorrection{Label: entity.Septoria, ByUserID: owner}

	// correcting before classification is a conflict
	_, err = f.uc.ApplyManualCorrection(context.Background(), diagnosis.ID, correction)
	assert.ErrorIs(t, err, errs.ErrNotYetClassified)

	_, err = f.uc.RecordAutomatic(context.Background(), diagnosis.ID, entity.Prediction{
		Label:      entity.BrownRust,
		Confidence: 0.87,
	})
	require.NoError(t, err)

	// differing verdict corrects
	corrected, err := f.uc.ApplyManualCorrection(context.Background(), diagnosis.ID, correction)
	require.NoError(t, err)
	assert.Equal(t, entity.Corrected, corrected.Status)
	assert.Equal(t, entity.Septoria, *corrected.EffectiveLabel())
	assert.Equal(t, entity.BrownRust, *corrected.AutomaticLabel)

	// matching verdict confirms, overwriting the previous correction in place
	confirmed, err := f.uc.ApplyManualCorrection(context.Background(), diagnosis.ID, dto.ManualCorrection{
		Label:    entity.BrownRust,
		ByUserID: owner,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.Confirmed, confirmed.Status)
	assert.Equal(t, entity.BrownRust, *confirmed.EffectiveLabel())

	// a stranger never sees the record
	_, err = f.uc.ApplyManualCorrection(context.Background(), diagnosis.ID, dto.ManualCorrection{
		Label:    entity.Healthy,
		ByUserID: uuid.New(),
	})
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)
}

type reportModel struct{}

func (reportModel) Classify(context.Context, []byte) (entity.Prediction, error) {
	return entity.Prediction{}, nil
}

func (reportModel) Version() string { return "m-1" }

// Walks one record through the whole pipeline and reads it back through the
// analytics use case: a correction moves the effective label to the human
// verdict, and a mismatched correction drags the agreement rate to zero.
func TestDiagnosisLifecycleFeedsAnalyticsReport(t *testing.T) {
	f := newFixture()
	owner := uuid.New()

	_, diagnosis, err := f.uc.IntakeImage(context.Background(), owner, validItem("leaf.jpg"))
	require.NoError(t, err)

	_, err = f.uc.RecordAutomatic(context.Background(), diagnosis.ID, entity.Prediction{
		Probabilities: map[entity.Label]float64{entity.BrownRust: 0.87, entity.Healthy: 0.13},
		Label:         entity.BrownRust,
		Confidence:    0.87,
	})
	require.NoError(t, err)

	_, err = f.uc.ApplyManualCorrection(context.Background(), diagnosis.ID, dto.ManualCorrection{
		Label:    entity.Septoria,
		ByUserID: owner,
	})
	require.NoError(t, err)

	an := analytics.New(f.diags, f.assets, reportModel{})

	snapshot, err := an.DiagnosisReport(context.Background(), dto.ReportFilter{Granularity: dto.GranularityDay})
	require.NoError(t, err)

	// the manual label wins the effective-label count
	assert.Equal(t, int64(1), snapshot.LabelCounts[entity.Septoria])
	assert.NotContains(t, snapshot.LabelCounts, entity.BrownRust)

	assert.Equal(t, 0.0, snapshot.AgreementRate)
	assert.Equal(t, int64(1), snapshot.TotalDiagnoses)
	assert.Equal(t, "m-1", snapshot.ModelVersion)

	report, err := an.SystemReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.TotalUsers)
	assert.Equal(t, int64(1), report.TotalDiagnoses)
	assert.Equal(t, int64(1), report.TotalImages)
}

func TestIntakeImagePropagatesTransientStorageErrors(t *testing.T) {
	f := newFixture()
	f.blob.failUpload = true

	_, _, err := f.uc.IntakeImage(context.Background(), uuid.New(), validItem("leaf.jpg"))
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
}

func TestListValidatesFilter(t *testing.T) {
	f := newFixture()

	_, err := f.uc.List(context.Background(), dto.DiagnosisFilter{
		LabelIn: []entity.Label{"blight"},
	}, dto.Page{Limit: 10})
	assert.ErrorIs(t, err, errs.ErrInvalidFilter)
}
