package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"
	"time"

	"github.com/agrovision/leaf-diagnosis/internal/dto"
	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/internal/usecase"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(interface{}, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})       {}
func (nopLogger) Warn(string, ...interface{})       {}
func (nopLogger) Error(interface{}, ...interface{}) {}
func (nopLogger) Fatal(interface{}, ...interface{}) {}

// stubDiagUseCase serves canned records; unimplemented methods panic via the
// embedded interface, keeping the stub honest about what a handler touches.
type stubDiagUseCase struct {
	usecase.DiagnosisUseCase

	pending   *entity.Diagnosis
	stored    *entity.Diagnosis
	recordErr error
}

func (s *stubDiagUseCase) IntakeImage(_ context.Context, ownerID uuid.UUID, item dto.IntakeItem) (*entity.ImageAsset, *entity.Diagnosis, error) {
	asset := &entity.ImageAsset{
		ID:           s.pending.ImageID,
		OwnerUserID:  ownerID,
		OriginalName: item.OriginalName,
		ContentType:  item.ContentType,
		ByteSize:     int64(len(item.Data)),
		UploadedAt:   s.pending.CreatedAt,
	}
	return asset, s.pending, nil
}

func (s *stubDiagUseCase) RecordAutomatic(context.Context, uuid.UUID, entity.Prediction) (*entity.Diagnosis, error) {
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	return s.stored, nil
}

func (s *stubDiagUseCase) GetByID(context.Context, uuid.UUID) (*entity.Diagnosis, error) {
	return s.stored, nil
}

type stubInference struct {
	p entity.Prediction
}

func (s stubInference) Classify(context.Context, []byte) (entity.Prediction, error) {
	return s.p, nil
}

func (s stubInference) ModelVersion() string { return "stub" }

func diagnoseApp(diag usecase.DiagnosisUseCase, inf usecase.InferenceUseCase) *fiber.App {
	app := fiber.New()
	r := &V1{diag: diag, inf: inf, logger: nopLogger{}}

	app.Post("/v1/diagnosis/diagnose", func(ctx *fiber.Ctx) error {
		ctx.Locals(_callerIDKey, uuid.New())
		return r.diagnoseOnUpload(ctx)
	})

	return app
}

func multipartImage(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="leaf.jpg"`)
	header.Set("Content-Type", "image/jpeg")

	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("fake image bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return &body, w.FormDataContentType()
}

func stubRecords() (*entity.Diagnosis, *entity.Diagnosis) {
	now := time.Now().UTC()
	label := entity.BrownRust
	confidence := 0.87

	pending := &entity.Diagnosis{
		ID:        uuid.New(),
		ImageID:   uuid.New(),
		Status:    entity.Pending,
		CreatedAt: now,
	}

	stored := &entity.Diagnosis{
		ID:                  pending.ID,
		ImageID:             pending.ImageID,
		AutomaticLabel:      &label,
		AutomaticConfidence: &confidence,
		Probabilities:       map[entity.Label]float64{entity.BrownRust: 0.87, entity.Healthy: 0.13},
		Status:              entity.AutoClassified,
		CreatedAt:           now,
		DiagnosedAt:         &now,
	}

	return pending, stored
}

func postDiagnose(t *testing.T, app *fiber.App) map[string]interface{} {
	t.Helper()

	body, contentType := multipartImage(t)
	req, err := http.NewRequest(http.MethodPost, "/v1/diagnosis/diagnose", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))

	return decoded
}

func TestDiagnoseOnUploadReturnsVerdict(t *testing.T) {
	pending, stored := stubRecords()
	diag := &stubDiagUseCase{pending: pending, stored: stored}

	app := diagnoseApp(diag, stubInference{p: entity.Prediction{
		Probabilities: stored.Probabilities,
		Label:         entity.BrownRust,
		Confidence:    0.87,
	}})

	decoded := postDiagnose(t, app)

	assert.Equal(t, string(entity.AutoClassified), decoded["status"])
	assert.Equal(t, string(entity.BrownRust), decoded["automatic_label"])
	assert.InDelta(t, 0.87, decoded["automatic_confidence"], 1e-9)
}

func TestDiagnoseOnUploadRaceReturnsStoredVerdict(t *testing.T) {
	// the async consumer classified first; the handler must return what it
	// stored, never the stale pending record
	pending, stored := stubRecords()
	diag := &stubDiagUseCase{
		pending:   pending,
		stored:    stored,
		recordErr: errs.ErrAlreadyClassified,
	}

	app := diagnoseApp(diag, stubInference{p: entity.Prediction{
		Label:      entity.Healthy,
		Confidence: 0.55,
	}})

	decoded := postDiagnose(t, app)

	assert.Equal(t, string(entity.AutoClassified), decoded["status"])
	assert.Equal(t, string(entity.BrownRust), decoded["automatic_label"])
	assert.InDelta(t, 0.87, decoded["automatic_confidence"], 1e-9)
	assert.Equal(t, stored.ID.String(), decoded["diagnosis_id"])
}
