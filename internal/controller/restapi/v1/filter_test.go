package v1

import (
	"testing"
	"time"

	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDiagnosisFilterDefaultsToCaller(t *testing.T) {
	caller := uuid.New()

	f, err := parseDiagnosisFilter(map[string]string{}, caller, nil)
	require.NoError(t, err)

	require.NotNil(t, f.OwnerUserID)
	assert.Equal(t, caller, *f.OwnerUserID)
	assert.Empty(t, f.LabelIn)
	assert.Nil(t, f.Status)
}

func TestParseDiagnosisFilterRejectsUnrecognizedField(t *testing.T) {
	_, err := parseDiagnosisFilter(map[string]string{"label": "septoria"}, uuid.New(), nil)
	assert.ErrorIs(t, err, errs.ErrInvalidFilter)

	// endpoint-specific params pass through
	_, err = parseDiagnosisFilter(map[string]string{"page": "2"}, uuid.New(), map[string]bool{"page": true})
	assert.NoError(t, err)
}

func TestParseDiagnosisFilterFields(t *testing.T) {
	caller := uuid.New()
	other := uuid.New()

	f, err := parseDiagnosisFilter(map[string]string{
		"owner_user_id": other.String(),
		"label_in":      "septoria, mildew",
		"status":        "corrected",
		"date_from":     "2026-03-01",
		"date_to":       "2026-03-08T12:30:00Z",
	}, caller, nil)
	require.NoError(t, err)

	assert.Equal(t, other, *f.OwnerUserID)
	assert.Equal(t, []entity.Label{entity.Septoria, entity.Mildew}, f.LabelIn)
	assert.Equal(t, entity.Corrected, *f.Status)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *f.DateFrom)
	assert.Equal(t, time.Date(2026, 3, 8, 12, 30, 0, 0, time.UTC), *f.DateTo)
}

func TestParseDiagnosisFilterRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		query map[string]string
	}{
		{"bad owner", map[string]string{"owner_user_id": "not-a-uuid"}},
		{"bad label", map[string]string{"label_in": "septoria,blight"}},
		{"bad status", map[string]string{"status": "reviewed"}},
		{"bad date", map[string]string{"date_from": "yesterday"}},
		{"inverted range", map[string]string{"date_from": "2026-03-08", "date_to": "2026-03-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseDiagnosisFilter(tt.query, uuid.New(), nil)
			assert.ErrorIs(t, err, errs.ErrInvalidFilter)
		})
	}
}

func TestParsePage(t *testing.T) {
	page, err := parsePage(map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, _defaultPageLimit, page.Limit)
	assert.Equal(t, 0, page.Offset)

	page, err = parsePage(map[string]string{"page": "3", "limit": "20"})
	require.NoError(t, err)
	assert.Equal(t, 20, page.Limit)
	assert.Equal(t, 40, page.Offset)

	for _, bad := range []map[string]string{
		{"limit": "0"},
		{"limit": "9999"},
		{"limit": "abc"},
		{"page": "0"},
		{"page": "-1"},
	} {
		_, err := parsePage(bad)
		assert.ErrorIs(t, err, errs.ErrInvalidFilter)
	}
}

func TestParseReportFilterDefaults(t *testing.T) {
	f, err := parseReportFilter(map[string]string{})
	require.NoError(t, err)

	// reports span all users unless narrowed explicitly
	assert.Nil(t, f.OwnerUserID)
	assert.Equal(t, "day", string(f.Granularity))

	owner := uuid.New()
	f, err = parseReportFilter(map[string]string{
		"owner_user_id": owner.String(),
		"bucket":        "month",
	})
	require.NoError(t, err)
	assert.Equal(t, owner, *f.OwnerUserID)
	assert.Equal(t, "month", string(f.Granularity))

	_, err = parseReportFilter(map[string]string{"bucket": "hour"})
	assert.ErrorIs(t, err, errs.ErrInvalidFilter)
}
