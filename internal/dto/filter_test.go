package dto

import (
	"testing"
	"time"

	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/stretchr/testify/assert"
)

func TestDiagnosisFilterValidate(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	badStatus := entity.Status("reviewed")
	goodStatus := entity.Corrected

	tests := []struct {
		name    string
		f       DiagnosisFilter
		wantErr bool
	}{
		{"empty", DiagnosisFilter{}, false},
		{"full valid", DiagnosisFilter{
			LabelIn:  []entity.Label{entity.Septoria, entity.Mildew},
			Status:   &goodStatus,
			DateFrom: &from,
			DateTo:   &to,
		}, false},
		{"unknown label", DiagnosisFilter{LabelIn: []entity.Label{"blight"}}, true},
		{"unknown status", DiagnosisFilter{Status: &badStatus}, true},
		{"inverted range", DiagnosisFilter{DateFrom: &to, DateTo: &from}, true},
		{"equal bounds", DiagnosisFilter{DateFrom: &from, DateTo: &from}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrInvalidFilter)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseGranularity(t *testing.T) {
	for _, good := range []string{"day", "week", "month"} {
		g, err := ParseGranularity(good)
		assert.NoError(t, err)
		assert.Equal(t, Granularity(good), g)
	}

	for _, bad := range []string{"", "hour", "Day", "weekly"} {
		_, err := ParseGranularity(bad)
		assert.ErrorIs(t, err, errs.ErrInvalidFilter)
	}
}

func TestReportFilterValidate(t *testing.T) {
	assert.ErrorIs(t, ReportFilter{}.Validate(), errs.ErrInvalidFilter)

	assert.NoError(t, ReportFilter{Granularity: GranularityWeek}.Validate())
}
