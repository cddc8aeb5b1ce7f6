package dto

import (
	"fmt"
	"time"

	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/google/uuid"
)

// DiagnosisFilter is the closed set of recognized filter fields for list and
// report queries. Unrecognized fields are rejected at the controller layer
// before a filter is ever built.
type DiagnosisFilter struct {
	OwnerUserID *uuid.UUID
	LabelIn     []entity.Label
	Status      *entity.Status
	DateFrom    *time.Time
	DateTo      *time.Time
}

func (f DiagnosisFilter) Validate() error {
	for _, l := range f.LabelIn {
		if _, err := entity.ParseLabel(string(l)); err != nil {
			return fmt.Errorf("dto - DiagnosisFilter - Validate: %w", errs.ErrInvalidFilter)
		}
	}

	if f.Status != nil {
		switch *f.Status {
		case entity.Pending, entity.AutoClassified, entity.Corrected, entity.Confirmed:
		default:
			return fmt.Errorf("dto - DiagnosisFilter - Validate - status %q: %w", *f.Status, errs.ErrInvalidFilter)
		}
	}

	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return fmt.Errorf("dto - DiagnosisFilter - Validate - date range inverted: %w", errs.ErrInvalidFilter)
	}

	return nil
}

// Granularity is the trend bucket width of a diagnosis report.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return Granularity(s), nil
	}

	return "", fmt.Errorf("dto - ParseGranularity - %q: %w", s, errs.ErrInvalidFilter)
}

// ReportFilter narrows a diagnosis report and sets its trend bucket width.
type ReportFilter struct {
	DiagnosisFilter
	Granularity Granularity
}

func (f ReportFilter) Validate() error {
	if err := f.DiagnosisFilter.Validate(); err != nil {
		return err
	}

	if _, err := ParseGranularity(string(f.Granularity)); err != nil {
		return err
	}

	return nil
}
