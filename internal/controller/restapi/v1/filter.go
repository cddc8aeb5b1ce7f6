package v1

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agrovision/leaf-diagnosis/internal/dto"
	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/google/uuid"
)

const (
	_defaultPageLimit = 50
	_maxPageLimit     = 500
)

// parseDiagnosisFilter builds the closed filter object from query params.
// Unrecognized params are rejected outright so a typo never silently widens a
// query. extra lists endpoint-specific params handled by the caller.
func parseDiagnosisFilter(q map[string]string, caller uuid.UUID, extra map[string]bool) (dto.DiagnosisFilter, error) {
	f := dto.DiagnosisFilter{OwnerUserID: &caller}

	for key, val := range q {
		switch key {
		case "owner_user_id":
			id, err := uuid.Parse(val)
			if err != nil {
				return f, fmt.Errorf("owner_user_id %q: %w", val, errs.ErrInvalidFilter)
			}
			f.OwnerUserID = &id
		case "label_in":
			for _, s := range strings.Split(val, ",") {
				label, err := entity.ParseLabel(strings.TrimSpace(s))
				if err != nil {
					return f, fmt.Errorf("label_in %q: %w", s, errs.ErrInvalidFilter)
				}
				f.LabelIn = append(f.LabelIn, label)
			}
		case "status":
			status := entity.Status(val)
			f.Status = &status
		case "date_from":
			t, err := parseTime(val)
			if err != nil {
				return f, fmt.Errorf("date_from %q: %w", val, errs.ErrInvalidFilter)
			}
			f.DateFrom = &t
		case "date_to":
			t, err := parseTime(val)
			if err != nil {
				return f, fmt.Errorf("date_to %q: %w", val, errs.ErrInvalidFilter)
			}
			f.DateTo = &t
		default:
			if !extra[key] {
				return f, fmt.Errorf("unrecognized filter field %q: %w", key, errs.ErrInvalidFilter)
			}
		}
	}

	return f, f.Validate()
}

func parsePage(q map[string]string) (dto.Page, error) {
	page := dto.Page{Limit: _defaultPageLimit}

	if val, ok := q["limit"]; ok {
		limit, err := strconv.Atoi(val)
		if err != nil || limit <= 0 || limit > _maxPageLimit {
			return page, fmt.Errorf("limit %q: %w", val, errs.ErrInvalidFilter)
		}
		page.Limit = limit
	}

	if val, ok := q["page"]; ok {
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			return page, fmt.Errorf("page %q: %w", val, errs.ErrInvalidFilter)
		}
		page.Offset = (n - 1) * page.Limit
	}

	return page, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	return time.Parse("2006-01-02", s)
}
