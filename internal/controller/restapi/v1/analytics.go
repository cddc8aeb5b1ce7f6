package v1

import (
	"errors"
	"net/http"

	"github.com/agrovision/leaf-diagnosis/internal/dto"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// @Summary  	Diagnosis report
// @Description Aggregates per-label counts, agreement rate and a zero-filled trend over a time window. Defaults to the last 30 days across all users
// @Tags 		analytics
// @Produce 	json
// @Param 		owner_user_id query string false "Owner filter(uuid)"
// @Param 		label_in 	  query string false "Comma-separated effective labels"
// @Param 		status 		  query string false "Status" Enums(pending, auto_classified, corrected, confirmed)
// @Param 		date_from 	  query string false "Inclusive lower bound(RFC3339 or YYYY-MM-DD)"
// @Param 		date_to 	  query string false "Exclusive upper bound(RFC3339 or YYYY-MM-DD)"
// @Param 		bucket 		  query string false "Trend bucket width" Enums(day, week, month) default(day)
// @Success 	200 {object} entity.AnalyticsSnapshot
// @Failure 	400 {object} response.Error "Unrecognized or malformed filter field"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/analytics/diagnosis-report [get]
// @Security 	BearerAuth
func (r *Analytics) diagnosisReport(ctx *fiber.Ctx) error {
	queries := ctx.Queries()

	// 1. filter; reports span all users unless an owner is given
	f, err := parseReportFilter(queries)
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, err.Error())
	}

	// 2. aggregate
	snapshot, err := r.an.DiagnosisReport(ctx.UserContext(), f)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidFilter) {
			return errorResponse(ctx, http.StatusBadRequest, err.Error())
		}
		r.logger.Error(err, "restapi - v1 - diagnosisReport")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	return ctx.Status(http.StatusOK).JSON(snapshot)
}

// @Summary  	System report
// @Description System-wide totals: users, diagnoses, stored images and the active model version
// @Tags 		analytics
// @Produce 	json
// @Success 	200 {object} entity.SystemReport
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/analytics/system-report [get]
// @Security 	BearerAuth
func (r *Analytics) systemReport(ctx *fiber.Ctx) error {
	report, err := r.an.SystemReport(ctx.UserContext())
	if err != nil {
		r.logger.Error(err, "restapi - v1 - systemReport")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	return ctx.Status(http.StatusOK).JSON(report)
}

func parseReportFilter(queries map[string]string) (dto.ReportFilter, error) {
	f := dto.ReportFilter{Granularity: dto.GranularityDay}

	base, err := parseDiagnosisFilter(queries, uuid.Nil, map[string]bool{"bucket": true})
	if err != nil {
		return f, err
	}

	// reports are system-wide by default, unlike listing
	if _, explicit := queries["owner_user_id"]; !explicit {
		base.OwnerUserID = nil
	}

	f.DiagnosisFilter = base

	if val, ok := queries["bucket"]; ok {
		g, err := dto.ParseGranularity(val)
		if err != nil {
			return f, err
		}
		f.Granularity = g
	}

	return f, nil
}
