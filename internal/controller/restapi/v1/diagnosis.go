package v1

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/agrovision/leaf-diagnosis/internal/controller/restapi/v1/response"
	"github.com/agrovision/leaf-diagnosis/internal/controller/restapi/v1/validate"
	"github.com/agrovision/leaf-diagnosis/internal/dto"
	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// @Summary  	Upload leaf image
// @Description Uploads image to S3, creates a pending diagnosis record and an outbox event for async classification
// @Tags 		diagnosis
// @Accept 		mpfd
// @Produce 	json
// @Param 		file formData file true "Leaf image(jpg, png, gif, bmp)"
// @Success 	201 {object} response.UploadImage
// @Failure 	400 {object} response.Error "Empty file"
// @Failure 	413 {object} response.Error "File too large"
// @Failure 	415 {object} response.Error "Unsupported format"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/diagnosis/upload-image [post]
// @Security 	BearerAuth
func (r *V1) uploadImage(ctx *fiber.Ctx) error {
	owner, ok := callerID(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusUnauthorized, "unknown caller")
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "file is required")
	}

	// 1. form-level validation
	if code, msg := checkUploadedFile(file); code != 0 {
		return errorResponse(ctx, code, msg)
	}

	item, err := readFormFile(file)
	if err != nil {
		r.logger.Error(err, "restapi - v1 - uploadImage")

		return errorResponse(ctx, http.StatusInternalServerError, "problems with opening the file")
	}

	// 2. intake
	asset, diagnosis, err := r.diag.IntakeImage(ctx.UserContext(), owner, item)
	if err != nil {
		return r.intakeErrorResponse(ctx, err, "restapi - v1 - uploadImage")
	}

	// 3. response
	return ctx.Status(http.StatusCreated).JSON(uploadResponse(asset, diagnosis))
}

// @Summary  	Upload leaf images in batch
// @Description Uploads up to 20 images at once. Items are independent: a bad image fails alone, the rest proceed
// @Tags 		diagnosis
// @Accept 		mpfd
// @Produce 	json
// @Param 		files formData file true "Leaf images(jpg, png, gif, bmp)"
// @Success 	201 {object} response.UploadImages
// @Success 	207 {object} response.UploadImages "Partial success"
// @Failure 	400 {object} response.Error "Empty batch or too many files"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/diagnosis/upload-images [post]
// @Security 	BearerAuth
func (r *V1) uploadImages(ctx *fiber.Ctx) error {
	owner, ok := callerID(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusUnauthorized, "unknown caller")
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "multipart form is required")
	}

	files := form.File["files"]

	// 1. batch-level validation
	if len(files) == 0 {
		return errorResponse(ctx, http.StatusBadRequest, "files are required")
	}

	if len(files) > validate.MaxBatchSize {
		return errorResponse(ctx, http.StatusBadRequest,
			fmt.Sprintf("batch cant be more than %d files", validate.MaxBatchSize))
	}

	// 2. read each file, keep read failures as per-item errors
	resp := response.UploadImages{
		Uploaded: []response.UploadImage{},
		Failed:   []response.UploadError{},
	}

	items := make([]dto.IntakeItem, 0, len(files))

	for _, file := range files {
		item, readErr := readFormFile(file)
		if readErr != nil {
			resp.Failed = append(resp.Failed, response.UploadError{
				OriginalName: file.Filename,
				Error:        readErr.Error(),
			})

			continue
		}

		items = append(items, item)
	}

	// 3. intake whatever survived the read
	for _, result := range r.diag.IntakeImages(ctx.UserContext(), owner, items) {
		if result.Err != nil {
			resp.Failed = append(resp.Failed, response.UploadError{
				OriginalName: result.OriginalName,
				Error:        intakeErrorMessage(result.Err),
			})

			continue
		}

		resp.Uploaded = append(resp.Uploaded, uploadResponse(result.Asset, result.Diagnosis))
	}

	// 4. response: 201 only when every item made it
	status := http.StatusCreated
	if len(resp.Failed) > 0 {
		status = http.StatusMultiStatus
	}

	return ctx.Status(status).JSON(resp)
}

// @Summary  	Upload and diagnose leaf image
// @Description Uploads image and runs the classifier synchronously. On inference failure the record stays pending and the async pipeline retries
// @Tags 		diagnosis
// @Accept 		mpfd
// @Produce 	json
// @Param 		file formData file true "Leaf image(jpg, png, gif, bmp)"
// @Success 	201 {object} response.Diagnosis
// @Failure 	400 {object} response.Error "Empty file"
// @Failure 	413 {object} response.Error "File too large"
// @Failure 	415 {object} response.Error "Unsupported format or undecodable image"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/diagnosis/diagnose [post]
// @Security 	BearerAuth
func (r *V1) diagnoseOnUpload(ctx *fiber.Ctx) error {
	owner, ok := callerID(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusUnauthorized, "unknown caller")
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "file is required")
	}

	// 1. form-level validation
	if code, msg := checkUploadedFile(file); code != 0 {
		return errorResponse(ctx, code, msg)
	}

	item, err := readFormFile(file)
	if err != nil {
		r.logger.Error(err, "restapi - v1 - diagnoseOnUpload")

		return errorResponse(ctx, http.StatusInternalServerError, "problems with opening the file")
	}

	// 2. intake
	_, diagnosis, err := r.diag.IntakeImage(ctx.UserContext(), owner, item)
	if err != nil {
		return r.intakeErrorResponse(ctx, err, "restapi - v1 - diagnoseOnUpload")
	}

	// 3. classify right away
	prediction, err := r.inf.Classify(ctx.UserContext(), item.Data)
	if err != nil {
		if errors.Is(err, errs.ErrDecodeImage) {
			return errorResponse(ctx, http.StatusUnsupportedMediaType, "image cant be decoded")
		}
		r.logger.Error(err, "restapi - v1 - diagnoseOnUpload")

		// the pending record and its outbox event survive, the relay retries
		return errorResponse(ctx, http.StatusInternalServerError, "classification failed, diagnosis stays pending")
	}

	// 4. record the verdict; the async pipeline may have raced us here, in
	// which case the verdict it stored is the one to return
	diagnosed, err := r.diag.RecordAutomatic(ctx.UserContext(), diagnosis.ID, prediction)
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyClassified) {
			diagnosed, err = r.diag.GetByID(ctx.UserContext(), diagnosis.ID)
			if err != nil {
				r.logger.Error(err, "restapi - v1 - diagnoseOnUpload")

				return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
			}

			return ctx.Status(http.StatusCreated).JSON(diagnosisResponse(diagnosed))
		}
		r.logger.Error(err, "restapi - v1 - diagnoseOnUpload")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	// 5. response
	return ctx.Status(http.StatusCreated).JSON(diagnosisResponse(diagnosed))
}

type manualDiagnosisRequest struct {
	Label  string  `json:"label"`
	Remark *string `json:"remark"`
}

// @Summary  	Record manual diagnosis
// @Description Records a specialist verdict. A verdict matching the automatic label confirms it, a differing one corrects it. Re-correction overwrites in place
// @Tags 		diagnosis
// @Accept 		json
// @Produce 	json
// @Param 		id 	 path string 				   true "Diagnosis ID(uuid)"
// @Param 		body body manualDiagnosisRequest true "Verdict"
// @Success 	200 {object} response.Diagnosis
// @Failure 	400 {object} response.Error "Invalid ID, unknown label or remark too long"
// @Failure 	404 {object} response.Error "Diagnosis not found"
// @Failure 	409 {object} response.Error "Diagnosis not yet classified"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/diagnosis/{id}/manual [put]
// @Security 	BearerAuth
func (r *V1) updateManualDiagnosis(ctx *fiber.Ctx) error {
	owner, ok := callerID(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusUnauthorized, "unknown caller")
	}

	// 1. id
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	// 2. body
	var req manualDiagnosisRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "invalid body")
	}

	label, err := entity.ParseLabel(req.Label)
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest,
			fmt.Sprintf("unknown label %q. Allowed: %s", req.Label, labelList()))
	}

	if req.Remark != nil && len(*req.Remark) > validate.MaxRemarkLen {
		return errorResponse(ctx, http.StatusBadRequest,
			fmt.Sprintf("remark cant be longer than %d characters", validate.MaxRemarkLen))
	}

	// 3. apply
	diagnosis, err := r.diag.ApplyManualCorrection(ctx.UserContext(), id, dto.ManualCorrection{
		Label:    label,
		Remark:   req.Remark,
		ByUserID: owner,
	})
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrRecordNotFound):
			return errorResponse(ctx, http.StatusNotFound, "diagnosis not found")
		case errors.Is(err, errs.ErrNotYetClassified):
			return errorResponse(ctx, http.StatusConflict, "diagnosis has no automatic label yet")
		}
		r.logger.Error(err, "restapi - v1 - updateManualDiagnosis")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	return ctx.Status(http.StatusOK).JSON(diagnosisResponse(diagnosis))
}

// @Summary  	List diagnoses
// @Description Lists diagnosis records, newest first. Defaults to the caller's own records
// @Tags 		diagnosis
// @Produce 	json
// @Param 		owner_user_id query string false "Owner filter(uuid)"
// @Param 		label_in 	  query string false "Comma-separated effective labels"
// @Param 		status 		  query string false "Status" Enums(pending, auto_classified, corrected, confirmed)
// @Param 		date_from 	  query string false "Inclusive lower bound(RFC3339 or YYYY-MM-DD)"
// @Param 		date_to 	  query string false "Exclusive upper bound(RFC3339 or YYYY-MM-DD)"
// @Param 		page 		  query int    false "Page number, from 1"
// @Param 		limit 		  query int    false "Page size, max 500"
// @Success 	200 {array}  response.Diagnosis
// @Failure 	400 {object} response.Error "Unrecognized or malformed filter field"
// @Failure 	500 {object} response.Error "Internal"
// @Router 		/v1/diagnoses [get]
// @Security 	BearerAuth
func (r *V1) listDiagnoses(ctx *fiber.Ctx) error {
	owner, ok := callerID(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusUnauthorized, "unknown caller")
	}

	// 1. filter
	queries := ctx.Queries()

	f, err := parseDiagnosisFilter(queries, owner, map[string]bool{"page": true, "limit": true})
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, err.Error())
	}

	page, err := parsePage(queries)
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, err.Error())
	}

	// 2. query
	list, err := r.diag.List(ctx.UserContext(), f, page)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidFilter) {
			return errorResponse(ctx, http.StatusBadRequest, err.Error())
		}
		r.logger.Error(err, "restapi - v1 - listDiagnoses")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	// 3. response
	resp := make([]response.Diagnosis, 0, len(list))
	for _, d := range list {
		resp = append(resp, diagnosisResponse(d))
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

// checkUploadedFile runs the form-level checks shared by the single-file
// handlers. A non-zero code means reject with that status and message.
func checkUploadedFile(file *multipart.FileHeader) (int, string) {
	// 1. size
	if file.Size == 0 {
		return http.StatusBadRequest, "file is empty"
	}

	if file.Size > validate.MaxFileSize {
		return http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file size cant be more than %d bytes", validate.MaxFileSize)
	}

	// 2. content type
	contentType := file.Header.Get("Content-Type")
	if !validate.AllowedContentTypes[contentType] {
		return http.StatusUnsupportedMediaType, "unsupported file type. Allowed: jpeg, png, gif, bmp"
	}

	// 3. extension
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !validate.AllowedExtensions[ext] {
		return http.StatusUnsupportedMediaType, "unsupported file extension. Allowed: .jpg, .jpeg, .png, .gif, .bmp"
	}

	return 0, ""
}

// readFormFile pulls the bytes without HTTP concerns, for batch items.
func readFormFile(file *multipart.FileHeader) (dto.IntakeItem, error) {
	fileReader, err := file.Open()
	if err != nil {
		return dto.IntakeItem{}, fmt.Errorf("cant open file: %w", err)
	}
	defer fileReader.Close()

	data, err := io.ReadAll(fileReader)
	if err != nil {
		return dto.IntakeItem{}, fmt.Errorf("cant read file: %w", err)
	}

	return dto.IntakeItem{
		Data:         data,
		OriginalName: file.Filename,
		ContentType:  file.Header.Get("Content-Type"),
	}, nil
}

func (r *V1) intakeErrorResponse(ctx *fiber.Ctx, err error, where string) error {
	switch {
	case errors.Is(err, errs.ErrPayloadTooLarge):
		return errorResponse(ctx, http.StatusRequestEntityTooLarge, intakeErrorMessage(err))
	case errors.Is(err, errs.ErrInvalidFormat):
		return errorResponse(ctx, http.StatusUnsupportedMediaType, intakeErrorMessage(err))
	}
	r.logger.Error(err, where)

	if errs.IsTransient(err) {
		return errorResponse(ctx, http.StatusServiceUnavailable, "storage temporarily unavailable")
	}

	return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
}

func intakeErrorMessage(err error) string {
	switch {
	case errors.Is(err, errs.ErrPayloadTooLarge):
		return fmt.Sprintf("file size cant be more than %d bytes", validate.MaxFileSize)
	case errors.Is(err, errs.ErrInvalidFormat):
		return "unsupported file type. Allowed: jpeg, png, gif, bmp"
	case errs.IsTransient(err):
		return "storage temporarily unavailable"
	default:
		return "storage problems"
	}
}

func uploadResponse(asset *entity.ImageAsset, diagnosis *entity.Diagnosis) response.UploadImage {
	return response.UploadImage{
		ImageID:      asset.ID.String(),
		DiagnosisID:  diagnosis.ID.String(),
		OriginalName: asset.OriginalName,
		ByteSize:     int(asset.ByteSize),
		ContentType:  asset.ContentType,
		Status:       string(diagnosis.Status),
		UploadedAt:   asset.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func diagnosisResponse(d *entity.Diagnosis) response.Diagnosis {
	resp := response.Diagnosis{
		DiagnosisID: d.ID.String(),
		ImageID:     d.ImageID.String(),
		Remark:      d.Remark,
		Status:      string(d.Status),
		CreatedAt:   d.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}

	if d.AutomaticLabel != nil {
		label := string(*d.AutomaticLabel)
		resp.AutomaticLabel = &label
		resp.AutomaticConfidence = d.AutomaticConfidence
	}

	if len(d.Probabilities) > 0 {
		resp.Probabilities = make(map[string]float64, len(d.Probabilities))
		for label, p := range d.Probabilities {
			resp.Probabilities[string(label)] = p
		}
	}

	if d.ManualLabel != nil {
		label := string(*d.ManualLabel)
		resp.ManualLabel = &label
	}

	if d.DiagnosedAt != nil {
		s := d.DiagnosedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.DiagnosedAt = &s
	}

	if d.CorrectedAt != nil {
		s := d.CorrectedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.CorrectedAt = &s
	}

	return resp
}

func labelList() string {
	labels := entity.Labels()
	parts := make([]string, 0, len(labels))

	for _, l := range labels {
		parts = append(parts, string(l))
	}

	return strings.Join(parts, ", ")
}
