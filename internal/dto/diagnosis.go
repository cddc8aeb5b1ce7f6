package dto

import (
	"github.com/agrovision/leaf-diagnosis/internal/entity"
	"github.com/google/uuid"
)

// IntakeItem is one image submitted for intake.
type IntakeItem struct {
	Data         []byte
	OriginalName string
	ContentType  string
}

// IntakeResult is the per-item outcome of a batch intake. Either Asset and
// Diagnosis are set, or Err is.
type IntakeResult struct {
	OriginalName string
	Asset        *entity.ImageAsset
	Diagnosis    *entity.Diagnosis
	Err          error
}

// ManualCorrection carries a human verdict for one diagnosis record.
type ManualCorrection struct {
	Label    entity.Label
	Remark   *string
	ByUserID uuid.UUID
}

type Page struct {
	Limit  int
	Offset int
}
