package entity

import (
	"time"

	"github.com/google/uuid"
)

// Diagnosis holds the classification history of a single image: the automatic
// prediction and the optional human verdict. One record per ImageAsset, never
// deleted.
type Diagnosis struct {
	ID          uuid.UUID `json:"id"`
	ImageID     uuid.UUID `json:"image_id"`
	OwnerUserID uuid.UUID `json:"owner_user_id"`

	AutomaticLabel      *Label            `json:"automatic_label,omitempty"`
	AutomaticConfidence *float64          `json:"automatic_confidence,omitempty"`
	Probabilities       map[Label]float64 `json:"probabilities,omitempty"`

	ManualLabel *Label  `json:"manual_label,omitempty"`
	Remark      *string `json:"remark,omitempty"`

	Status Status `json:"status"` // pending, auto_classified, corrected, confirmed

	CreatedAt   time.Time  `json:"created_at"`
	DiagnosedAt *time.Time `json:"diagnosed_at,omitempty"`
	CorrectedAt *time.Time `json:"corrected_at,omitempty"`
	CorrectedBy *uuid.UUID `json:"corrected_by,omitempty"`
}

// EffectiveLabel is the manual label when one was given, otherwise the
// automatic one. Nil while the record is still pending.
func (d *Diagnosis) EffectiveLabel() *Label {
	if d.ManualLabel != nil {
		return d.ManualLabel
	}
	return d.AutomaticLabel
}

// Prediction is the classifier output for a single image.
type Prediction struct {
	Probabilities map[Label]float64 `json:"probabilities"`
	Label         Label             `json:"label"`
	Confidence    float64           `json:"confidence"`
}
