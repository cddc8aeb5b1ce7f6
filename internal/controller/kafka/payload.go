package kafka

import "github.com/google/uuid"

type DiagnosisEventPayload struct {
	DiagnosisID uuid.UUID `json:"diagnosis_id"`
	ImageID     uuid.UUID `json:"image_id"`
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
}
