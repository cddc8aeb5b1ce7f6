package entity

import (
	"time"

	"github.com/google/uuid"
)

// ImageAsset is an uploaded leaf image. Immutable once stored.
type ImageAsset struct {
	ID          uuid.UUID `json:"id"`
	OwnerUserID uuid.UUID `json:"owner_user_id"`

	StorageKey   string `json:"storage_key"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	ByteSize     int64  `json:"byte_size"`

	UploadedAt time.Time `json:"uploaded_at"`
}
