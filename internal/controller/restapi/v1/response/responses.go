package response

type Error struct {
	Error string `json:"error"`
}

type UploadImage struct {
	ImageID      string `json:"image_id"`
	DiagnosisID  string `json:"diagnosis_id"`
	OriginalName string `json:"original_name"`
	ByteSize     int    `json:"byte_size"`
	ContentType  string `json:"content_type"`
	Status       string `json:"status"`
	UploadedAt   string `json:"uploaded_at"`
}

// UploadImages reports the per-item outcome of a batch upload.
type UploadImages struct {
	Uploaded []UploadImage `json:"uploaded"`
	Failed   []UploadError `json:"failed"`
}

type UploadError struct {
	OriginalName string `json:"original_name"`
	Error        string `json:"error"`
}

type Diagnosis struct {
	DiagnosisID         string             `json:"diagnosis_id"`
	ImageID             string             `json:"image_id"`
	AutomaticLabel      *string            `json:"automatic_label,omitempty"`
	AutomaticConfidence *float64           `json:"automatic_confidence,omitempty"`
	Probabilities       map[string]float64 `json:"probabilities,omitempty"`
	ManualLabel         *string            `json:"manual_label,omitempty"`
	Remark              *string            `json:"remark,omitempty"`
	Status              string             `json:"status"`
	CreatedAt           string             `json:"created_at"`
	DiagnosedAt         *string            `json:"diagnosed_at,omitempty"`
	CorrectedAt         *string            `json:"corrected_at,omitempty"`
}
