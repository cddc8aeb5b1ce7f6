package entity

import "time"

// TrendBucket is one fixed-width time interval of the diagnosis trend.
// Buckets with no diagnoses are present with a zero count.
type TrendBucket struct {
	Start time.Time `json:"start"`
	Count int64     `json:"count"`
}

// AnalyticsSnapshot is computed per report call and never persisted.
type AnalyticsSnapshot struct {
	DateFrom time.Time `json:"date_from"`
	DateTo   time.Time `json:"date_to"`

	LabelCounts    map[Label]int64 `json:"label_counts"`
	AgreementRate  float64         `json:"agreement_rate"`
	TotalDiagnoses int64           `json:"total_diagnoses"`
	Trend          []TrendBucket   `json:"trend"`

	ModelVersion string `json:"model_version"`
}

type SystemReport struct {
	TotalUsers     int64  `json:"total_users"`
	TotalDiagnoses int64  `json:"total_diagnoses"`
	TotalImages    int64  `json:"total_images"`
	ModelVersion   string `json:"model_version"`
}
