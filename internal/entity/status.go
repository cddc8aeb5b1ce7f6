package entity

type Status string

const (
	Pending        Status = "pending"
	AutoClassified Status = "auto_classified"
	Corrected      Status = "corrected"
	Confirmed      Status = "confirmed"
)

// Reviewed reports whether a human has looked at the automatic prediction.
func (s Status) Reviewed() bool {
	return s == Corrected || s == Confirmed
}

// outbox event lifecycle
const (
	EventPending    Status = "pending"
	EventProcessing Status = "processing"
	EventProcessed  Status = "processed"
	EventFailed     Status = "failed"
)
