package models

import "time"

// Import batch statuses. Partial marks a batch whose source reported some
// files unreadable; its records still count.
const (
	ImportBatchStatusRunning   = "running"
	ImportBatchStatusCompleted = "completed"
	ImportBatchStatusPartial   = "partial"
	ImportBatchStatusFailed    = "failed"
)

// ImportBatch tracks one bulk load of raw member records.
type ImportBatch struct {
	ID         string `json:"id" db:"id"`
	SourceName string `json:"source_name" db:"source_name"`
	Status     string `json:"status" db:"status"`

	TotalRecords     int `json:"total_records" db:"total_records"`
	ProcessedRecords int `json:"processed_records" db:"processed_records"`
	CreatedRecords   int `json:"created_records" db:"created_records"`
	UpdatedRecords   int `json:"updated_records" db:"updated_records"`
	SkippedRecords   int `json:"skipped_records" db:"skipped_records"`
	FailedRecords    int `json:"failed_records" db:"failed_records"`

	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// RawMemberRecord is one unprocessed record as it arrives from an import
// source. Fields carries the source's raw column values keyed by whatever
// header names the source used; the extractor maps them onto canonical
// field names before normalization.
type RawMemberRecord struct {
	SourceName     string         `json:"source_name"`
	SourceRecordID string         `json:"source_record_id,omitempty"`
	ImportBatchID  *string        `json:"import_batch_id,omitempty"`
	Fields         map[string]any `json:"fields"`
}

// ImportBatchListResponse is the response for listing import batches
type ImportBatchListResponse struct {
	Items      []ImportBatch `json:"items"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}
