package models

import (
	"encoding/json"
	"time"
)

// Change sources
const (
	ChangeSourceImport       = "import"
	ChangeSourceNormalizer   = "normalizer"
	ChangeSourceInference    = "inference"
	ChangeSourceMerge        = "merge"
	ChangeSourceVerification = "verification"
	ChangeSourceAPI          = "api"
)

// ChangeRecord is one append-only change to one member field. Records are
// never updated or deleted; history is reconstructed by replaying them in
// order.
type ChangeRecord struct {
	ID       string `json:"id" db:"id"`
	MemberID string `json:"member_id" db:"member_id"`
	Field    string `json:"field" db:"field"`

	OldValue json.RawMessage `json:"old_value,omitempty" db:"old_value"`
	NewValue json.RawMessage `json:"new_value,omitempty" db:"new_value"`

	Source string  `json:"source" db:"source"`
	Actor  *string `json:"actor,omitempty" db:"actor"`
	Reason *string `json:"reason,omitempty" db:"reason"`

	// GroupID links the records written by one merge.
	GroupID *string `json:"group_id,omitempty" db:"group_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewChange builds an unsaved per-field change record. Values marshal to
// jsonb so arrays and nested structures survive the round trip.
func NewChange(memberID, field, source string, oldValue, newValue any) (ChangeRecord, error) {
	record := ChangeRecord{
		MemberID: memberID,
		Field:    field,
		Source:   source,
	}
	if oldValue != nil {
		b, err := json.Marshal(oldValue)
		if err != nil {
			return record, err
		}
		record.OldValue = b
	}
	if newValue != nil {
		b, err := json.Marshal(newValue)
		if err != nil {
			return record, err
		}
		record.NewValue = b
	}
	return record, nil
}

// ChangeRecordListResponse is the response for listing a member's history
type ChangeRecordListResponse struct {
	Items      []ChangeRecord `json:"items"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}
