package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// Duplicate group statuses
const (
	DuplicateGroupStatusOpen      = "open"
	DuplicateGroupStatusMerged    = "merged"
	DuplicateGroupStatusDismissed = "dismissed"
	DuplicateGroupStatusReview    = "needs_review"
)

// Merge strategies
const (
	MergeStrategyKeepNewest   = "keep_newest"
	MergeStrategyKeepBoth     = "keep_both"
	MergeStrategyManualReview = "manual_review"
)

// DuplicateGroup is one cluster of members the detector believes are the
// same person. The primary member is the group's surviving record.
type DuplicateGroup struct {
	ID              string  `json:"id" db:"id"`
	Status          string  `json:"status" db:"status"`
	Score           float64 `json:"score" db:"score"`
	PrimaryMemberID string  `json:"primary_member_id" db:"primary_member_id"`
	DetectionRunID  *string `json:"detection_run_id,omitempty" db:"detection_run_id"`

	Members []DuplicateGroupMember `json:"members,omitempty" db:"-"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy *string    `json:"resolved_by,omitempty" db:"resolved_by"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// DuplicateGroupMember is one member's place in a duplicate group, with the
// pairwise evidence that put it there.
type DuplicateGroupMember struct {
	GroupID       string                   `json:"group_id" db:"group_id"`
	MemberID      string                   `json:"member_id" db:"member_id"`
	Similarity    float64                  `json:"similarity" db:"similarity"`
	MatchedFields database.JSONB[[]string] `json:"matched_fields" db:"matched_fields"`
	IsPrimary     bool                     `json:"is_primary" db:"is_primary"`
	CreatedAt     time.Time                `json:"created_at" db:"created_at"`
}

// MergeGroupRequest resolves a duplicate group.
type MergeGroupRequest struct {
	Strategy string `json:"strategy" validate:"required,oneof=keep_newest keep_both manual_review"`
	// FieldOverrides forces specific fields onto the primary regardless of
	// strategy, keyed by field name with the member id to take it from.
	FieldOverrides map[string]string `json:"field_overrides,omitempty"`
	Notes          string            `json:"notes,omitempty"`
}

// MergeResult reports what a merge changed.
type MergeResult struct {
	GroupID         string   `json:"group_id"`
	Strategy        string   `json:"strategy"`
	PrimaryMemberID string   `json:"primary_member_id"`
	MergedMemberIDs []string `json:"merged_member_ids"`
	FieldsChanged   []string `json:"fields_changed"`
	ChangeCount     int      `json:"change_count"`
}

// DetectionRunResult summarizes one detection pass.
type DetectionRunResult struct {
	RunID           string    `json:"run_id"`
	MembersScanned  int       `json:"members_scanned"`
	PairsCompared   int       `json:"pairs_compared"`
	GroupsFound     int       `json:"groups_found"`
	GroupsCreated   int       `json:"groups_created"`
	GroupsUnchanged int       `json:"groups_unchanged"`
	Truncated       bool      `json:"truncated"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
}

// DuplicateGroupListResponse is the response for listing duplicate groups
type DuplicateGroupListResponse struct {
	Items      []DuplicateGroup `json:"items"`
	TotalCount int              `json:"total_count"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
}
