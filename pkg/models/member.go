package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// Member statuses
const (
	MemberStatusActive   = "active"
	MemberStatusInactive = "inactive"
)

// Member is the resolved directory record for one person. Scalar columns
// hold the normalized fields the matchers and rankers read; jsonb columns
// hold the structured extras.
// Field order matches schema: id, import_batch_id, source_name, source_record_id, ...
type Member struct {
	ID             string  `json:"id" db:"id"`
	ImportBatchID  *string `json:"import_batch_id,omitempty" db:"import_batch_id"`
	SourceName     *string `json:"source_name,omitempty" db:"source_name"`
	SourceRecordID *string `json:"source_record_id,omitempty" db:"source_record_id"`
	// DataVintage estimates when the source data was collected, parsed from
	// the source name. Older rosters carry older vintages no matter when
	// they were imported.
	DataVintage *time.Time `json:"data_vintage,omitempty" db:"data_vintage"`

	// Identity
	FullName   string  `json:"full_name" db:"full_name"`
	FirstName  *string `json:"first_name,omitempty" db:"first_name"`
	MiddleName *string `json:"middle_name,omitempty" db:"middle_name"`
	LastName   *string `json:"last_name,omitempty" db:"last_name"`
	Nickname   *string `json:"nickname,omitempty" db:"nickname"`
	Honorific  *string `json:"honorific,omitempty" db:"honorific"`   // dr, atty, eng
	NameSuffix *string `json:"name_suffix,omitempty" db:"name_suffix"` // jr, sr, iii

	// Membership
	BatchYear     *int    `json:"batch_year,omitempty" db:"batch_year"`
	BatchSemester *string `json:"batch_semester,omitempty" db:"batch_semester"`
	BatchSubNumber *int   `json:"batch_sub_number,omitempty" db:"batch_sub_number"`
	BatchLabel    *string `json:"batch_label,omitempty" db:"batch_label"` // canonical "1995-S"
	BatchDecade   *int    `json:"batch_decade,omitempty" db:"batch_decade"`
	ChapterName   *string `json:"chapter_name,omitempty" db:"chapter_name"`

	// Contact
	Email          *string `json:"email,omitempty" db:"email"`
	EmailDomain    *string `json:"email_domain,omitempty" db:"email_domain"`
	EmailSector    *string `json:"email_sector,omitempty" db:"email_sector"`
	MobileNumber   *string `json:"mobile_number,omitempty" db:"mobile_number"`
	LandlineNumber *string `json:"landline_number,omitempty" db:"landline_number"`

	// Location
	HomeAddress *string `json:"home_address,omitempty" db:"home_address"`
	HomeCity    *string `json:"home_city,omitempty" db:"home_city"`
	HomeRegion  *string `json:"home_region,omitempty" db:"home_region"`
	OfficeAddress *string `json:"office_address,omitempty" db:"office_address"`
	OfficeCity    *string `json:"office_city,omitempty" db:"office_city"`
	OfficeRegion  *string `json:"office_region,omitempty" db:"office_region"`

	// Profession
	JobTitle           *string                       `json:"job_title,omitempty" db:"job_title"`
	Company            *string                       `json:"company,omitempty" db:"company"`
	DeclaredProfession *string                       `json:"declared_profession,omitempty" db:"declared_profession"`
	Specializations    database.JSONB[[]string]      `json:"specializations" db:"specializations"`
	Inference          database.JSONB[*InferenceResult] `json:"inference" db:"inference"`

	// Availability
	OpenToReferrals *bool `json:"open_to_referrals,omitempty" db:"open_to_referrals"`

	// Resolution state
	Status        string  `json:"status" db:"status"`
	IsDuplicate   bool    `json:"is_duplicate" db:"is_duplicate"`
	DuplicateOfID *string `json:"duplicate_of_id,omitempty" db:"duplicate_of_id"`

	CompletenessScore float64 `json:"completeness_score" db:"completeness_score"`
	ConfidenceScore   float64 `json:"confidence_score" db:"confidence_score"`

	Fingerprint         string `json:"fingerprint" db:"fingerprint"`
	PreviousFingerprint string `json:"previous_fingerprint,omitempty" db:"previous_fingerprint"`

	RawData json.RawMessage `json:"raw_data,omitempty" db:"raw_data"`

	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty" db:"last_verified_at"`
	VerifiedBy     *string    `json:"verified_by,omitempty" db:"verified_by"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// InferenceResult holds what the inference engine concluded for a member.
type InferenceResult struct {
	Profession      *InferredAttribute  `json:"profession,omitempty"`
	Specializations []string            `json:"specializations,omitempty"`
	WorkCity        *InferredAttribute  `json:"work_city,omitempty"`
	Alternatives    []InferredCandidate `json:"alternatives,omitempty"`
	InferredAt      time.Time           `json:"inferred_at"`
}

// InferredAttribute is one accepted inference with its provenance.
type InferredAttribute struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"` // job_title, company, email_domain, office_address
	Keyword    string  `json:"keyword,omitempty"`
}

// InferredCandidate is a rejected or runner-up inference kept for review.
type InferredCandidate struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// ProfessionCategory returns the declared category when present, otherwise
// the accepted inferred one. The bool reports whether the value is declared.
func (m *Member) ProfessionCategory() (string, bool) {
	if m.DeclaredProfession != nil && *m.DeclaredProfession != "" {
		return *m.DeclaredProfession, true
	}
	if inf := m.Inference.GetValue(); inf != nil && inf.Profession != nil {
		return inf.Profession.Value, false
	}
	return "", false
}

// InferredConfidence returns the confidence of the accepted inferred
// profession, or 0 when nothing was inferred.
func (m *Member) InferredConfidence() float64 {
	if inf := m.Inference.GetValue(); inf != nil && inf.Profession != nil {
		return inf.Profession.Confidence
	}
	return 0
}

// AllSpecializations merges declared and inferred specializations without
// duplicates, declared first.
func (m *Member) AllSpecializations() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range m.Specializations.GetValue() {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if inf := m.Inference.GetValue(); inf != nil {
		for _, s := range inf.Specializations {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// Searchable reports whether the member may appear in search results.
// Duplicates and inactive members never rank.
func (m *Member) Searchable() bool {
	return m.Status == MemberStatusActive && !m.IsDuplicate && m.DeletedAt == nil
}

// BatchEra renders the batch decade as a display era, "'90s" for 1990 and
// "2000s" from the millennium on.
func (m *Member) BatchEra() string {
	if m.BatchDecade == nil {
		return ""
	}
	d := *m.BatchDecade
	if d < 2000 {
		return fmt.Sprintf("'%02ds", d%100)
	}
	return fmt.Sprintf("%ds", d)
}

// CreateMemberRequest is the request for creating a member from raw fields.
type CreateMemberRequest struct {
	Fields         map[string]any `json:"fields" validate:"required"`
	SourceName     string         `json:"source_name,omitempty"`
	SourceRecordID string         `json:"source_record_id,omitempty"`
	ImportBatchID  *string        `json:"import_batch_id,omitempty"`
}

// UpdateMemberRequest is the request for updating a member with raw fields.
// Only the provided fields are re-normalized and applied.
type UpdateMemberRequest struct {
	Fields map[string]any `json:"fields" validate:"required"`
}

// VerifyMemberRequest marks member fields as human-verified.
type VerifyMemberRequest struct {
	Fields []string `json:"fields,omitempty"`
	Notes  string   `json:"notes,omitempty"`
}

// DeactivateMemberRequest soft deletes a member.
type DeactivateMemberRequest struct {
	Reason string `json:"reason,omitempty"`
}

// MemberListResponse is the response for listing members
type MemberListResponse struct {
	Items      []Member `json:"items"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}
