package models

import "time"

// MemberStats are the aggregate counters computed over the members table.
type MemberStats struct {
	TotalMembers        int     `json:"total_members" db:"total_members"`
	ActiveMembers       int     `json:"active_members" db:"active_members"`
	InactiveMembers     int     `json:"inactive_members" db:"inactive_members"`
	FlaggedDuplicates   int     `json:"flagged_duplicates" db:"flagged_duplicates"`
	WithEmail           int     `json:"with_email" db:"with_email"`
	WithMobile          int     `json:"with_mobile" db:"with_mobile"`
	Contactable         int     `json:"contactable" db:"contactable"`
	AverageConfidence   float64 `json:"average_confidence" db:"average_confidence"`
	AverageCompleteness float64 `json:"average_completeness" db:"average_completeness"`
}

// DirectoryStats is the full data-quality snapshot served by the stats
// endpoint.
type DirectoryStats struct {
	Members                 MemberStats   `json:"members"`
	OpenDuplicateGroups     int           `json:"open_duplicate_groups"`
	ResolvedDuplicateGroups int           `json:"resolved_duplicate_groups"`
	ChangesLastWeek         int           `json:"changes_last_week"`
	RecentImports           []ImportBatch `json:"recent_imports"`
	GeneratedAt             time.Time     `json:"generated_at"`
}
