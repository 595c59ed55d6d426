package events

// EventType defines the type of event
type EventType string

const (
	// Member lifecycle events
	EventTypeMemberCreated     EventType = "member.created"
	EventTypeMemberUpdated     EventType = "member.updated"
	EventTypeMemberMerged      EventType = "member.merged"
	EventTypeMemberDeactivated EventType = "member.deactivated"

	// Detection events
	EventTypeDuplicatesDetected EventType = "duplicates.detected"
)

// MergeDetails is the data payload of a member.merged event. Downstream
// consumers rebuild their view of the surviving record from it without
// replaying the per-field change history.
type MergeDetails struct {
	SchemaVersion string   `json:"schema_version"`
	GroupID       string   `json:"group_id"`
	Strategy      string   `json:"strategy"`
	MergedMembers []string `json:"merged_members"`
	FieldsChanged []string `json:"fields_changed"`
	ChangeCount   int      `json:"change_count"`
}

// DeactivationDetails is the data payload of a member.deactivated event
type DeactivationDetails struct {
	SchemaVersion string `json:"schema_version"`
	Reason        string `json:"reason,omitempty"`
}
