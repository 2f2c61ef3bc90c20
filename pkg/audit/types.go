package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Admin events
	EventTypeAdminUserUpdate  EventType = "admin.user_update"
	EventTypeAdminUserDelete  EventType = "admin.user_delete"
	EventTypeAdminUserPromote EventType = "admin.user_promote"
	EventTypeAdminGlobalList  EventType = "admin.global_list_create"
	EventTypeAdminPurge       EventType = "admin.proposal_purge"

	// Registry events
	EventTypeRoleCreate EventType = "rbac.role_create"
	EventTypeRoleUpdate EventType = "rbac.role_update"
	EventTypeRoleDelete EventType = "rbac.role_delete"

	// Group events
	EventTypeGroupMemberAdd     EventType = "group.member_add"
	EventTypeGroupMemberRemove  EventType = "group.member_remove"
	EventTypeGroupInvite        EventType = "group.invite"
	EventTypeGroupInviteRespond EventType = "group.invite_respond"

	// Proposal events
	EventTypeProposalStatus EventType = "proposal.status_change"

	// Authorization events
	EventTypeAccessDenied EventType = "authz.access_denied"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceTypeUser       ResourceType = "user"
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeGroup      ResourceType = "group"
	ResourceTypeInvitation ResourceType = "invitation"
	ResourceTypeList       ResourceType = "list"
	ResourceTypeProposal   ResourceType = "proposal"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// ActorID is the member who performed the action, empty for system jobs.
	ActorID string `json:"actor_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	ActorID    string
	EventTypes []EventType
	Status     EventStatus

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}

// AuditStats represents statistics about audit logs
type AuditStats struct {
	TotalEvents    int64                 `json:"total_events"`
	EventsByType   map[EventType]int64   `json:"events_by_type"`
	EventsByStatus map[EventStatus]int64 `json:"events_by_status"`
	UniqueActors   int64                 `json:"unique_actors"`
	AccessDenials  int64                 `json:"access_denials"`
}
