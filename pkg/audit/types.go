package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeAuthRegister           EventType = "auth.register"
	EventTypeAuthLogin              EventType = "auth.login"
	EventTypeAuthLoginFailed        EventType = "auth.login_failed"
	EventTypeAuthProviderLogin      EventType = "auth.provider_login"
	EventTypeAuthLogout             EventType = "auth.logout"
	EventTypeAuthTokenRefresh       EventType = "auth.token_refresh"
	EventTypeAuthTokenRefreshFailed EventType = "auth.token_refresh_failed"
	EventTypeAuthPasswordChange     EventType = "auth.password_change"
	EventTypeAuthProfileUpdate      EventType = "auth.profile_update"
	EventTypeAuthzAccessDenied      EventType = "authz.access_denied"
	EventTypeAdminRoleAssign        EventType = "admin.role_assign"
)

// EventStatus is the outcome of an audited action
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID   string `json:"user_id,omitempty"`
	Email    string `json:"email,omitempty"`
	Provider string `json:"provider,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON serializes the event
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
