package audit

import "time"

// Event is an immutable, append-only record of a session lifecycle change.
//
// Invariants:
// - Events are never updated or deleted.
// - session_id is required; user and workspace are best-effort.
// - Tokens are never recorded.
type Event struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Type      EventType `json:"type" db:"type"`

	UserID      string `json:"user_id,omitempty" db:"user_id"`
	WorkspaceID string `json:"workspace_id,omitempty" db:"workspace_id"`

	// IPAddress is the resolved browser IP, when the event came from a request.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Message is a short human-readable description for ops, e.g. the forced logout reason.
	Message  string `json:"message,omitempty" db:"message"`
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeLogin             EventType = "login"
	EventTypeRefresh           EventType = "token_refresh"
	EventTypeRefreshFailed     EventType = "token_refresh_failed"
	EventTypeForcedLogout      EventType = "forced_logout"
	EventTypeLogout            EventType = "logout"
	EventTypeWorkspaceSelected EventType = "workspace_selected"
)
