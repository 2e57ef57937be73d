package models

import "github.com/mockcarpool/carpool/internal/session"

// CreateSessionResponse is returned when a session is opened. The token
// authorizes every later call on the session.
type CreateSessionResponse struct {
	SessionID string            `json:"sessionId"`
	Token     string            `json:"token"`
	ExpiresAt Timestamp         `json:"expiresAt"`
	Snapshot  *session.Snapshot `json:"snapshot"`
}

// SetTextRequest replaces the text of a field. An empty string is allowed.
type SetTextRequest struct {
	Text *string `json:"text"`
}

// SelectSuggestionRequest accepts the suggestion shown at Index.
type SelectSuggestionRequest struct {
	Index *int `json:"index"`
}

// SessionEvent is the payload of one server-sent event. The opening snapshot has no reason.
type SessionEvent struct {
	Reason   session.Reason    `json:"reason,omitempty"`
	Snapshot *session.Snapshot `json:"snapshot"`
}
