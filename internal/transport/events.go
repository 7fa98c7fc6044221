package transport

import (
	"encoding/json"
	"time"

	"github.com/mzelenov/backstage/internal/domain"
)

// Outbound events announce interest in a session scope.
const (
	EventJoinSession  = "join-session"
	EventLeaveSession = "leave-session"
)

// Inbound events. Connect and Disconnect are synthesized locally around the
// socket lifecycle; the rest arrive from the server.
const (
	EventConnect           = "connect"
	EventDisconnect        = "disconnect"
	EventError             = "error"
	EventSessionJoined     = "session-joined"
	EventSessionUpdated    = "session-updated"
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventParticipantMedia  = "participant-media-changed"
	EventNotification      = "notification"
)

// Envelope is the wire framing for every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ScopePayload struct {
	SessionID domain.SessionID `json:"sessionId"`
}

type ErrorPayload struct {
	Message string `json:"message,omitempty"`
}

// ParticipantJoinedPayload is intentionally minimal; the authoritative roster
// comes from a re-fetch, not from this event.
type ParticipantJoinedPayload struct {
	UserID    domain.UserID `json:"userId"`
	Username  string        `json:"userName"`
	Role      domain.Role   `json:"role"`
	Timestamp time.Time     `json:"timestamp"`
}

type ParticipantLeftPayload struct {
	UserID    domain.UserID `json:"userId"`
	Timestamp time.Time     `json:"timestamp"`
}

// MediaPayload carries only the fields that changed; nil means untouched.
type MediaPayload struct {
	UserID       domain.UserID `json:"userId"`
	IsMuted      *bool         `json:"isMuted,omitempty"`
	VideoEnabled *bool         `json:"videoEnabled,omitempty"`
	Screenshare  *bool         `json:"screenshareActive,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}
