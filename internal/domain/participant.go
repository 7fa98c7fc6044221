package domain

import (
	"errors"
	"time"
)

const MaxUsernameLen = 36

var (
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
)

type UserID string

type Role string

const (
	RoleOrganizer Role = "organizer"
	RoleSpeaker   Role = "speaker"
	RoleModerator Role = "moderator"
	RoleAttendee  Role = "attendee"
)

// Participant represents user's membership meta for a session.
// Presence in the roster implies an active membership; once LeftAt is set
// the entry is retired and the next full re-fetch drops it.
type Participant struct {
	UserID       UserID     `json:"userId"`
	Username     string     `json:"userName"`
	Role         Role       `json:"role"`
	IsMuted      bool       `json:"isMuted"`
	VideoEnabled bool       `json:"videoEnabled"`
	Screenshare  bool       `json:"screenshareActive"`
	JoinedAt     time.Time  `json:"joinedAt"`
	LeftAt       *time.Time `json:"leftAt,omitempty"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(id UserID, username string, role Role) (*Participant, error) {
	if len(username) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	if role == "" {
		role = RoleAttendee
	}
	return &Participant{
		UserID:   id,
		Username: username,
		Role:     role,
		JoinedAt: time.Now(),
	}, nil
}
