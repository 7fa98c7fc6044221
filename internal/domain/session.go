// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"
)

const MaxTitleLen = 140

var (
	ErrTitleEmpty   = errors.New("title empty")
	ErrTitleTooLong = errors.New("title too long")
)

type SessionID string

type SessionStatus string

const (
	StatusDraft     SessionStatus = "draft"
	StatusScheduled SessionStatus = "scheduled"
	StatusLive      SessionStatus = "live"
	StatusEnded     SessionStatus = "ended"
)

// Session is the server-owned snapshot of one live session.
// The client keeps a read-mostly cached copy, replaced wholesale on re-fetch.
type Session struct {
	ID          SessionID     `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Status      SessionStatus `json:"status"`
	OrganizerID UserID        `json:"organizerId"`
	ScheduledAt time.Time     `json:"scheduledAt"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	EndedAt     *time.Time    `json:"endedAt,omitempty"`
	Duration    int           `json:"duration,omitempty"`
}

// NewSession is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewSession(id SessionID, title string, organizer UserID, scheduledAt time.Time) (*Session, error) {
	if len(title) == 0 {
		return nil, ErrTitleEmpty
	}
	if len(title) > MaxTitleLen {
		return nil, ErrTitleTooLong
	}
	return &Session{
		ID:          id,
		Title:       title,
		Status:      StatusScheduled,
		OrganizerID: organizer,
		ScheduledAt: scheduledAt,
	}, nil
}
