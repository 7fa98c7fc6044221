// Package server is the development stub for the session service: an
// in-memory store, a gin REST surface, and a websocket hub pushing the same
// events the production backend would. It exists so the SDK has a real wire
// peer for demos and integration tests.
package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mzelenov/backstage/internal/api"
	"github.com/mzelenov/backstage/internal/domain"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("participant not found")
)

type record struct {
	session domain.Session
	roster  []domain.Participant
}

// Store keeps sessions in memory. Roster order is insertion order; the
// snapshot handed out preserves it.
type Store struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*record
}

func NewStore() *Store {
	return &Store{sessions: make(map[domain.SessionID]*record)}
}

func (s *Store) CreateSession(title string, organizer domain.UserID, scheduledAt time.Time) (*domain.Session, error) {
	sess, err := domain.NewSession(domain.SessionID(uuid.NewString()), title, organizer, scheduledAt)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[sess.ID] = &record{session: *sess}
	s.mu.Unlock()
	return sess, nil
}

// State returns the authoritative snapshot: metadata plus active roster.
// Participants with LeftAt set are already gone from the roster.
func (s *Store) State(id domain.SessionID) (*api.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	roster := make([]domain.Participant, len(rec.roster))
	copy(roster, rec.roster)
	return &api.SessionState{Session: rec.session, Participants: roster}, nil
}

func (s *Store) AddParticipant(id domain.SessionID, p domain.Participant) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	for i := range rec.roster {
		if rec.roster[i].UserID == p.UserID {
			// Rejoin replaces the stale entry.
			rec.roster[i] = p
			sess := rec.session
			return &sess, nil
		}
	}
	rec.roster = append(rec.roster, p)
	sess := rec.session
	return &sess, nil
}

func (s *Store) RemoveParticipant(id domain.SessionID, uid domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	for i := range rec.roster {
		if rec.roster[i].UserID == uid {
			rec.roster = append(rec.roster[:i], rec.roster[i+1:]...)
			return nil
		}
	}
	return ErrParticipantNotFound
}

func (s *Store) SetMuted(id domain.SessionID, uid domain.UserID, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	for i := range rec.roster {
		if rec.roster[i].UserID == uid {
			rec.roster[i].IsMuted = muted
			return nil
		}
	}
	return ErrParticipantNotFound
}

func (s *Store) StartSession(id domain.SessionID) (*domain.Session, error) {
	return s.setStatus(id, domain.StatusLive)
}

func (s *Store) EndSession(id domain.SessionID) (*domain.Session, error) {
	return s.setStatus(id, domain.StatusEnded)
}

func (s *Store) setStatus(id domain.SessionID, status domain.SessionStatus) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := time.Now()
	rec.session.Status = status
	switch status {
	case domain.StatusLive:
		rec.session.StartedAt = &now
	case domain.StatusEnded:
		rec.session.EndedAt = &now
		if rec.session.StartedAt != nil {
			rec.session.Duration = int(now.Sub(*rec.session.StartedAt) / time.Second)
		}
	}
	sess := rec.session
	return &sess, nil
}
