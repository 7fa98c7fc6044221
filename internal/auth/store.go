// Package auth holds the bearer credential shared by the REST client and
// the realtime transport. The rest of the code only ever reads it.
package auth

import (
	"errors"
	"sync"
)

var ErrNoToken = errors.New("no auth token")

// TokenSource is the read-only view handed to transports and API clients.
type TokenSource interface {
	// Token returns the current bearer token, or ErrNoToken when the user
	// is logged out.
	Token() (string, error)
}

// Store is set on login and cleared on logout.
type Store struct {
	mu    sync.RWMutex
	token string
}

func NewStore(token string) *Store {
	return &Store{token: token}
}

func (s *Store) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

func (s *Store) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// StaticToken adapts a fixed string to TokenSource.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}
