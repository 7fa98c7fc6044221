package session

import "errors"

var (
	ErrNotBound = errors.New("no session bound")
	ErrClosed   = errors.New("synchronizer closed")
)
