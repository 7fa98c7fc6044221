// Package session keeps the client-side view of one live session. The server
// is ground truth: roster membership changes are reconciled by a full
// re-fetch, and only narrowly-typed media flags are patched in place.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mzelenov/backstage/internal/api"
	"github.com/mzelenov/backstage/internal/domain"
	"github.com/mzelenov/backstage/internal/transport"
)

// API is the REST surface the synchronizer round-trips through.
// *api.Client implements it.
type API interface {
	GetSession(ctx context.Context, id domain.SessionID) (*api.SessionState, error)
	JoinSession(ctx context.Context, id domain.SessionID) error
	LeaveSession(ctx context.Context, id domain.SessionID) error
	StartSession(ctx context.Context, id domain.SessionID) error
	EndSession(ctx context.Context, id domain.SessionID) error
	MuteParticipant(ctx context.Context, id domain.SessionID, uid domain.UserID) error
	UnmuteParticipant(ctx context.Context, id domain.SessionID, uid domain.UserID) error
	RemoveParticipant(ctx context.Context, id domain.SessionID, uid domain.UserID) error
}

// EventConn is the slice of transport.Conn the synchronizer owns. No other
// component may emit on the bound connection.
type EventConn interface {
	On(event string, fn transport.Handler) func()
	Emit(event string, v any) error
	Subscribe(id domain.SessionID) error
	Unsubscribe() error
	Close()
}

// ConnectFunc acquires a fresh connection for a scope. A missing credential
// must fail here, before any network attempt.
type ConnectFunc func(ctx context.Context) (EventConn, error)

// Synchronizer binds to at most one session id at a time. Rebinding or
// closing bumps an internal generation so in-flight fetches and stale events
// can never mutate state that belongs to a newer scope.
type Synchronizer struct {
	api     API
	connect ConnectFunc

	mu        sync.RWMutex
	gen       uint64
	sessionID domain.SessionID
	session   *domain.Session
	roster    []domain.Participant
	loading   bool
	lastErr   string
	connected bool
	closed    bool

	ctx   context.Context
	conn  EventConn
	unsub func()
}

func New(a API, connect ConnectFunc) *Synchronizer {
	return &Synchronizer{api: a, connect: connect}
}

// Bind attaches the synchronizer to a session id, tearing down any previous
// scope first. An empty id means inactive. The initial re-fetch runs
// asynchronously; its outcome lands in Snapshot/Roster/LastError.
func (s *Synchronizer) Bind(ctx context.Context, id domain.SessionID) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	s.teardown()
	if id == "" {
		return nil
	}

	conn, err := s.connect(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.sessionID = id
	s.ctx = ctx
	s.conn = conn
	s.lastErr = ""
	s.mu.Unlock()

	s.wireHandlers(conn, gen)
	if err := conn.Subscribe(id); err != nil && err != transport.ErrBackpressure {
		log.Warn().Err(err).Str("module", "session").Msg("subscribe emit failed")
	}

	go s.refetch(ctx, gen)
	return nil
}

// wireHandlers registers all push handlers and records one combined
// unsubscribe for teardown.
func (s *Synchronizer) wireHandlers(conn EventConn, gen uint64) {
	unsubs := []func(){
		conn.On(transport.EventConnect, func(json.RawMessage) {
			s.setConnected(true)
			// Reconcile: anything may have happened while disconnected.
			go s.refetch(s.boundCtx(), gen)
		}),
		conn.On(transport.EventDisconnect, func(json.RawMessage) {
			s.setConnected(false)
		}),
		conn.On(transport.EventError, func(data json.RawMessage) {
			var p transport.ErrorPayload
			_ = json.Unmarshal(data, &p)
			if p.Message == "" {
				p.Message = "transport error"
			}
			s.setErr(p.Message)
		}),
		conn.On(transport.EventSessionJoined, func(data json.RawMessage) {
			s.applySession(data)
		}),
		conn.On(transport.EventSessionUpdated, func(data json.RawMessage) {
			s.applySession(data)
		}),
		// Joined/left payloads are minimal on purpose; the authoritative
		// roster comes from a re-fetch, one per event, never coalesced.
		conn.On(transport.EventParticipantJoined, func(json.RawMessage) {
			go s.refetch(s.boundCtx(), gen)
		}),
		conn.On(transport.EventParticipantLeft, func(json.RawMessage) {
			go s.refetch(s.boundCtx(), gen)
		}),
		conn.On(transport.EventParticipantMedia, func(data json.RawMessage) {
			var p transport.MediaPayload
			if err := json.Unmarshal(data, &p); err != nil {
				log.Error().Err(err).Str("module", "session").Msg("bad media payload")
				return
			}
			s.applyMedia(p)
		}),
	}

	s.mu.Lock()
	s.unsub = func() {
		for _, u := range unsubs {
			u()
		}
	}
	s.mu.Unlock()
}

// Close releases the scope. No state mutation can happen afterwards, even if
// an in-flight request or queued push event resolves later.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.teardown()
}

func (s *Synchronizer) teardown() {
	s.mu.Lock()
	s.gen++
	unsub := s.unsub
	conn := s.conn
	s.unsub = nil
	s.conn = nil
	s.ctx = nil
	s.sessionID = ""
	s.session = nil
	s.roster = nil
	s.loading = false
	s.connected = false
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if conn != nil {
		_ = conn.Unsubscribe()
		conn.Close()
	}
}

// refetch replaces the cached snapshot wholesale. Responses for a stale
// generation are dropped: last-write-wins by completion time within one
// generation, nothing at all across generations.
func (s *Synchronizer) refetch(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || ctx == nil {
		s.mu.Unlock()
		return
	}
	id := s.sessionID
	s.loading = true
	s.mu.Unlock()

	state, err := s.api.GetSession(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
		return
	}
	sess := state.Session
	s.session = &sess
	s.roster = state.Participants
	s.lastErr = ""
}

func (s *Synchronizer) applySession(data json.RawMessage) {
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		log.Error().Err(err).Str("module", "session").Msg("bad session payload")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || sess.ID != s.sessionID {
		return
	}
	s.session = &sess
}

func (s *Synchronizer) applyMedia(p transport.MediaPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for i := range s.roster {
		if s.roster[i].UserID != p.UserID {
			continue
		}
		if p.IsMuted != nil {
			s.roster[i].IsMuted = *p.IsMuted
		}
		if p.VideoEnabled != nil {
			s.roster[i].VideoEnabled = *p.VideoEnabled
		}
		if p.Screenshare != nil {
			s.roster[i].Screenshare = *p.Screenshare
		}
		return
	}
}

func (s *Synchronizer) setConnected(v bool) {
	s.mu.Lock()
	if !s.closed {
		s.connected = v
	}
	s.mu.Unlock()
}

func (s *Synchronizer) setErr(msg string) {
	s.mu.Lock()
	if !s.closed {
		s.lastErr = msg
	}
	s.mu.Unlock()
}

func (s *Synchronizer) boundCtx() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

func (s *Synchronizer) generation() (domain.SessionID, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID, s.gen
}

// Join enters the bound session. Its effects are broad, so success triggers
// a full re-fetch instead of a local patch.
func (s *Synchronizer) Join(ctx context.Context) error {
	return s.broadAction(ctx, s.api.JoinSession)
}

func (s *Synchronizer) Leave(ctx context.Context) error {
	return s.broadAction(ctx, s.api.LeaveSession)
}

func (s *Synchronizer) Start(ctx context.Context) error {
	return s.broadAction(ctx, s.api.StartSession)
}

func (s *Synchronizer) End(ctx context.Context) error {
	return s.broadAction(ctx, s.api.EndSession)
}

func (s *Synchronizer) broadAction(ctx context.Context, call func(context.Context, domain.SessionID) error) error {
	id, gen := s.generation()
	if id == "" {
		return ErrNotBound
	}
	if err := call(ctx, id); err != nil {
		s.setErr(err.Error())
		return err
	}
	s.refetch(ctx, gen)
	return nil
}

// Mute patches only the target's mute flag on success; no re-fetch.
func (s *Synchronizer) Mute(ctx context.Context, uid domain.UserID) error {
	return s.mediaAction(ctx, uid, s.api.MuteParticipant, func(p *domain.Participant) {
		p.IsMuted = true
	})
}

func (s *Synchronizer) Unmute(ctx context.Context, uid domain.UserID) error {
	return s.mediaAction(ctx, uid, s.api.UnmuteParticipant, func(p *domain.Participant) {
		p.IsMuted = false
	})
}

func (s *Synchronizer) mediaAction(ctx context.Context, uid domain.UserID,
	call func(context.Context, domain.SessionID, domain.UserID) error,
	patch func(*domain.Participant)) error {

	id, gen := s.generation()
	if id == "" {
		return ErrNotBound
	}
	if err := call(ctx, id, uid); err != nil {
		s.setErr(err.Error())
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return nil
	}
	for i := range s.roster {
		if s.roster[i].UserID == uid {
			patch(&s.roster[i])
			break
		}
	}
	return nil
}

// Remove drops the target from the local roster on success; the next full
// re-fetch confirms it.
func (s *Synchronizer) Remove(ctx context.Context, uid domain.UserID) error {
	id, gen := s.generation()
	if id == "" {
		return ErrNotBound
	}
	if err := s.api.RemoveParticipant(ctx, id, uid); err != nil {
		s.setErr(err.Error())
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return nil
	}
	for i := range s.roster {
		if s.roster[i].UserID == uid {
			s.roster = append(s.roster[:i], s.roster[i+1:]...)
			break
		}
	}
	return nil
}

// Snapshot returns a copy of the cached session, or nil while unbound or
// before the first fetch lands.
func (s *Synchronizer) Snapshot() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	sess := *s.session
	return &sess
}

// Roster returns a copy of the participant list in server order.
func (s *Synchronizer) Roster() []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participant, len(s.roster))
	copy(out, s.roster)
	return out
}

func (s *Synchronizer) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Synchronizer) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Synchronizer) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}
