// Package transport owns the one realtime connection of a session scope.
// It reconnects with bounded backoff and re-announces the bound scope after
// every reconnect, since server-side subscriptions don't survive a drop.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mzelenov/backstage/internal/auth"
	"github.com/mzelenov/backstage/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateFailed is terminal: the retry budget is spent and the owner must
	// surface a degraded view instead of retrying silently forever.
	StateFailed
)

type Options struct {
	URL    string
	Tokens auth.TokenSource

	MinDelay    time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	PingPeriod  time.Duration
	ReadLimit   int64

	// OnStateChange is invoked on every transition, including StateFailed.
	OnStateChange func(State)
}

type Handler func(data json.RawMessage)

type handlerEntry struct {
	id int
	fn Handler
}

// Conn is a single client endpoint. It implements the Emitter surface the
// synchronizers own exclusively; nothing else may write to the socket.
type Conn struct {
	opts Options
	send chan []byte

	mu       sync.RWMutex
	handlers map[string][]handlerEntry
	nextID   int
	scope    domain.SessionID
	state    State
	closed   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Dial validates the credential and starts the connection manager. A missing
// token short-circuits before any network attempt.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if _, err := opts.Tokens.Token(); err != nil {
		return nil, err
	}
	if opts.MinDelay <= 0 {
		opts.MinDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		opts:     opts,
		send:     make(chan []byte, 32),
		handlers: make(map[string][]handlerEntry),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run(ctx)
	return c, nil
}

// WSURL rewrites an http(s) base URL into the ws(s) endpoint.
func WSURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}

// On registers a handler and returns its unsubscribe func. Handlers run on
// the read goroutine, in delivery order.
func (c *Conn) On(event string, fn Handler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entries := c.handlers[event]
		for i, e := range entries {
			if e.id == id {
				c.handlers[event] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Emit queues an event for the write pump. Queued frames survive a reconnect.
func (c *Conn) Emit(event string, v any) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return errors.New("connection closed")
	}

	var data json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		data = b
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// Subscribe binds the connection to a session scope. The scope is re-announced
// automatically after every reconnect.
func (c *Conn) Subscribe(id domain.SessionID) error {
	c.mu.Lock()
	c.scope = id
	connected := c.state == StateConnected
	c.mu.Unlock()
	if connected {
		return c.Emit(EventJoinSession, ScopePayload{SessionID: id})
	}
	return nil
}

// Unsubscribe releases the scope without tearing the socket down.
func (c *Conn) Unsubscribe() error {
	c.mu.Lock()
	id := c.scope
	c.scope = ""
	connected := c.state == StateConnected
	c.mu.Unlock()
	if connected && id != "" {
		return c.Emit(EventLeaveSession, ScopePayload{SessionID: id})
	}
	return nil
}

func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Close releases the socket and guarantees no handler fires afterwards.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateDisconnected
	c.mu.Unlock()
	c.cancel()
	<-c.done
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = s
	fn := c.opts.OnStateChange
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *Conn) dispatch(event string, data json.RawMessage) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	entries := make([]handlerEntry, len(c.handlers[event]))
	copy(entries, c.handlers[event])
	c.mu.RUnlock()

	for _, e := range entries {
		e.fn(data)
	}
}

func (c *Conn) currentScope() domain.SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scope
}

func (c *Conn) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	token, err := c.opts.Tokens.Token()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.done)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)
		ws, err := c.dialOnce(ctx)
		if err != nil {
			attempt++
			log.Warn().Err(err).Str("module", "transport").Int("attempt", attempt).Msg("dial failed")
			if attempt >= c.opts.MaxAttempts {
				c.setState(StateFailed)
				c.dispatch(EventError, mustJSON(ErrorPayload{Message: "connection failed: " + err.Error()}))
				return
			}
			select {
			case <-time.After(Backoff(attempt, c.opts.MinDelay, c.opts.MaxDelay)):
			case <-ctx.Done():
				return
			}
			continue
		}

		attempt = 0
		log.Info().Str("module", "transport").Str("url", c.opts.URL).Msg("connected")
		c.setState(StateConnected)
		c.dispatch(EventConnect, nil)
		if scope := c.currentScope(); scope != "" {
			_ = c.Emit(EventJoinSession, ScopePayload{SessionID: scope})
		}

		wsCtx, wsCancel := context.WithCancel(ctx)
		// Unblocks the blocking read when the scope is torn down.
		go func() {
			<-wsCtx.Done()
			_ = ws.Close()
		}()
		writeDone := make(chan struct{})
		go c.writePump(wsCtx, wsCancel, ws, writeDone)
		c.readPump(wsCtx, ws)
		wsCancel()
		<-writeDone

		c.setState(StateDisconnected)
		c.dispatch(EventDisconnect, nil)
		if ctx.Err() != nil {
			return
		}
		select {
		case <-time.After(c.opts.MinDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Conn) writePump(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer cancel()
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "transport").Msg("writePump ping error")
				return
			}
		case data := <-c.send:
			if err := ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "transport").Msg("writePump set deadline")
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "transport").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Conn) readPump(ctx context.Context, ws *websocket.Conn) {
	ws.SetReadLimit(c.opts.ReadLimit)
	pongWait := c.opts.PingPeriod + 10*time.Second
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := ws.ReadMessage()
			if err != nil {
				log.Warn().Err(err).Str("module", "transport").Msg("readPump read error")
				return
			}
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Error().Err(err).Str("module", "transport").Msg("bad json")
				continue
			}
			_ = ws.SetReadDeadline(time.Now().Add(pongWait))
			c.dispatch(env.Event, env.Data)
		}
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
