package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mzelenov/backstage/internal/domain"
	"github.com/mzelenov/backstage/internal/transport"
)

var ErrBackpressure = errors.New("backpressure")

type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsClient) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks connected clients and which session scope each one announced.
// The server-side subscription lives only as long as the socket, which is
// why clients must re-announce after reconnecting.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]domain.SessionID
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]domain.SessionID)}
}

// BroadcastScope pushes an event to every client subscribed to the session.
func (h *Hub) BroadcastScope(id domain.SessionID, event string, v any) {
	frame, err := marshalEnvelope(event, v)
	if err != nil {
		log.Error().Err(err).Str("module", "server.hub").Msg("broadcast marshal")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c, scope := range h.clients {
		if scope != id {
			continue
		}
		if err := c.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "server.hub").Msg("dropping frame for slow client")
		}
	}
}

// BroadcastAll pushes an event to every connected client regardless of scope.
// Used for user-level notifications.
func (h *Hub) BroadcastAll(event string, v any) {
	frame, err := marshalEnvelope(event, v)
	if err != nil {
		log.Error().Err(err).Str("module", "server.hub").Msg("broadcast marshal")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.TrySend(frame)
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = ""
	h.mu.Unlock()
}

func (h *Hub) setScope(c *wsClient, id domain.SessionID) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		h.clients[c] = id
	}
	h.mu.Unlock()
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// HandleWS upgrades the request and runs the pumps until the socket dies.
func (h *Hub) HandleWS(ctx context.Context, store *Store, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "server.hub").Msg("ws upgrade")
		return
	}

	client := &wsClient{
		conn: ws,
		send: make(chan []byte, 32),
	}
	h.add(client)
	ctx, cancel := context.WithCancel(ctx)

	go h.writePump(ctx, client)
	go h.readPump(ctx, cancel, store, client)
}

func (h *Hub) writePump(ctx context.Context, c *wsClient) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "server.hub").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "server.hub").Msg("writePump write error")
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, cancel context.CancelFunc, store *Store, c *wsClient) {
	defer func() {
		h.drop(c)
		cancel()
		c.Close()
	}()

	c.conn.SetPingHandler(func(appData string) error {
		return c.conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(5*time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			h.handleFrame(store, c, data)
		}
	}
}

func (h *Hub) handleFrame(store *Store, c *wsClient, data []byte) {
	var env transport.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "server.hub").Msg("bad json")
		return
	}

	switch env.Event {
	case transport.EventJoinSession:
		var p transport.ScopePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			h.sendError(c, "bad payload")
			return
		}
		state, err := store.State(p.SessionID)
		if err != nil {
			h.sendError(c, err.Error())
			return
		}
		h.setScope(c, p.SessionID)
		h.sendEvent(c, transport.EventSessionJoined, state.Session)
	case transport.EventLeaveSession:
		h.setScope(c, "")
	default:
		log.Warn().Str("module", "server.hub").Str("event", env.Event).Msg("unknown event")
	}
}

func (h *Hub) sendEvent(c *wsClient, event string, v any) {
	frame, err := marshalEnvelope(event, v)
	if err != nil {
		log.Error().Err(err).Str("module", "server.hub").Msg("sendEvent marshal")
		return
	}
	_ = c.TrySend(frame)
}

func (h *Hub) sendError(c *wsClient, msg string) {
	h.sendEvent(c, transport.EventError, transport.ErrorPayload{Message: msg})
}

func marshalEnvelope(event string, v any) ([]byte, error) {
	var data json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(transport.Envelope{Event: event, Data: data})
}
