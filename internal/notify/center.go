// Package notify keeps the ordered notification log for the signed-in user.
// The log is a convenience view, not authoritative state: mutations are
// local and never wait for server acknowledgment.
package notify

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mzelenov/backstage/internal/domain"
	"github.com/mzelenov/backstage/internal/transport"
)

// Center holds notifications in arrival order. The unread count is always
// derived from the list, never stored, so the two cannot drift.
type Center struct {
	mu        sync.RWMutex
	list      []domain.Notification
	index     map[domain.NotificationID]int
	connected bool
}

func NewCenter() *Center {
	return &Center{index: make(map[domain.NotificationID]int)}
}

// Append adds a pushed notification. A duplicate id replaces the existing
// entry in place instead of doubling it.
func (c *Center) Append(n domain.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.index[n.ID]; ok {
		c.list[i] = n
		return
	}
	c.index[n.ID] = len(c.list)
	c.list = append(c.list, n)
}

// MarkAsRead is idempotent; an unknown id is a no-op.
func (c *Center) MarkAsRead(id domain.NotificationID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.index[id]; ok {
		c.list[i].Read = true
	}
}

func (c *Center) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = nil
	c.index = make(map[domain.NotificationID]int)
}

func (c *Center) Unread() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, item := range c.list {
		if !item.Read {
			n++
		}
	}
	return n
}

// Notifications returns a copy in arrival order.
func (c *Center) Notifications() []domain.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Notification, len(c.list))
	copy(out, c.list)
	return out
}

func (c *Center) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Center) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// Attach subscribes the center to a connection's push events and returns an
// unsubscribe func to call during scope release.
func (c *Center) Attach(conn *transport.Conn) func() {
	unsubs := []func(){
		conn.On(transport.EventConnect, func(json.RawMessage) {
			c.setConnected(true)
		}),
		conn.On(transport.EventDisconnect, func(json.RawMessage) {
			c.setConnected(false)
		}),
		conn.On(transport.EventNotification, func(data json.RawMessage) {
			var n domain.Notification
			if err := json.Unmarshal(data, &n); err != nil {
				log.Error().Err(err).Str("module", "notify").Msg("bad notification payload")
				return
			}
			c.Append(n)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
