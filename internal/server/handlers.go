package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mzelenov/backstage/internal/domain"
	"github.com/mzelenov/backstage/internal/transport"
)

type handlers struct {
	store *Store
	hub   *Hub
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"success": false, "message": msg})
}

// BearerAuth rejects requests without a token. The stub trusts any token and
// uses it as the caller's user id; real authentication is the production
// backend's job.
func BearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			fail(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}
		c.Set("user_id", token)
		c.Next()
	}
}

func (h *handlers) userID(c *gin.Context) domain.UserID {
	return domain.UserID(c.GetString("user_id"))
}

func (h *handlers) createSession(c *gin.Context) {
	var req struct {
		Title       string     `json:"title"`
		ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	scheduledAt := time.Now()
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}
	sess, err := h.store.CreateSession(req.Title, h.userID(c), scheduledAt)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	log.Info().Str("module", "server").Str("session", string(sess.ID)).Msg("session created")
	ok(c, sess)
}

func (h *handlers) getSession(c *gin.Context) {
	state, err := h.store.State(domain.SessionID(c.Param("id")))
	if err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	ok(c, state)
}

func (h *handlers) joinSession(c *gin.Context) {
	var req struct {
		Username string      `json:"userName"`
		Role     domain.Role `json:"role,omitempty"`
	}
	// Body is optional; the join contract itself carries no parameters.
	_ = c.ShouldBindJSON(&req)
	if req.Username == "" {
		req.Username = "guest"
	}

	id := domain.SessionID(c.Param("id"))
	p, err := domain.NewParticipant(h.userID(c), req.Username, req.Role)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.store.AddParticipant(id, *p); err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return
	}

	h.hub.BroadcastScope(id, transport.EventParticipantJoined, transport.ParticipantJoinedPayload{
		UserID:    p.UserID,
		Username:  p.Username,
		Role:      p.Role,
		Timestamp: p.JoinedAt,
	})
	ok(c, p)
}

func (h *handlers) leaveSession(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))
	uid := h.userID(c)
	if err := h.store.RemoveParticipant(id, uid); err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	h.hub.BroadcastScope(id, transport.EventParticipantLeft, transport.ParticipantLeftPayload{
		UserID:    uid,
		Timestamp: time.Now(),
	})
	ok(c, nil)
}

func (h *handlers) startSession(c *gin.Context) {
	h.lifecycle(c, h.store.StartSession)
}

func (h *handlers) endSession(c *gin.Context) {
	h.lifecycle(c, h.store.EndSession)
}

func (h *handlers) lifecycle(c *gin.Context, call func(domain.SessionID) (*domain.Session, error)) {
	id := domain.SessionID(c.Param("id"))
	sess, err := call(id)
	if err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	h.hub.BroadcastScope(id, transport.EventSessionUpdated, sess)
	ok(c, sess)
}

func (h *handlers) muteParticipant(c *gin.Context) {
	h.setMuted(c, true)
}

func (h *handlers) unmuteParticipant(c *gin.Context) {
	h.setMuted(c, false)
}

func (h *handlers) setMuted(c *gin.Context, muted bool) {
	id := domain.SessionID(c.Param("id"))
	uid := domain.UserID(c.Param("uid"))
	if err := h.store.SetMuted(id, uid, muted); err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	h.hub.BroadcastScope(id, transport.EventParticipantMedia, transport.MediaPayload{
		UserID:    uid,
		IsMuted:   &muted,
		Timestamp: time.Now(),
	})
	ok(c, nil)
}

func (h *handlers) removeParticipant(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))
	uid := domain.UserID(c.Param("uid"))
	if err := h.store.RemoveParticipant(id, uid); err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	h.hub.BroadcastScope(id, transport.EventParticipantLeft, transport.ParticipantLeftPayload{
		UserID:    uid,
		Timestamp: time.Now(),
	})
	ok(c, nil)
}

// pushNotification lets anything poke a notification through the stub, the
// way the production backend pushes them from its own triggers.
func (h *handlers) pushNotification(c *gin.Context) {
	var req struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
		fail(c, http.StatusBadRequest, "missing or invalid title")
		return
	}
	n := domain.Notification{
		ID:        domain.NotificationID(uuid.NewString()),
		Title:     req.Title,
		Message:   req.Message,
		CreatedAt: time.Now(),
	}
	h.hub.BroadcastAll(transport.EventNotification, n)
	ok(c, n)
}
