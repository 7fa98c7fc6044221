package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mzelenov/backstage/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, store *Store, hub *Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{store: store, hub: hub}

	api := r.Group("/api", BearerAuth())

	api.POST("/sessions", h.createSession)
	api.GET("/sessions/:id", h.getSession)
	api.POST("/sessions/:id/join", h.joinSession)
	api.POST("/sessions/:id/leave", h.leaveSession)
	api.POST("/sessions/:id/start", h.startSession)
	api.POST("/sessions/:id/end", h.endSession)
	api.POST("/sessions/:id/participants/:uid/mute", h.muteParticipant)
	api.POST("/sessions/:id/participants/:uid/unmute", h.unmuteParticipant)
	api.DELETE("/sessions/:id/participants/:uid", h.removeParticipant)
	api.POST("/notifications", h.pushNotification)

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "server").Msg("ws endpoint hit")
		hub.HandleWS(ctx, store, c)
	})

	return r
}
