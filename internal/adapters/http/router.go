package http

import (
	"context"

	"github.com/dkeye/Consult/internal/adapters/control"
	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/core"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Control *control.Controller
	Rooms   core.RoomProvider
	Devices core.Devices
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// UserMiddleware exposes the identity stored in the session cookie, if any.
func UserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		if id, ok := s.Get(sessionUserID).(string); ok {
			c.Set("user_id", id)
		}
		if name, ok := s.Get(sessionDisplayName).(string); ok {
			c.Set("display_name", name)
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ConsultSessions", store))
	r.Use(ClientTokenMiddleware())
	r.Use(UserMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}
	r.GET("/healthz", handleHealth)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{rooms: deps.Rooms, devices: deps.Devices}
	api := r.Group("/api")
	api.GET("/identity", h.getIdentity)
	api.POST("/identity", h.postIdentity)
	api.GET("/devices", h.listDevices)
	api.POST("/rooms", h.createRoom)
	api.GET("/rooms/:id", h.validateRoom)

	api.GET("/ws/control", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws control endpoint hit")
		deps.Control.HandleControl(ctx, c)
	})

	return r
}
