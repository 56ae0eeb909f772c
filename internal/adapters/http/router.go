package http

import (
	"context"

	"github.com/dkeye/Collab/internal/adapters/signal"
	"github.com/dkeye/Collab/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func SignalOptions(cfg *config.Config) signal.Options {
	return signal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		SendBuffer:     cfg.SendBuffer,
		TypingLimit:    cfg.TypingLimit,
		TypingInterval: cfg.TypingInterval,
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, h *Handlers) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
		log.Warn().Str("module", "adapters.http").Msg("no session secret configured, sessions will not survive restarts")
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())
	r.Use(IdentityMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.GET("/health", h.health)

	api.GET("/session", whoami)
	api.DELETE("/session", logout)
	if cfg.Mode == "debug" {
		api.POST("/session", login)
	}

	api.POST("/projects", RequireUser(), h.createProject)
	api.GET("/projects/:id", h.getProject)
	api.GET("/projects/:id/description", h.getDescription)
	api.PUT("/projects/:id/description", h.putDescription)
	api.GET("/projects/:id/comments", h.listComments)
	api.POST("/projects/:id/comments", RequireUser(), h.postComment)

	ctrl := signal.NewSignalWSController(h.Orch, SignalOptions(cfg))
	api.GET("/ws", func(c *gin.Context) {
		user, _ := CurrentUser(c)
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c, user)
	})

	return r
}
