package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"linkshort/internal/middleware"
)

type RouterConfig struct {
	JWTSecret   string
	RateLimiter *middleware.RateLimiter
	Log         zerolog.Logger
}

// NewRouter собирает маршруты: публичный редирект и служебные ручки без
// авторизации, всё владельческое — за JWT.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(cfg.RateLimiter.Middleware())

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(cfg.JWTSecret))
	{
		api.POST("/links", h.CreateLink)
		api.GET("/links", h.ListLinks)
		api.PATCH("/links/:id", h.UpdateLink)
		api.POST("/links/:id/rotate", h.RotateLink)
		api.DELETE("/links/:id", h.DeleteLink)
		api.GET("/links/:id/stats", h.GetStats)
	}

	// Короткий код — любой другой путь первого уровня
	r.GET("/:shortCode", h.Redirect)

	return r
}
