package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	mw "github.com/skorenev/marketplace/internal/middleware"
	"github.com/skorenev/marketplace/internal/tokens"
)

type Deps struct {
	AuthHandler *AuthHandler
	Codec       *tokens.Codec

	Redis           *redis.Client
	RateLimitWindow time.Duration
	RateLimitMax    int
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	auth := e.Group("/api/auth", mw.RateLimit(d.Redis, d.RateLimitWindow, d.RateLimitMax))

	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.Logout)

	auth.GET("/google", d.AuthHandler.GoogleRedirect)
	auth.GET("/google/callback", d.AuthHandler.GoogleCallback)
	auth.POST("/google/callback", d.AuthHandler.GoogleCallback)

	authed := auth.Group("", mw.RequireAuth(d.Codec))
	authed.POST("/logout-all", d.AuthHandler.LogoutAll)
	authed.GET("/me", d.AuthHandler.Me)
}
