package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/listing-market/internal/handler"
	"github.com/iliyamo/listing-market/internal/middleware"
	"github.com/iliyamo/listing-market/internal/model"
)

// RegisterRoutes registers routes that do not belong to a feature group.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers the credential endpoints under /api/auth.
// Endpoints that accept a password or a code go through limit; /me needs a
// live access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, requireAuth, limit echo.MiddlewareFunc) {
	g := e.Group("/api/auth")

	g.GET("/me", a.Me, requireAuth, middleware.RequireRole(model.RoleAdmin, model.RoleCustomer, model.RoleAgent))

	g.POST("/register", a.Register, limit)
	g.POST("/login", a.Login, limit)
	g.POST("/logout", a.Logout)
	g.POST("/loginwithtoken", a.LoginWithToken, limit)
	g.GET("/refresh", a.Refresh)

	g.POST("/verification/send", a.SendVerifyCode, limit)
	g.POST("/verification/verify", a.VerifyAccount, limit)
	g.GET("/verification/challenge/:auth_challenge_id", a.VerifyChallenge, limit)
	g.POST("/forgot-password", a.ForgotPassword, limit)
	g.POST("/reset-password", a.ResetPassword, limit)
}

// RegisterRealtime mounts the comment WebSocket gateway.
func RegisterRealtime(e *echo.Echo, gateway http.Handler) {
	e.GET("/ws/comments", echo.WrapHandler(gateway))
}
