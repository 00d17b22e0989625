package server

import (
	"github.com/labstack/echo/v4"
)

func (s *Server) SetupRoutes(operatorMiddleware echo.MiddlewareFunc) {
	e := s.Echo
	e.GET("/api/health", s.HealthHandler.Health)

	auth := e.Group("/api/auth")
	{
		auth.POST("/login", s.AuthHandler.Login)
	}

	// Visitor and admin share one API; handlers decide what needs an operator.
	chat := e.Group(s.Config.Server.BasePath, operatorMiddleware)
	limited := s.limited()
	{
		chat.POST("/sessions", s.ChatHandler.CreateSession, limited...)
		chat.GET("/sessions", s.ChatHandler.ListSessions)
		chat.GET("/sessions/:id", s.ChatHandler.GetSession)
		chat.PATCH("/sessions/:id", s.ChatHandler.UpdateSession)
		chat.GET("/sessions/:id/messages", s.ChatHandler.ListMessages)
		chat.POST("/sessions/:id/messages", s.ChatHandler.SendMessage, limited...)
		chat.GET("/sessions/:id/stream", s.StreamHandler.Stream)
		chat.GET("/sessions/:id/viewers", s.StreamHandler.Viewers)
	}
}

func (s *Server) limited() []echo.MiddlewareFunc {
	if s.rateLimit == nil {
		return nil
	}
	return []echo.MiddlewareFunc{s.rateLimit}
}
