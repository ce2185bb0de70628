package api

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the authenticated chat and speech routes.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	chat := e.Group("/chat", s.AuthMiddleware)
	chat.GET("/conversations", s.ListConversations)
	chat.GET("/conversations/:id", s.GetConversation)
	chat.DELETE("/conversations/:id", s.DeleteConversation)
	chat.POST("/conversations/:id/messages", s.SendMessage)
	chat.DELETE("/conversations/:id/messages", s.ClearMessages)
	chat.POST("/conversations/:id/abort", s.AbortMessage)
	chat.POST("/conversations/:id/quiz", s.CreateQuiz)

	sp := e.Group("/speech", s.AuthMiddleware)
	sp.POST("/synthesize", s.SynthesizeSpeech)
	sp.POST("/transcribe", s.TranscribeSpeech)
}
