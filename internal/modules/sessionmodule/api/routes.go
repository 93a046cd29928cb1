package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the session module endpoints.
//
// Endpoints:
//   - GET /ws/session - Live session websocket (optional ?session_id=)
//   - GET /ws/video - Same protocol, kept for recorder clients
//   - GET /api/v1/recordings - Stored artifacts of one owner
//   - GET /api/v1/sessions - Recent session records
//   - GET /api/v1/sessions/:id/feedback - Persisted feedback segments
//   - GET /api/v1/active-sessions - Live session ids
func RegisterRoutes(router *gin.Engine, handler *Handler) {
	ws := router.Group("/ws")
	{
		ws.GET("/session", handler.HandleSession)
		ws.GET("/video", handler.HandleSession)
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/recordings", handler.ListRecordings)
		v1.GET("/sessions", handler.ListSessions)
		v1.GET("/sessions/:id/feedback", handler.GetSessionFeedback)
		v1.GET("/active-sessions", handler.ListActiveSessions)
	}
}
