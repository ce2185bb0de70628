package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vultisig/tutor-chat/internal/types"
)

const maxConversationIDLen = 128

func conversationID(c echo.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" || len(id) > maxConversationIDLen {
		return "", false
	}
	return id, true
}

// ListConversations returns the user's conversations, newest first. The optional q
// query parameter filters by title and message text.
func (s *Server) ListConversations(c echo.Context) error {
	summaries := s.hub.Store(GetUserID(c)).Search(c.Request().Context(), c.QueryParam("q"))
	return c.JSON(http.StatusOK, ListConversationsResponse{
		Conversations: summaries,
		TotalCount:    len(summaries),
	})
}

// GetConversation returns a conversation with its messages. A conversation with a
// live session is served from memory, including an in-flight reply.
func (s *Server) GetConversation(c echo.Context) error {
	id, ok := conversationID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
	}
	userID := GetUserID(c)

	conv, found := s.hub.Store(userID).Load(c.Request().Context(), id)
	resp := ConversationResponse{Conversation: conv}

	if engine, live := s.hub.Lookup(userID, id); live {
		snap := engine.Snapshot()
		if !found && len(snap.Messages) == 0 {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		}
		if !found {
			conv = &types.Conversation{ID: id}
		}
		conv.TutorProfile = snap.TutorProfile
		conv.Messages = snap.Messages
		conv.Title = types.DeriveTitle(snap.Messages)
		resp = ConversationResponse{Conversation: conv, Streaming: snap.Streaming()}
	} else if !found {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
	}

	if resp.Messages == nil {
		resp.Messages = []types.Message{}
	}
	return c.JSON(http.StatusOK, resp)
}

// DeleteConversation removes a conversation. Removing an unknown id succeeds.
func (s *Server) DeleteConversation(c echo.Context) error {
	id, ok := conversationID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
	}

	s.hub.Remove(c.Request().Context(), GetUserID(c), id)
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}
