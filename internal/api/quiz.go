package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vultisig/tutor-chat/internal/service/quiz"
	"github.com/vultisig/tutor-chat/internal/service/session"
)

// CreateQuizRequest is the request body for generating a quiz.
type CreateQuizRequest struct {
	Topic        string `json:"topic"`
	TutorProfile string `json:"tutorProfile"`
	Language     string `json:"language"`
}

// CreateQuiz generates a quiz on a topic and appends it to the conversation as an
// assistant message.
func (s *Server) CreateQuiz(c echo.Context) error {
	id, ok := conversationID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
	}

	var req CreateQuizRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	ctx := c.Request().Context()
	engine := s.hub.Engine(ctx, GetUserID(c), id)
	if req.TutorProfile != "" && !engine.SetTutorProfile(req.TutorProfile) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "conversation belongs to another tutor profile"})
	}
	profile := engine.TutorProfile()
	if profile == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "tutorProfile is required for a new conversation"})
	}
	language := req.Language
	if language == "" {
		language = s.language
	}

	q, err := s.quizService.Generate(ctx, profile, req.Topic, language)
	if err != nil {
		if errors.Is(err, quiz.ErrEmptyTopic) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
		s.logger.WithError(err).WithField("conversation_id", id).Error("failed to generate quiz")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "failed to generate quiz"})
	}

	msg := quiz.AsMessage(q)
	status, err := engine.AppendMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, session.ErrClosed) {
			return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "session closed, try again"})
		}
		s.logger.WithError(err).Error("failed to append quiz")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to append quiz"})
	}

	return c.JSON(http.StatusCreated, AppendResponse{Message: msg, Status: status.String()})
}
