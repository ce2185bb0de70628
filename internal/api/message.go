package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/tutor-chat/internal/service/session"
	"github.com/vultisig/tutor-chat/internal/sse"
	"github.com/vultisig/tutor-chat/internal/types"
)

// maxImageBase64 bounds an attached image, about 7.5 MB decoded.
const maxImageBase64 = 10 << 20

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	Text         string       `json:"text"`
	Image        *types.Image `json:"image,omitempty"`
	TutorProfile string       `json:"tutorProfile"`
	Language     string       `json:"language"`
}

func (r *SendMessageRequest) validate() string {
	r.Text = strings.TrimSpace(r.Text)
	if r.Text == "" && r.Image == nil {
		return "text or image is required"
	}
	if r.Image != nil {
		if r.Image.Base64 == "" || !strings.HasPrefix(r.Image.MimeType, "image/") {
			return "image must carry base64 data and an image mime type"
		}
		if len(r.Image.Base64) > maxImageBase64 {
			return "image is too large"
		}
	}
	return ""
}

// SendMessage handles POST /chat/conversations/:id/messages. The reply is streamed
// as an event stream of TextEvent updates carrying the full text so far, followed by
// one StatusEvent and the done sentinel.
func (s *Server) SendMessage(c echo.Context) error {
	id, ok := conversationID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if msg := req.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
	}

	userID := GetUserID(c)
	if !s.limiter.Allow(userID) {
		return c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many messages, slow down"})
	}
	if !s.streams.TryAcquire(1) {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "too many active replies, try again shortly"})
	}
	// Once a reply is accepted its slot is held until the reply ends, not the request.
	accepted := false
	defer func() {
		if !accepted {
			s.streams.Release(1)
		}
	}()

	ctx := c.Request().Context()
	engine := s.hub.Engine(ctx, userID, id)
	if req.TutorProfile != "" && !engine.SetTutorProfile(req.TutorProfile) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "conversation belongs to another tutor profile"})
	}
	if engine.TutorProfile() == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "tutorProfile is required for a new conversation"})
	}
	language := req.Language
	if language == "" {
		language = s.language
	}
	engine.SetLanguage(language)

	updates := make(chan session.Snapshot, 1)
	unsubscribe := engine.Subscribe(func(snap session.Snapshot) {
		if snap.ExchangeID == "" {
			return
		}
		// Keep only the newest snapshot; the text is cumulative.
		select {
		case <-updates:
		default:
		}
		updates <- snap
	})
	defer unsubscribe()

	// The reply outlives the request so that it is committed even if the client leaves.
	pending, err := engine.Begin(context.WithoutCancel(ctx), req.Text, req.Image)
	switch {
	case errors.Is(err, session.ErrBusy):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "a reply is already streaming"})
	case errors.Is(err, session.ErrClosed):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "session closed, try again"})
	case err != nil:
		s.logger.WithError(err).Error("failed to send message")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to send message"})
	}
	accepted = true
	go func() {
		<-pending.Done()
		s.streams.Release(1)
	}()

	log := s.logger.WithFields(logrus.Fields{
		"conversation_id": id,
		"exchange_id":     pending.ID,
	})

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, sse.ContentType)
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	w := sse.NewWriter(res)

	last, sent := "", false
	for {
		select {
		case snap := <-updates:
			if snap.ExchangeID != pending.ID {
				continue
			}
			text, ok := snap.ReplyText()
			if !ok || (sent && text == last) {
				continue
			}
			if err := w.WriteJSON(TextEvent{Text: text}); err != nil {
				log.WithError(err).Debug("client went away")
				return nil
			}
			last, sent = text, true

		case <-pending.Done():
			ex := pending.Wait()
			if ex.Text != "" && ex.Text != last {
				if err := w.WriteJSON(TextEvent{Text: ex.Text}); err != nil {
					return nil
				}
			}
			status := StatusEvent{Status: ex.Status.String(), ExchangeID: ex.ID}
			if ex.Err != nil {
				status.Error = ex.Err.Error()
			}
			if err := w.WriteJSON(status); err != nil {
				return nil
			}
			return w.WriteDone()

		case <-ctx.Done():
			log.Debug("client disconnected, reply continues in background")
			return nil
		}
	}
}

// AbortMessage stops the reply streaming in a conversation. Text received so far is
// kept in the session but not committed.
func (s *Server) AbortMessage(c echo.Context) error {
	id, ok := conversationID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
	}

	if engine, live := s.hub.Lookup(GetUserID(c), id); live {
		engine.Abort()
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// ClearMessages empties the session's message list without touching the stored
// transcript.
func (s *Server) ClearMessages(c echo.Context) error {
	id, ok := conversationID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
	}

	s.hub.Engine(c.Request().Context(), GetUserID(c), id).ClearMessages()
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}
