package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vultisig/tutor-chat/internal/speech"
)

const (
	maxSpeechChars   = 5000
	maxAudioUpload   = 10 << 20
	audioReadChunk   = 32 << 10
	defaultAudioMime = "audio/mpeg"
)

// TranscriptResponse is the response for a transcription.
type TranscriptResponse struct {
	Text string `json:"text"`
}

// responseSink plays audio by writing it as the HTTP response.
type responseSink struct {
	c      echo.Context
	played bool
	err    error
}

func (r *responseSink) Play(_ context.Context, audio *speech.Audio) error {
	mimeType := audio.MimeType
	if mimeType == "" {
		mimeType = defaultAudioMime
	}
	r.played = true
	r.err = r.c.Blob(http.StatusOK, mimeType, audio.Data)
	return r.err
}

// SynthesizeSpeech renders text as audio through the speech service.
func (s *Server) SynthesizeSpeech(c echo.Context) error {
	if s.synthesizer == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "speech is not enabled"})
	}

	var req speech.SynthesisRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "text is required"})
	}
	if len([]rune(req.Text)) > maxSpeechChars {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "text is too long"})
	}
	switch req.VoiceGender {
	case "", speech.VoiceFemale, speech.VoiceMale:
	default:
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "voiceGender must be female or male"})
	}

	sink := &responseSink{c: c}
	player := speech.NewPlayer(s.synthesizer, sink, s.logger)
	player.Speak(c.Request().Context(), req.Text, req.Language, req.VoiceGender)
	player.Wait()

	if !sink.played {
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "speech synthesis failed"})
	}
	return sink.err
}

// TranscribeSpeech turns an uploaded audio clip into text. The body is the raw audio;
// the optional language query parameter is passed on as a hint.
func (s *Server) TranscribeSpeech(c echo.Context) error {
	if s.transcriber == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "speech is not enabled"})
	}

	mimeType := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(mimeType, "audio/") {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "body must be audio"})
	}

	var transcript string
	recognizer := speech.NewRecognizer(s.transcriber, mimeType, s.logger)
	if err := recognizer.StartListening(c.QueryParam("language"), func(text string) { transcript = text }); err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to start transcription"})
	}

	body := io.LimitReader(c.Request().Body, maxAudioUpload+1)
	buf := make([]byte, audioReadChunk)
	total := 0
	for {
		n, err := body.Read(buf)
		if n > 0 {
			total += n
			recognizer.Feed(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			recognizer.Cancel()
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read audio"})
		}
	}
	if total > maxAudioUpload {
		recognizer.Cancel()
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "audio is too large"})
	}
	if total == 0 {
		recognizer.Cancel()
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "audio is required"})
	}

	recognizer.StopListening()
	recognizer.Wait()

	if transcript == "" {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "no speech recognized"})
	}
	return c.JSON(http.StatusOK, TranscriptResponse{Text: transcript})
}
