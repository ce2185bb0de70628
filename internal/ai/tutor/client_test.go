package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/tutor-chat/internal/types"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func collect(t *testing.T, s *Stream) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := s.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func streamServer(t *testing.T, chunks ...string) (*httptest.Server, *ChatRequest) {
	t.Helper()
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, chatPath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = io.WriteString(w, c)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestOpenStreamsDeltasUntilSentinel(t *testing.T) {
	srv, got := streamServer(t,
		"data: {\"text\":\"Hel\"}\n\ndata: {\"te",
		"xt\":\"lo\"}\n\ndata: [DO",
		"NE]\n\ndata: {\"text\":\"ignored\"}\n\n",
	)
	c := NewClient(srv.URL+"/", "secret", testLogger())

	stream, err := c.Open(context.Background(), &ChatRequest{
		TutorProfile: "Maths Tutor",
		Message:      "Say hello",
		History:      []HistoryItem{{Role: "user", Text: "hi"}, {Role: "model", Text: "hey"}},
		Language:     "en",
		Image:        &types.Image{Base64: "AAAA", MimeType: "image/png"},
	})
	require.NoError(t, err)
	defer stream.Close()

	events := collect(t, stream)
	assert.Equal(t, []Event{{Type: EventDelta, Text: "Hel"}, {Type: EventDelta, Text: "lo"}}, events)

	assert.Equal(t, "Maths Tutor", got.TutorProfile)
	assert.Equal(t, "Say hello", got.Message)
	assert.Equal(t, "en", got.Language)
	assert.Len(t, got.History, 2)
	require.NotNil(t, got.Image)
	assert.Equal(t, "image/png", got.Image.MimeType)
}

func TestOpenSkipsMalformedFramesAndReportsErrors(t *testing.T) {
	srv, _ := streamServer(t,
		"data: not-json\n\n",
		"data: {\"text\":\"partial\"}\n\n",
		"data: {\"other\":1}\n\n",
		"data: {\"error\":\"rate limited\"}\n\n",
		"data: {\"text\":\" more\"}\n\n",
	)
	c := NewClient(srv.URL, "secret", testLogger())

	stream, err := c.Open(context.Background(), &ChatRequest{Message: "x"})
	require.NoError(t, err)
	defer stream.Close()

	// No sentinel: the connection closing ends the stream.
	events := collect(t, stream)
	assert.Equal(t, []Event{
		{Type: EventDelta, Text: "partial"},
		{Type: EventError, Text: "rate limited"},
		{Type: EventDelta, Text: " more"},
	}, events)
}

func TestOpenUnterminatedTrailingFrame(t *testing.T) {
	srv, _ := streamServer(t, "data: {\"text\":\"a\"}\n\ndata: {\"text\":\"b\"}")
	c := NewClient(srv.URL, "secret", testLogger())

	stream, err := c.Open(context.Background(), &ChatRequest{Message: "x"})
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, []Event{{Type: EventDelta, Text: "a"}, {Type: EventDelta, Text: "b"}}, collect(t, stream))
}

func TestOpenNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", testLogger())
	stream, err := c.Open(context.Background(), &ChatRequest{Message: "x"})
	require.Error(t, err)
	assert.Nil(t, stream)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "upstream overloaded", apiErr.Body)
}

func TestStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"text\":\"first\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(srv.URL, "", testLogger())
	stream, err := c.Open(ctx, &ChatRequest{Message: "x"})
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", ev.Text)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = stream.Next()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateQuiz(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, quizPath, r.URL.Path)
		var req QuizRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "fractions", req.Topic)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"title":"Fractions","questions":[{"question":"1/2+1/2?","options":["1","2"],"correctIndex":0}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", testLogger())
	quiz, err := c.GenerateQuiz(context.Background(), &QuizRequest{TutorProfile: "Maths", Topic: "fractions", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "Fractions", quiz.Title)
	require.Len(t, quiz.Questions, 1)
	assert.Equal(t, []string{"1", "2"}, quiz.Questions[0].Options)
}

func TestGenerateQuizRejectsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"title":"Bad","questions":[{"question":"?","options":["a"],"correctIndex":3}]}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", testLogger()).GenerateQuiz(context.Background(), &QuizRequest{Topic: "x"})
	assert.ErrorIs(t, err, ErrInvalidQuiz)
}

func TestBuildHistory(t *testing.T) {
	quiz := &types.Quiz{Title: "Q", Questions: []types.QuizQuestion{{Question: "a?", Options: []string{"x"}}}}
	history := BuildHistory([]types.Message{
		{Role: types.RoleUser, Text: "hello"},
		{Role: types.RoleAssistant, Text: "hi there"},
		{Role: types.RoleUser, Image: &types.Image{Base64: "AAAA"}},
		{Role: types.RoleAssistant, Quiz: quiz},
		{Role: types.RoleAssistant, Text: ""},
	})

	assert.Equal(t, []HistoryItem{
		{Role: "user", Text: "hello"},
		{Role: "model", Text: "hi there"},
		{Role: "user", Text: types.ImagePlaceholder},
		{Role: "model", Text: quiz.String()},
	}, history)
}
