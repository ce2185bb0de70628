// Package tutor is the client for the remote tutoring endpoints: the streaming chat
// endpoint and the quiz generator.
package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/tutor-chat/internal/sse"
	"github.com/vultisig/tutor-chat/internal/types"
)

const (
	chatPath = "/chat"
	quizPath = "/quiz"

	maxErrorBody = 4096
)

// Client talks to the remote tutoring endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// HistoryItem is one prior turn as the chat endpoint expects it.
type HistoryItem struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

// ChatRequest is the request body for the streaming chat endpoint.
type ChatRequest struct {
	TutorProfile string        `json:"tutorProfile"`
	Message      string        `json:"message"`
	History      []HistoryItem `json:"history"`
	Language     string        `json:"language"`
	Image        *types.Image  `json:"image,omitempty"`
}

// APIError is returned when an endpoint answers with a non-success status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tutor: status %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a new tutoring client. The HTTP client has no overall timeout
// because chat responses are long-lived streams; callers bound requests with their context.
func NewClient(baseURL, apiKey string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Open sends req to the chat endpoint and returns the response as a stream of events.
// A non-200 answer fails here with *APIError, before any event is produced.
func (c *Client) Open(ctx context.Context, req *ChatRequest) (*Stream, error) {
	if req.History == nil {
		req.History = []HistoryItem{}
	}

	resp, err := c.post(ctx, chatPath, req, sse.ContentType)
	if err != nil {
		return nil, err
	}

	return newStream(ctx, resp.Body, c.logger), nil
}

func (c *Client) post(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	return resp, nil
}
