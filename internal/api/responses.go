package api

import "github.com/vultisig/tutor-chat/internal/types"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse represents a generic success response.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []types.ConversationSummary `json:"conversations"`
	TotalCount    int                         `json:"total_count"`
}

// ConversationResponse is a conversation together with its streaming state.
type ConversationResponse struct {
	*types.Conversation
	Streaming bool `json:"streaming"`
}

// TextEvent carries the full assistant text so far.
type TextEvent struct {
	Text string `json:"text"`
}

// StatusEvent closes a message stream with the exchange outcome.
type StatusEvent struct {
	Status     string `json:"status"`
	ExchangeID string `json:"exchangeId"`
	Error      string `json:"error,omitempty"`
}

// AppendResponse reports the outcome of appending a message outside the stream.
type AppendResponse struct {
	Message types.Message `json:"message"`
	Status  string        `json:"status"`
}
