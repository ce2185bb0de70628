package session

import (
	"time"

	"github.com/vultisig/tutor-chat/internal/types"
)

// State is the streaming state of an Engine.
type State int

const (
	StateIdle State = iota
	StateAwaitingFirstByte
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFirstByte:
		return "awaiting_first_byte"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// ExchangeStatus is the outcome of an exchange. The optimistic messages are in memory
// whatever the status; the status says what happened to them afterwards.
type ExchangeStatus int

const (
	// StatusPersisted means the exchange completed and was committed to the store.
	StatusPersisted ExchangeStatus = iota + 1
	// StatusPersistFailed means the exchange completed but the store rejected it.
	StatusPersistFailed
	// StatusSendFailed means the transport failed; nothing was committed.
	StatusSendFailed
	// StatusAborted means the stream was cancelled; nothing was committed.
	StatusAborted
)

func (s ExchangeStatus) String() string {
	switch s {
	case StatusPersisted:
		return "persisted"
	case StatusPersistFailed:
		return "persist_failed"
	case StatusSendFailed:
		return "send_failed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name.
func (s ExchangeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Exchange describes one SendMessage call.
type Exchange struct {
	ID             string
	ConversationID string
	Status         ExchangeStatus
	// Text is the assistant text at the end of the exchange.
	Text string
	// Err is the transport or store error behind StatusSendFailed and StatusPersistFailed.
	Err error

	placeholder int
	generation  uint64
	started     time.Time
}

// Snapshot is a consistent view of an Engine. While a reply streams, Reply is the
// index of its assistant message and ExchangeID names the exchange; otherwise they
// are -1 and empty.
type Snapshot struct {
	Version        uint64
	ConversationID string
	TutorProfile   string
	Messages       []types.Message
	State          State
	Reply          int
	ExchangeID     string
}

// Streaming reports whether a reply was in flight when the snapshot was taken.
func (s Snapshot) Streaming() bool {
	return s.State != StateIdle
}

// ReplyText returns the text of the assistant message being streamed.
func (s Snapshot) ReplyText() (string, bool) {
	if s.Reply < 0 || s.Reply >= len(s.Messages) {
		return "", false
	}
	return s.Messages[s.Reply].Text, true
}

// LastAssistantText returns the text of the trailing assistant message, if any.
func (s Snapshot) LastAssistantText() string {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].Role == types.RoleAssistant {
		return s.Messages[n-1].Text
	}
	return ""
}
