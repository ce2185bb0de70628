package types

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Role represents the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	// TitleMaxRunes is the length of a derived conversation title.
	TitleMaxRunes = 60
	// UntitledConversation is used until the conversation has a user message.
	UntitledConversation = "New conversation"
	// ImagePlaceholder replaces image payloads in persisted history.
	ImagePlaceholder = "[Image]"
)

// Image is a transient attachment on a user message. It is never persisted.
type Image struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
}

// QuizQuestion is one multiple-choice question.
type QuizQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

// Quiz is a structured assistant payload that replaces free text.
type Quiz struct {
	Title     string         `json:"title"`
	Questions []QuizQuestion `json:"questions"`
}

// Message is one turn in a conversation.
type Message struct {
	Role     Role   `json:"role"`
	Text     string `json:"text"`
	Image    *Image `json:"image,omitempty"`
	HasImage bool   `json:"hasImage,omitempty"`
	Quiz     *Quiz  `json:"quiz,omitempty"`
}

// Conversation is a persisted transcript.
type Conversation struct {
	ID           string    `json:"id"`
	TutorProfile string    `json:"tutorProfile"`
	Title        string    `json:"title"`
	Messages     []Message `json:"messages"`
	UpdatedAt    int64     `json:"updatedAt"`
}

// ConversationSummary is the listing view of a conversation.
type ConversationSummary struct {
	ID           string `json:"id"`
	TutorProfile string `json:"tutorProfile"`
	Title        string `json:"title"`
	UpdatedAt    int64  `json:"updatedAt"`
	MessageCount int    `json:"messageCount"`
}

// Summary returns the listing view of c.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		TutorProfile: c.TutorProfile,
		Title:        c.Title,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
	}
}

// DeriveTitle returns the first TitleMaxRunes characters of the first user message,
// or UntitledConversation when there is none.
func DeriveTitle(messages []Message) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) <= TitleMaxRunes {
			return text
		}
		return string([]rune(text)[:TitleMaxRunes])
	}
	return UntitledConversation
}

// Stripped returns a copy of m without its image payload. A user message that only
// carried an image gets ImagePlaceholder as text.
func (m Message) Stripped() Message {
	if m.Image == nil {
		return m
	}
	out := m
	out.Image = nil
	out.HasImage = true
	if out.Text == "" {
		out.Text = ImagePlaceholder
	}
	return out
}

// Clone returns a deep copy of m's mutable parts.
func (m Message) Clone() Message {
	out := m
	if m.Image != nil {
		img := *m.Image
		out.Image = &img
	}
	if m.Quiz != nil {
		out.Quiz = m.Quiz.Clone()
	}
	return out
}

// Clone returns a deep copy of q.
func (q *Quiz) Clone() *Quiz {
	if q == nil {
		return nil
	}
	out := &Quiz{Title: q.Title, Questions: make([]QuizQuestion, len(q.Questions))}
	for i, qq := range q.Questions {
		out.Questions[i] = QuizQuestion{
			Question:     qq.Question,
			Options:      append([]string(nil), qq.Options...),
			CorrectIndex: qq.CorrectIndex,
		}
	}
	return out
}

// String renders q as plain text, used when a quiz must travel as history.
func (q *Quiz) String() string {
	if q == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Quiz: ")
	b.WriteString(q.Title)
	for i, qq := range q.Questions {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(qq.Question)
		for j, opt := range qq.Options {
			b.WriteString("\n   ")
			b.WriteByte(byte('A' + j%26))
			b.WriteString(") ")
			b.WriteString(opt)
		}
	}
	return b.String()
}

// CloneMessages deep-copies a message list.
func CloneMessages(ms []Message) []Message {
	if ms == nil {
		return nil
	}
	out := make([]Message, len(ms))
	for i, m := range ms {
		out[i] = m.Clone()
	}
	return out
}
