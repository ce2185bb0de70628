package tutor

import "github.com/vultisig/tutor-chat/internal/types"

// Wire roles of the chat endpoint.
const (
	wireRoleUser  = "user"
	wireRoleModel = "model"
)

// BuildHistory converts a transcript into the chat endpoint's history format. Quizzes
// travel as their text rendering, images as a placeholder, and empty turns are dropped.
func BuildHistory(messages []types.Message) []HistoryItem {
	history := make([]HistoryItem, 0, len(messages))
	for _, m := range messages {
		text := m.Stripped().Text
		if m.Quiz != nil {
			text = m.Quiz.String()
		}
		if text == "" {
			continue
		}

		role := wireRoleUser
		if m.Role == types.RoleAssistant {
			role = wireRoleModel
		}
		history = append(history, HistoryItem{Role: role, Text: text})
	}
	return history
}
