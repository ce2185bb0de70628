package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, UntitledConversation, DeriveTitle(nil))
	assert.Equal(t, UntitledConversation, DeriveTitle([]Message{{Role: RoleAssistant, Text: "hi"}}))

	msgs := []Message{
		{Role: RoleAssistant, Text: "Welcome"},
		{Role: RoleUser, Text: "What is 2+2?"},
		{Role: RoleUser, Text: "second"},
	}
	assert.Equal(t, "What is 2+2?", DeriveTitle(msgs))

	long := strings.Repeat("é", 75)
	title := DeriveTitle([]Message{{Role: RoleUser, Text: long}})
	assert.Equal(t, strings.Repeat("é", TitleMaxRunes), title)
}

func TestMessageStripped(t *testing.T) {
	m := Message{Role: RoleUser, Image: &Image{Base64: "AAAA", MimeType: "image/png"}}
	s := m.Stripped()
	assert.Nil(t, s.Image)
	assert.True(t, s.HasImage)
	assert.Equal(t, ImagePlaceholder, s.Text)
	assert.NotNil(t, m.Image, "original must be untouched")

	withText := Message{Role: RoleUser, Text: "look", Image: &Image{Base64: "AAAA"}}.Stripped()
	assert.Equal(t, "look", withText.Text)
	assert.True(t, withText.HasImage)
}

func TestQuizString(t *testing.T) {
	q := &Quiz{Title: "Fractions", Questions: []QuizQuestion{
		{Question: "1/2 + 1/2?", Options: []string{"1", "2"}, CorrectIndex: 0},
	}}
	assert.Equal(t, "Quiz: Fractions\n1. 1/2 + 1/2?\n   A) 1\n   B) 2", q.String())

	c := q.Clone()
	c.Questions[0].Options[0] = "changed"
	assert.Equal(t, "1", q.Questions[0].Options[0])
}
