package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vultisig/tutor-chat/internal/types"
)

// ErrInvalidQuiz is returned when the quiz endpoint answers with an unusable quiz.
var ErrInvalidQuiz = errors.New("invalid quiz")

// QuizRequest is the request body for the quiz endpoint.
type QuizRequest struct {
	TutorProfile string `json:"tutorProfile"`
	Topic        string `json:"topic"`
	Language     string `json:"language"`
}

// GenerateQuiz asks the quiz endpoint for a multiple-choice quiz on a topic.
func (c *Client) GenerateQuiz(ctx context.Context, req *QuizRequest) (*types.Quiz, error) {
	resp, err := c.post(ctx, quizPath, req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var quiz types.Quiz
	if err := json.NewDecoder(resp.Body).Decode(&quiz); err != nil {
		return nil, fmt.Errorf("decode quiz: %w", err)
	}
	if err := validateQuiz(&quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

func validateQuiz(q *types.Quiz) error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidQuiz)
	}
	for i, qq := range q.Questions {
		if len(qq.Options) == 0 {
			return fmt.Errorf("%w: question %d has no options", ErrInvalidQuiz, i+1)
		}
		if qq.CorrectIndex < 0 || qq.CorrectIndex >= len(qq.Options) {
			return fmt.Errorf("%w: question %d correct index %d out of range", ErrInvalidQuiz, i+1, qq.CorrectIndex)
		}
	}
	return nil
}
