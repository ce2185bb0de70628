package quiz

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/tutor-chat/internal/ai/tutor"
	"github.com/vultisig/tutor-chat/internal/storage"
	"github.com/vultisig/tutor-chat/internal/types"
)

type fakeGenerator struct {
	calls int
	err   error
}

func (g *fakeGenerator) GenerateQuiz(_ context.Context, req *tutor.QuizRequest) (*types.Quiz, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &types.Quiz{Title: req.Topic, Questions: []types.QuizQuestion{
		{Question: "Q1", Options: []string{"a", "b"}, CorrectIndex: 1},
	}}, nil
}

type mapCache struct {
	mu     sync.Mutex
	values map[string]string
}

func (c *mapCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (c *mapCache) SetWithTTL(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestGenerateCachesInMemory(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	s := NewService(gen, nil, time.Hour, quietLogger(), nil)

	q1, err := s.Generate(ctx, "Maths", "Fractions", "en")
	require.NoError(t, err)
	q2, err := s.Generate(ctx, "maths", " fractions ", "EN")
	require.NoError(t, err)

	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, q1, q2)

	// Callers get independent copies.
	q1.Questions[0].Options[0] = "changed"
	q3, err := s.Generate(ctx, "Maths", "Fractions", "en")
	require.NoError(t, err)
	assert.Equal(t, "a", q3.Questions[0].Options[0])
}

func TestGenerateExpiresAndUsesSharedCache(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	cache := &mapCache{values: map[string]string{}}
	now := time.Unix(1_700_000_000, 0)

	s := NewService(gen, cache, time.Minute, quietLogger(), nil)
	s.now = func() time.Time { return now }

	_, err := s.Generate(ctx, "Maths", "Fractions", "en")
	require.NoError(t, err)
	assert.Len(t, cache.values, 1)

	// A second instance sharing the cache does not call the generator.
	other := NewService(gen, cache, time.Minute, quietLogger(), nil)
	q, err := other.Generate(ctx, "Maths", "Fractions", "en")
	require.NoError(t, err)
	assert.Equal(t, "Fractions", q.Title)
	assert.Equal(t, 1, gen.calls)

	// Memory entries expire; the shared cache still answers.
	now = now.Add(2 * time.Minute)
	_, err = s.Generate(ctx, "Maths", "Fractions", "en")
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)
}

func TestGenerateErrors(t *testing.T) {
	ctx := context.Background()
	s := NewService(&fakeGenerator{err: errors.New("upstream down")}, nil, time.Hour, quietLogger(), nil)

	_, err := s.Generate(ctx, "Maths", "  ", "en")
	assert.ErrorIs(t, err, ErrEmptyTopic)

	_, err = s.Generate(ctx, "Maths", "Fractions", "en")
	assert.ErrorContains(t, err, "upstream down")
}

func TestAsMessage(t *testing.T) {
	q := &types.Quiz{Title: "T"}
	m := AsMessage(q)
	assert.Equal(t, types.RoleAssistant, m.Role)
	assert.Same(t, q, m.Quiz)
}
