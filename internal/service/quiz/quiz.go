// Package quiz generates topic quizzes for a conversation and caches them.
package quiz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/tutor-chat/internal/ai/tutor"
	"github.com/vultisig/tutor-chat/internal/metrics"
	"github.com/vultisig/tutor-chat/internal/types"
)

const cacheKeyPrefix = "tutorchat:quiz:"

// ErrEmptyTopic is returned when no topic is given.
var ErrEmptyTopic = errors.New("quiz topic is required")

// Generator produces quizzes.
type Generator interface {
	GenerateQuiz(ctx context.Context, req *tutor.QuizRequest) (*types.Quiz, error)
}

// Cache is a shared cache with expiring entries.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

type cachedQuiz struct {
	quiz    *types.Quiz
	expires time.Time
}

// Service generates quizzes, caching them in memory and, when configured, in a shared cache.
type Service struct {
	generator Generator
	cache     Cache
	ttl       time.Duration
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu      sync.RWMutex
	quizzes map[string]cachedQuiz
}

// NewService creates a quiz service. cache may be nil.
func NewService(generator Generator, cache Cache, ttl time.Duration, logger *logrus.Logger, m *metrics.Metrics) *Service {
	return &Service{
		generator: generator,
		cache:     cache,
		ttl:       ttl,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		quizzes:   make(map[string]cachedQuiz),
	}
}

// Generate returns a quiz on topic for the tutor profile, in the requested language.
func (s *Service) Generate(ctx context.Context, tutorProfile, topic, language string) (*types.Quiz, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	key := cacheKey(tutorProfile, topic, language)

	// Check in-memory cache first
	s.mu.RLock()
	entry, ok := s.quizzes[key]
	s.mu.RUnlock()
	if ok && s.now().Before(entry.expires) {
		s.metrics.QuizCache("memory", true)
		return entry.quiz.Clone(), nil
	}
	s.metrics.QuizCache("memory", false)

	// Try shared cache
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err == nil && cached != "" {
			var quiz types.Quiz
			if err := json.Unmarshal([]byte(cached), &quiz); err == nil && len(quiz.Questions) > 0 {
				s.metrics.QuizCache("redis", true)
				s.remember(key, &quiz)
				return quiz.Clone(), nil
			}
		}
		s.metrics.QuizCache("redis", false)
	}

	quiz, err := s.generator.GenerateQuiz(ctx, &tutor.QuizRequest{
		TutorProfile: tutorProfile,
		Topic:        topic,
		Language:     language,
	})
	if err != nil {
		return nil, fmt.Errorf("generate quiz: %w", err)
	}

	s.remember(key, quiz)
	if s.cache != nil {
		data, err := json.Marshal(quiz)
		if err == nil {
			if err := s.cache.SetWithTTL(ctx, key, string(data), s.ttl); err != nil {
				s.logger.WithError(err).Warn("failed to cache quiz")
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"tutor_profile": tutorProfile,
		"questions":     len(quiz.Questions),
	}).Debug("generated quiz")
	return quiz.Clone(), nil
}

func (s *Service) remember(key string, quiz *types.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[key] = cachedQuiz{quiz: quiz.Clone(), expires: s.now().Add(s.ttl)}
}

// AsMessage wraps a quiz as an assistant message.
func AsMessage(q *types.Quiz) types.Message {
	return types.Message{Role: types.RoleAssistant, Quiz: q}
}

func cacheKey(tutorProfile, topic, language string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(tutorProfile) + "\x00" + strings.ToLower(topic) + "\x00" + strings.ToLower(language)))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
