package api

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/vultisig/tutor-chat/internal/service"
	"github.com/vultisig/tutor-chat/internal/service/quiz"
	"github.com/vultisig/tutor-chat/internal/service/session"
	"github.com/vultisig/tutor-chat/internal/speech"
)

// Server holds API dependencies.
type Server struct {
	authService *service.AuthService
	hub         *session.Hub
	quizService *quiz.Service
	synthesizer speech.Synthesizer
	transcriber speech.Transcriber
	limiter     *userLimiter
	streams     *semaphore.Weighted
	language    string
	logger      *logrus.Logger
}

// Options configures optional Server behaviour.
type Options struct {
	// Synthesizer backs /speech/synthesize. Nil disables the endpoint.
	Synthesizer speech.Synthesizer
	// Transcriber backs /speech/transcribe. Nil disables the endpoint.
	Transcriber speech.Transcriber
	// DefaultLanguage is requested for replies when a send does not name one.
	DefaultLanguage string
	// MaxStreams bounds the replies streaming at once across all users.
	MaxStreams int64
	// SendRate and SendBurst limit sends per user.
	SendRate  float64
	SendBurst int
}

// NewServer creates a new API server.
func NewServer(authService *service.AuthService, hub *session.Hub, quizService *quiz.Service, logger *logrus.Logger, opts Options) *Server {
	if opts.MaxStreams <= 0 {
		opts.MaxStreams = 64
	}
	if opts.SendRate <= 0 {
		opts.SendRate = 1
	}
	if opts.SendBurst <= 0 {
		opts.SendBurst = 5
	}
	return &Server{
		authService: authService,
		hub:         hub,
		quizService: quizService,
		synthesizer: opts.Synthesizer,
		transcriber: opts.Transcriber,
		limiter:     newUserLimiter(opts.SendRate, opts.SendBurst),
		streams:     semaphore.NewWeighted(opts.MaxStreams),
		language:    opts.DefaultLanguage,
		logger:      logger,
	}
}
