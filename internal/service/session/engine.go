// Package session runs chat conversations: it keeps the working copy of the active
// conversation, streams assistant replies into it and commits finished exchanges to
// the conversation store.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/tutor-chat/internal/ai/tutor"
	"github.com/vultisig/tutor-chat/internal/metrics"
	"github.com/vultisig/tutor-chat/internal/types"
)

const (
	// FallbackReply replaces an assistant placeholder that received no text before the
	// exchange failed.
	FallbackReply = "Sorry, something went wrong. Please try again."

	errorSuffixFormat = "\n\n[Error: %s]"
)

var (
	// ErrBusy is returned by SendMessage while a reply is still streaming.
	ErrBusy = errors.New("a reply is already streaming")
	// ErrNoConversation is returned when no conversation is loaded.
	ErrNoConversation = errors.New("no conversation loaded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// Stream is an open chat response.
type Stream interface {
	Next() (tutor.Event, error)
	Close() error
}

// Transport opens chat responses.
type Transport interface {
	Open(ctx context.Context, req *tutor.ChatRequest) (Stream, error)
}

// Store persists conversation transcripts.
type Store interface {
	Commit(ctx context.Context, id string, messages []types.Message, tutorProfile string) error
	Load(ctx context.Context, id string) (*types.Conversation, bool)
}

type clientTransport struct {
	client *tutor.Client
}

// NewTransport adapts a tutor client to Transport.
func NewTransport(c *tutor.Client) Transport {
	return clientTransport{client: c}
}

func (t clientTransport) Open(ctx context.Context, req *tutor.ChatRequest) (Stream, error) {
	s, err := t.client.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Engine drives one active conversation at a time.
//
// Lock order is commitMu, then mu. Subscribers are called with notifyMu held and must
// not call back into the Engine.
type Engine struct {
	store     Store
	transport Transport
	logger    *logrus.Logger
	metrics   *metrics.Metrics

	commitMu sync.Mutex

	mu           sync.Mutex
	convID       string
	tutorProfile string
	language     string
	messages     []types.Message
	state        State
	reply        int
	exchangeID   string
	cancel       context.CancelFunc
	generation   uint64
	version      uint64
	closed       bool

	notifyMu      sync.Mutex
	published     uint64
	subscribers   map[int]func(Snapshot)
	nextSubscribe int
}

// Options configures an Engine.
type Options struct {
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
	Language string
}

// NewEngine creates an Engine with no conversation loaded.
func NewEngine(store Store, transport Transport, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		store:       store,
		transport:   transport,
		logger:      logger,
		metrics:     opts.Metrics,
		language:    opts.Language,
		subscribers: make(map[int]func(Snapshot)),
	}
}

// Load makes id the active conversation. An empty id, an unknown id and an unreadable
// store all leave the engine with an empty message list. Any in-flight stream is aborted.
func (e *Engine) Load(ctx context.Context, id string) {
	var conv *types.Conversation
	if id != "" {
		conv, _ = e.store.Load(ctx, id)
	}

	e.mu.Lock()
	e.abortLocked()
	e.convID = id
	e.tutorProfile = ""
	e.messages = nil
	if conv != nil {
		e.tutorProfile = conv.TutorProfile
		e.messages = conv.Messages
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)
}

// SetTutorProfile sets the counterpart of the active conversation. It has no effect
// once the conversation has a profile; it reports whether the profile was applied.
func (e *Engine) SetTutorProfile(profile string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tutorProfile != "" {
		return e.tutorProfile == profile
	}
	e.tutorProfile = profile
	return true
}

// SetLanguage sets the language requested for replies.
func (e *Engine) SetLanguage(language string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.language = language
}

// SendMessage appends the user's message and an assistant placeholder, streams the
// reply into the placeholder and commits the exchange. It blocks until the exchange
// ends. The returned error is only set when the message was not accepted (ErrBusy,
// ErrNoConversation, ErrClosed); the outcome of an accepted exchange is reported in
// the Exchange.
func (e *Engine) SendMessage(ctx context.Context, text string, image *types.Image) (*Exchange, error) {
	p, err := e.Begin(ctx, text, image)
	if err != nil {
		return nil, err
	}
	return p.Wait(), nil
}

// Pending is an accepted exchange whose reply is still streaming.
type Pending struct {
	ID   string
	done chan struct{}
	ex   *Exchange
}

// Done is closed when the exchange has ended.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the exchange ends and returns its outcome.
func (p *Pending) Wait() *Exchange {
	<-p.done
	return p.ex
}

// Begin accepts a message like SendMessage but streams the reply in the background.
func (e *Engine) Begin(ctx context.Context, text string, image *types.Image) (*Pending, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if e.convID == "" {
		e.mu.Unlock()
		return nil, ErrNoConversation
	}
	if e.state != StateIdle {
		e.mu.Unlock()
		return nil, ErrBusy
	}

	history := tutor.BuildHistory(e.messages)
	user := types.Message{Role: types.RoleUser, Text: text}
	if image != nil {
		img := *image
		user.Image = &img
	}
	e.messages = append(e.messages, user, types.Message{Role: types.RoleAssistant})

	ex := &Exchange{
		ID:             uuid.NewString(),
		ConversationID: e.convID,
		placeholder:    len(e.messages) - 1,
		started:        time.Now(),
	}
	streamCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.generation++
	ex.generation = e.generation
	e.state = StateAwaitingFirstByte
	e.reply = ex.placeholder
	e.exchangeID = ex.ID

	req := &tutor.ChatRequest{
		TutorProfile: e.tutorProfile,
		Message:      text,
		History:      history,
		Language:     e.language,
		Image:        user.Image,
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)
	e.metrics.StreamStarted()

	log := e.logger.WithFields(logrus.Fields{
		"conversation_id": ex.ConversationID,
		"exchange_id":     ex.ID,
		"tutor_profile":   req.TutorProfile,
	})
	log.Debug("exchange started")

	p := &Pending{ID: ex.ID, done: make(chan struct{}), ex: ex}
	go func() {
		defer close(p.done)

		e.run(streamCtx, ex, req, log)
		cancel()

		e.metrics.StreamFinished(ex.Status.String(), time.Since(ex.started))
		fields := logrus.Fields{"status": ex.Status.String(), "chars": len(ex.Text)}
		switch ex.Status {
		case StatusPersisted, StatusAborted:
			log.WithFields(fields).Info("exchange finished")
		default:
			log.WithFields(fields).WithError(ex.Err).Warn("exchange finished")
		}
	}()
	return p, nil
}

func (e *Engine) run(ctx context.Context, ex *Exchange, req *tutor.ChatRequest, log *logrus.Entry) {
	stream, err := e.transport.Open(ctx, req)
	if err != nil {
		e.fail(ex, fmt.Errorf("open stream: %w", err))
		return
	}
	defer stream.Close()

	var buf strings.Builder
	first := true
	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			e.fail(ex, fmt.Errorf("read stream: %w", err))
			return
		}
		if first {
			first = false
			e.metrics.FirstEvent(time.Since(ex.started))
		}

		switch ev.Type {
		case tutor.EventDelta:
			buf.WriteString(ev.Text)
			e.metrics.Delta()
		case tutor.EventError:
			fmt.Fprintf(&buf, errorSuffixFormat, ev.Text)
			e.metrics.ServerError()
			log.WithField("server_error", ev.Text).Warn("error event in stream")
		default:
			continue
		}

		if !e.apply(ex, buf.String()) {
			ex.Status = StatusAborted
			ex.Text = buf.String()
			return
		}
	}

	e.finish(ex, buf.String())
}

// apply replaces the placeholder text with the accumulated reply. It returns false
// when the exchange has been aborted.
func (e *Engine) apply(ex *Exchange, text string) bool {
	e.mu.Lock()
	if e.generation != ex.generation || e.state == StateIdle {
		e.mu.Unlock()
		return false
	}
	e.messages[ex.placeholder].Text = text
	e.state = StateStreaming
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)
	return true
}

// fail ends an exchange whose transport broke. An aborted exchange is left untouched.
func (e *Engine) fail(ex *Exchange, err error) {
	e.mu.Lock()
	if e.generation != ex.generation || e.state == StateIdle {
		e.mu.Unlock()
		ex.Status = StatusAborted
		return
	}
	if e.messages[ex.placeholder].Text == "" {
		e.messages[ex.placeholder].Text = FallbackReply
	}
	ex.Text = e.messages[ex.placeholder].Text
	e.state = StateIdle
	e.cancel = nil
	snap := e.snapshotLocked()
	e.mu.Unlock()

	ex.Status = StatusSendFailed
	ex.Err = err
	e.publish(snap)
}

// finish commits a completed exchange.
func (e *Engine) finish(ex *Exchange, text string) {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.mu.Lock()
	if e.generation != ex.generation || e.state == StateIdle {
		e.mu.Unlock()
		ex.Status = StatusAborted
		ex.Text = text
		return
	}
	e.messages[ex.placeholder].Text = text
	e.state = StateIdle
	e.cancel = nil
	id, profile := e.convID, e.tutorProfile
	final := types.CloneMessages(e.messages)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	ex.Text = text
	e.publish(snap)

	// The exchange is complete even if the caller has gone away.
	err := e.store.Commit(context.Background(), id, final, profile)
	e.metrics.Commit(err)
	if err != nil {
		ex.Status = StatusPersistFailed
		ex.Err = err
		return
	}
	ex.Status = StatusPersisted
}

// AppendMessage appends content produced outside the chat stream, such as a generated
// quiz, and commits the whole list. It may run while a reply is streaming. A failed
// commit leaves the message in memory and is reported as StatusPersistFailed.
func (e *Engine) AppendMessage(ctx context.Context, msg types.Message) (ExchangeStatus, error) {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, ErrClosed
	}
	if e.convID == "" {
		e.mu.Unlock()
		return 0, ErrNoConversation
	}
	e.messages = append(e.messages, msg.Clone())
	id, profile := e.convID, e.tutorProfile
	all := types.CloneMessages(e.messages)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)

	err := e.store.Commit(context.WithoutCancel(ctx), id, all, profile)
	e.metrics.Commit(err)
	if err != nil {
		e.logger.WithError(err).WithField("conversation_id", id).Warn("persistence skipped")
		return StatusPersistFailed, nil
	}
	return StatusPersisted, nil
}

// ClearMessages empties the in-memory list without touching the store. Any in-flight
// stream is aborted.
func (e *Engine) ClearMessages() {
	e.mu.Lock()
	e.abortLocked()
	e.messages = nil
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)
}

// Abort stops the in-flight stream, if any. Text streamed so far stays visible and
// the exchange is not committed.
func (e *Engine) Abort() {
	e.mu.Lock()
	aborted := e.abortLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if aborted {
		e.publish(snap)
	}
}

func (e *Engine) abortLocked() bool {
	if e.state == StateIdle {
		return false
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.generation++
	e.state = StateIdle
	return true
}

// Close aborts any stream and detaches all subscribers. The engine rejects further sends.
// It waits for a commit in progress, so no commit from this engine follows it.
func (e *Engine) Close() {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.mu.Lock()
	e.abortLocked()
	e.closed = true
	e.mu.Unlock()

	e.notifyMu.Lock()
	e.subscribers = make(map[int]func(Snapshot))
	e.notifyMu.Unlock()
}

// Messages returns a copy of the current message list.
func (e *Engine) Messages() []types.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.CloneMessages(e.messages)
}

// IsStreaming reports whether a reply is in flight.
func (e *Engine) IsStreaming() bool {
	return e.State() != StateIdle
}

// State returns the streaming state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ConversationID returns the active conversation id, empty when none is loaded.
func (e *Engine) ConversationID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.convID
}

// TutorProfile returns the counterpart of the active conversation.
func (e *Engine) TutorProfile() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tutorProfile
}

// Snapshot returns the current view of the engine.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every change, in order. Stale
// snapshots are never delivered after newer ones. The returned func unsubscribes.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	id := e.nextSubscribe
	e.nextSubscribe++
	e.subscribers[id] = fn
	return func() {
		e.notifyMu.Lock()
		defer e.notifyMu.Unlock()
		delete(e.subscribers, id)
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	e.version++
	reply, exchangeID := -1, ""
	if e.state != StateIdle {
		reply, exchangeID = e.reply, e.exchangeID
	}
	return Snapshot{
		Reply:          reply,
		ExchangeID:     exchangeID,
		Version:        e.version,
		ConversationID: e.convID,
		TutorProfile:   e.tutorProfile,
		Messages:       types.CloneMessages(e.messages),
		State:          e.state,
	}
}

func (e *Engine) publish(s Snapshot) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	if s.Version <= e.published {
		return
	}
	e.published = s.Version
	for _, fn := range e.subscribers {
		fn(s)
	}
}
