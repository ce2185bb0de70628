// Package conversation persists conversation transcripts through a storage backend.
//
// All conversations of one namespace live in a single record mapping conversation id to
// transcript. Reads are fail-soft: a missing or corrupt record reads as an empty store.
// Writes never carry image payloads; the encoder strips them.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/tutor-chat/internal/storage"
	"github.com/vultisig/tutor-chat/internal/types"
)

const keyPrefix = "tutorchat"

// ErrEmptyID is returned by Commit for an empty conversation id.
var ErrEmptyID = errors.New("conversation id is required")

// Store is a namespaced view over a storage backend.
type Store struct {
	backend storage.Backend
	logger  *logrus.Logger
	key     string
	mu      *sync.Mutex
	now     func() time.Time
}

// NewStore creates the store for the default namespace.
func NewStore(backend storage.Backend, logger *logrus.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		key:     recordKey("default"),
		mu:      &sync.Mutex{},
		now:     time.Now,
	}
}

// Namespace returns a view of the same backend scoped to another user namespace.
func (s *Store) Namespace(name string) *Store {
	ns := *s
	ns.key = recordKey(name)
	return &ns
}

func recordKey(namespace string) string {
	return fmt.Sprintf("%s:%s:conversations", keyPrefix, namespace)
}

// storedMessage is the persisted form of a message. It has no image field.
type storedMessage struct {
	Role     types.Role  `json:"role"`
	Text     string      `json:"text"`
	HasImage bool        `json:"hasImage,omitempty"`
	Quiz     *types.Quiz `json:"quiz,omitempty"`
}

type storedConversation struct {
	ID           string          `json:"id"`
	TutorProfile string          `json:"tutorProfile"`
	Title        string          `json:"title"`
	Messages     []storedMessage `json:"messages"`
	UpdatedAt    int64           `json:"updatedAt"`
}

func encodeMessages(ms []types.Message) []storedMessage {
	out := make([]storedMessage, len(ms))
	for i, m := range ms {
		m = m.Stripped()
		out[i] = storedMessage{Role: m.Role, Text: m.Text, HasImage: m.HasImage, Quiz: m.Quiz.Clone()}
	}
	return out
}

func (c *storedConversation) decode() *types.Conversation {
	msgs := make([]types.Message, len(c.Messages))
	for i, m := range c.Messages {
		msgs[i] = types.Message{Role: m.Role, Text: m.Text, HasImage: m.HasImage, Quiz: m.Quiz}
	}
	return &types.Conversation{
		ID:           c.ID,
		TutorProfile: c.TutorProfile,
		Title:        c.Title,
		Messages:     msgs,
		UpdatedAt:    c.UpdatedAt,
	}
}

// readAll returns the namespace record. Missing, unreadable and corrupt records all
// read as empty.
func (s *Store) readAll(ctx context.Context) map[string]*storedConversation {
	all, err := s.readForWrite(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("key", s.key).Warn("conversation store unavailable, reading as empty")
		return map[string]*storedConversation{}
	}
	return all
}

// readForWrite returns the namespace record for a read-modify-write. A missing or
// corrupt record reads as empty; any other backend error is returned so that the
// write does not replace conversations it could not see.
func (s *Store) readForWrite(ctx context.Context) (map[string]*storedConversation, error) {
	raw, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]*storedConversation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read conversations: %w", err)
	}

	var all map[string]*storedConversation
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		s.logger.WithError(err).WithField("key", s.key).Warn("corrupt conversation record, reading as empty")
		return map[string]*storedConversation{}, nil
	}
	for id, c := range all {
		if c == nil {
			delete(all, id)
		}
	}
	if all == nil {
		all = map[string]*storedConversation{}
	}
	return all, nil
}

func (s *Store) writeAll(ctx context.Context, all map[string]*storedConversation) error {
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshal conversations: %w", err)
	}
	if err := s.backend.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("write conversations: %w", err)
	}
	return nil
}

// Commit upserts the full transcript of id, recomputing its title and updatedAt.
// Prior content for id is replaced entirely.
func (s *Store) Commit(ctx context.Context, id string, messages []types.Message, tutorProfile string) error {
	if id == "" {
		return ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readForWrite(ctx)
	if err != nil {
		return err
	}
	all[id] = &storedConversation{
		ID:           id,
		TutorProfile: tutorProfile,
		Title:        types.DeriveTitle(messages),
		Messages:     encodeMessages(messages),
		UpdatedAt:    s.now().UnixMilli(),
	}
	return s.writeAll(ctx, all)
}

// Save is Commit with failures logged and swallowed: a failed save leaves the
// conversation usable in memory but it will not survive a reload.
func (s *Store) Save(ctx context.Context, id string, messages []types.Message, tutorProfile string) {
	if err := s.Commit(ctx, id, messages, tutorProfile); err != nil {
		s.logger.WithError(err).WithField("conversation_id", id).Warn("persistence skipped")
	}
}

// Load returns the conversation stored under id. The boolean is false when it does not exist.
func (s *Store) Load(ctx context.Context, id string) (*types.Conversation, bool) {
	c, ok := s.readAll(ctx)[id]
	if !ok {
		return nil, false
	}
	return c.decode(), true
}

// List returns all conversations, most recently updated first.
func (s *Store) List(ctx context.Context) []types.ConversationSummary {
	return s.Search(ctx, "")
}

// Search returns conversations whose title or message text contains query
// (case-insensitive), most recently updated first. An empty query matches everything.
func (s *Store) Search(ctx context.Context, query string) []types.ConversationSummary {
	query = strings.ToLower(strings.TrimSpace(query))

	out := []types.ConversationSummary{}
	for _, c := range s.readAll(ctx) {
		conv := c.decode()
		if query != "" && !matches(conv, query) {
			continue
		}
		out = append(out, conv.Summary())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func matches(c *types.Conversation, query string) bool {
	if strings.Contains(strings.ToLower(c.Title), query) {
		return true
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Text), query) {
			return true
		}
	}
	return false
}

// Remove deletes the conversation stored under id. Removing an unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readForWrite(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("conversation_id", id).Warn("failed to remove conversation")
		return
	}
	if _, ok := all[id]; !ok {
		return
	}
	delete(all, id)

	if len(all) == 0 {
		err = s.backend.Delete(ctx, s.key)
	} else {
		err = s.writeAll(ctx, all)
	}
	if err != nil {
		s.logger.WithError(err).WithField("conversation_id", id).Warn("failed to remove conversation")
	}
}
