package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/tutor-chat/internal/conversation"
	"github.com/vultisig/tutor-chat/internal/metrics"
)

type hubKey struct {
	namespace      string
	conversationID string
}

type hubEntry struct {
	engine   *Engine
	lastUsed time.Time
}

// Hub owns one Engine per (namespace, conversation) and closes idle ones.
type Hub struct {
	store     *conversation.Store
	transport Transport
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	idleTTL   time.Duration
	now       func() time.Time

	mu      sync.Mutex
	engines map[hubKey]*hubEntry
}

// NewHub creates a Hub. Engines unused for idleTTL are closed by Sweep.
func NewHub(store *conversation.Store, transport Transport, logger *logrus.Logger, m *metrics.Metrics, idleTTL time.Duration) *Hub {
	return &Hub{
		store:     store,
		transport: transport,
		logger:    logger,
		metrics:   m,
		idleTTL:   idleTTL,
		now:       time.Now,
		engines:   make(map[hubKey]*hubEntry),
	}
}

// Store returns the conversation store scoped to namespace.
func (h *Hub) Store(namespace string) *conversation.Store {
	return h.store.Namespace(namespace)
}

// Engine returns the engine of a conversation, loading it on first use. The load runs
// without the hub lock; when two callers race, the first engine stored wins.
func (h *Hub) Engine(ctx context.Context, namespace, conversationID string) *Engine {
	key := hubKey{namespace: namespace, conversationID: conversationID}

	h.mu.Lock()
	if entry, ok := h.engines[key]; ok {
		entry.lastUsed = h.now()
		h.mu.Unlock()
		return entry.engine
	}
	h.mu.Unlock()

	engine := NewEngine(h.store.Namespace(namespace), h.transport, Options{
		Logger:  h.logger,
		Metrics: h.metrics,
	})
	engine.Load(ctx, conversationID)

	h.mu.Lock()
	defer h.mu.Unlock()

	if entry, ok := h.engines[key]; ok {
		entry.lastUsed = h.now()
		engine.Close()
		return entry.engine
	}
	h.engines[key] = &hubEntry{engine: engine, lastUsed: h.now()}
	return engine
}

// Lookup returns the engine of a conversation if one is running.
func (h *Hub) Lookup(namespace, conversationID string) (*Engine, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.engines[hubKey{namespace: namespace, conversationID: conversationID}]
	if !ok {
		return nil, false
	}
	return entry.engine, true
}

// Remove closes the engine of a conversation and deletes it from the store. Closing
// waits for the engine's commit in progress, so the deletion is not undone by it.
func (h *Hub) Remove(ctx context.Context, namespace, conversationID string) {
	key := hubKey{namespace: namespace, conversationID: conversationID}

	h.mu.Lock()
	entry, ok := h.engines[key]
	delete(h.engines, key)
	h.mu.Unlock()

	if ok {
		entry.engine.Close()
	}
	h.store.Namespace(namespace).Remove(ctx, conversationID)
}

// Sweep closes engines that are idle and unused since the TTL. It returns how many
// were closed.
func (h *Hub) Sweep() int {
	cutoff := h.now().Add(-h.idleTTL)

	h.mu.Lock()
	var stale []*Engine
	for key, entry := range h.engines {
		if entry.lastUsed.After(cutoff) || entry.engine.IsStreaming() {
			continue
		}
		stale = append(stale, entry.engine)
		delete(h.engines, key)
	}
	h.mu.Unlock()

	for _, e := range stale {
		e.Close()
	}
	return len(stale)
}

// Run sweeps periodically until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := h.Sweep(); n > 0 {
				h.logger.WithField("closed", n).Debug("closed idle sessions")
			}
		}
	}
}

// Close closes every engine, aborting in-flight streams.
func (h *Hub) Close() {
	h.mu.Lock()
	engines := h.engines
	h.engines = make(map[hubKey]*hubEntry)
	h.mu.Unlock()

	for _, entry := range engines {
		entry.engine.Close()
	}
}

// Len returns the number of running engines.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.engines)
}
