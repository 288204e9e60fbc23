package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/service/conversation"
)

var ErrSessionNotFound = errors.New("session not found")

// Registry tracks live sessions in memory.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	systemPrompt string
	historyOpts  conversation.Options
	log          *zap.Logger
}

// NewRegistry creates an empty registry. Every new session's history is
// seeded with systemPrompt and bounded by opts.
func NewRegistry(systemPrompt string, opts conversation.Options, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		sessions:     make(map[string]*Session),
		systemPrompt: systemPrompt,
		historyOpts:  opts,
		log:          log.Named("session"),
	}
}

// Create opens a new session bound to conn. The session context derives from parent.
func (r *Registry) Create(parent context.Context, conn io.Closer) *Session {
	s := newSession(parent, uuid.NewString(), conversation.NewHistory(r.systemPrompt, r.historyOpts), conn)

	r.mu.Lock()
	r.sessions[s.ID] = s
	total := len(r.sessions)
	r.mu.Unlock()

	r.log.Info("session opened", zap.String("session_id", s.ID), zap.Int("active", total))
	return s
}

// Get looks a session up by ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove forgets a session. It does not close it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	total := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.log.Info("session removed", zap.String("session_id", id), zap.Int("active", total))
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll starts closing every session. Each receive loop then finishes
// its own session and removes it.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	open := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	r.mu.RUnlock()

	for _, s := range open {
		s.BeginClose()
	}
	r.log.Info("closing sessions", zap.Int("count", len(open)))
}
