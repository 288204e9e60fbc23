package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/zhouzirui/spatial-agent/backend/internal/service/conversation"
)

// ErrClosed is returned by Deliver once the session has left the Open state.
var ErrClosed = errors.New("session is not open")

// State is the lifecycle state of a Session.
type State string

const (
	StateOpen    State = "open"
	StateClosing State = "closing"
	StateClosed  State = "closed"
)

// Session is the per-connection conversation. It is owned by one connection.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	state   State
	history *conversation.History

	ctx    context.Context
	cancel context.CancelFunc
	conn   io.Closer
}

func newSession(parent context.Context, id string, history *conversation.History, conn io.Closer) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		state:     StateOpen,
		history:   history,
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
	}
}

// Context is cancelled as soon as the session starts closing.
func (s *Session) Context() context.Context {
	return s.ctx
}

// State reports the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns the committed conversation. Callers must not modify it;
// a turn works on a clone and hands the result back through Commit.
func (s *Session) History() *conversation.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history
}

// Commit replaces the committed history. It is ignored once the session is not Open.
func (s *Session) Commit(h *conversation.History) bool {
	if h == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return false
	}
	s.history = h
	return true
}

// Deliver runs write while the session is Open. Close waits for an
// in-progress Deliver, so no write happens after the session leaves Open.
func (s *Session) Deliver(write func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return ErrClosed
	}
	return write()
}

// BeginClose moves an Open session to Closing, cancels in-flight work and
// closes the underlying connection. It reports whether it made the move.
func (s *Session) BeginClose() bool {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosing
	s.mu.Unlock()

	s.cancel()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	return true
}

// Close finishes the session. Only the connection's receive loop calls it.
func (s *Session) Close() {
	s.BeginClose()

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}
