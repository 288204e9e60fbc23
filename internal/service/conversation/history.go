package conversation

import (
	"github.com/zhouzirui/spatial-agent/backend/internal/model/conversation"
)

// DefaultCap is the number of turns retained after each completed turn.
const DefaultCap = 10

// Options tune a History.
type Options struct {
	// Cap is the maximum number of retained turns. Values below 1 fall back to DefaultCap.
	Cap int
	// PinSystem keeps the seed system turn out of eviction. When false the
	// oldest entries are dropped regardless of role, which can evict the
	// system turn once the history grows past Cap.
	PinSystem bool
}

// History is the bounded, ordered turn list owned by a single session.
// It is not safe for concurrent use; the owning session serializes access.
type History struct {
	turns     []conversation.Turn
	cap       int
	pinSystem bool
}

// NewHistory returns a history seeded with one system turn.
func NewHistory(systemPrompt string, opts Options) *History {
	if systemPrompt == "" {
		systemPrompt = conversation.DefaultSystemPrompt
	}
	limit := opts.Cap
	if limit < 1 {
		limit = DefaultCap
	}

	turns := make([]conversation.Turn, 0, limit+2)
	turns = append(turns, conversation.SystemTurn(systemPrompt))

	return &History{
		turns:     turns,
		cap:       limit,
		pinSystem: opts.PinSystem,
	}
}

// AppendUser records the transcribed user utterance.
func (h *History) AppendUser(text string) {
	h.turns = append(h.turns, conversation.UserTurn(text))
}

// AppendAssistant records the reply that will be spoken back.
func (h *History) AppendAssistant(text string) {
	h.turns = append(h.turns, conversation.AssistantTurn(text))
}

// Snapshot returns a copy of the turns in order.
func (h *History) Snapshot() []conversation.Turn {
	out := make([]conversation.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len reports the number of retained turns.
func (h *History) Len() int {
	return len(h.turns)
}

// Cap reports the configured maximum length.
func (h *History) Cap() int {
	return h.cap
}

// EnforceCap drops the oldest entries until at most Cap remain. It returns the
// number of evicted turns.
func (h *History) EnforceCap() int {
	excess := len(h.turns) - h.cap
	if excess <= 0 {
		return 0
	}

	if h.pinSystem && len(h.turns) > 0 && h.turns[0].Role == conversation.RoleSystem {
		kept := make([]conversation.Turn, 0, h.cap+2)
		kept = append(kept, h.turns[0])
		kept = append(kept, h.turns[1+excess:]...)
		h.turns = kept
		return excess
	}

	kept := make([]conversation.Turn, h.cap, h.cap+2)
	copy(kept, h.turns[excess:])
	h.turns = kept
	return excess
}

// Clone returns an independent copy, so a turn can work on a private history
// and the session only commits it once the turn completes.
func (h *History) Clone() *History {
	turns := make([]conversation.Turn, len(h.turns), cap(h.turns))
	copy(turns, h.turns)
	return &History{
		turns:     turns,
		cap:       h.cap,
		pinSystem: h.pinSystem,
	}
}
