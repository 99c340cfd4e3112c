package conversation

import (
	"sync"

	"github.com/duotalk/duotalk/types"
)

// TrimOptions controls how much history an agent carries into each
// request. Zero values mean unlimited. Trimming happens at snapshot
// time; the store itself always keeps the full transcript.
type TrimOptions struct {
	// KeepLastMessages keeps only the most recent N non-system
	// messages in the view sent to the provider.
	KeepLastMessages int

	// MaxContextTokens drops the oldest non-system messages until the
	// estimated token count fits. Requires a tokenizer.
	MaxContextTokens int

	// Tokenizer used for MaxContextTokens. Defaults to the estimate
	// tokenizer when nil.
	Tokenizer types.Tokenizer
}

// Store holds one agent's view of the conversation. Each agent has its
// own store: the same exchange appears as an assistant message in the
// speaker's store and as a user message in the listener's store.
//
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	system   *types.Message
	messages []types.Message
	trim     TrimOptions
}

// NewStore creates a store. A non-empty systemPrompt is pinned as the
// first message and survives all trimming.
func NewStore(systemPrompt string, trim TrimOptions) *Store {
	s := &Store{trim: trim}
	if systemPrompt != "" {
		msg := types.NewSystemMessage(systemPrompt)
		s.system = &msg
	}
	if s.trim.Tokenizer == nil {
		s.trim.Tokenizer = types.NewEstimateTokenizer()
	}
	return s
}

// Append adds a message to the transcript.
func (s *Store) Append(msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Len returns the number of appended messages, excluding the pinned
// system prompt.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Clear drops the transcript but keeps the system prompt.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Snapshot returns a copy of the transcript ready to send to a
// provider: system prompt first, then the (possibly trimmed) history.
// The returned slice is owned by the caller.
func (s *Store) Snapshot() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.applyTrim(s.messages)

	out := make([]types.Message, 0, len(history)+1)
	if s.system != nil {
		out = append(out, *s.system)
	}
	out = append(out, history...)
	return out
}

// Full returns a copy of the entire untrimmed transcript, system
// prompt included. Used for final transcript output.
func (s *Store) Full() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Message, 0, len(s.messages)+1)
	if s.system != nil {
		out = append(out, *s.system)
	}
	out = append(out, s.messages...)
	return out
}

// applyTrim returns the slice of history that fits the trim options.
// Caller holds at least the read lock. The system prompt is not part
// of the input and is never dropped.
func (s *Store) applyTrim(history []types.Message) []types.Message {
	if s.trim.KeepLastMessages > 0 && len(history) > s.trim.KeepLastMessages {
		history = history[len(history)-s.trim.KeepLastMessages:]
	}

	if s.trim.MaxContextTokens > 0 {
		budget := s.trim.MaxContextTokens
		if s.system != nil {
			budget -= s.trim.Tokenizer.CountMessageTokens(*s.system)
		}
		// Walk backwards keeping the newest messages that fit.
		start := len(history)
		for i := len(history) - 1; i >= 0; i-- {
			used := s.trim.Tokenizer.CountMessageTokens(history[i])
			if budget-used < 0 {
				break
			}
			budget -= used
			start = i
		}
		history = history[start:]
	}

	return history
}
