package assistant

import (
	"sync"

	"github.com/voxmachina/jarvis/internal/llm"
)

// Message roles as the model API spells them.
const (
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
	roleTool      = "tool"
)

// Session holds one conversation's message history. History is
// append-only; Clear drops everything except system messages. A
// session processes one turn at a time: the turn mutex is held for the
// whole of Process/ProcessStream, so a second submission waits rather
// than interleaving.
type Session struct {
	turn sync.Mutex // serializes whole turns

	mu      sync.Mutex // guards history
	history []llm.Message
}

func newSession(systemPrompt string) *Session {
	s := &Session{}
	if systemPrompt != "" {
		s.history = append(s.history, llm.Message{Role: roleSystem, Content: systemPrompt})
	}
	return s
}

func (s *Session) append(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
}

// snapshot returns a copy of the history safe to hand to the model
// client, plus the current length for truncate.
func (s *Session) snapshot() ([]llm.Message, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out, len(s.history)
}

// truncate rolls the history back to n messages. Used to unwind a turn
// when a transport failure means none of it should persist.
func (s *Session) truncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < len(s.history) {
		s.history = s.history[:n]
	}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []llm.Message {
	out, _ := s.snapshot()
	return out
}

// Len returns the number of messages in the conversation.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Clear drops the conversation, keeping only system messages.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.history[:0]
	for _, m := range s.history {
		if m.Role == roleSystem {
			kept = append(kept, m)
		}
	}
	s.history = kept
}
