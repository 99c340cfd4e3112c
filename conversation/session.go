package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duotalk/duotalk/llm"
	"github.com/duotalk/duotalk/llm/retry"
	"github.com/duotalk/duotalk/llm/tokenizer"
	"github.com/duotalk/duotalk/types"
)

// Agent binds a configuration, a live provider adapter and the agent's
// private view of the transcript.
type Agent struct {
	Config   types.AgentConfig
	Provider llm.Provider
	Store    *Store
}

// TurnError records which turn failed and which agent's provider call
// caused it.
type TurnError struct {
	TurnIndex int
	Agent     string
	Err       error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %d (%s): %v", e.TurnIndex, e.Agent, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// Options configures a session beyond the two agents.
type Options struct {
	Session     types.SessionConfig
	RetryPolicy *retry.Policy // nil 时使用 DefaultPolicy
	Logger      *zap.Logger
	Observer    Observer // optional, may be nil
	EventBuffer int      // 事件通道容量，默认 64
}

// Observer receives per-turn and per-request measurements.
// internal/metrics implements it for Prometheus; tests use lighter
// fakes. ProviderRequest fires once per provider call, including each
// retry attempt.
type Observer interface {
	ProviderRequest(session string, provider, model string, duration time.Duration, success bool)
	TurnCompleted(session string, agent string, attempts int, usage types.TokenUsage)
	TurnFailed(session string, agent string, attempts int)
	StateChanged(session string, from, to State)
}

// Session owns one two-agent conversation: both stores, the turn
// counter and the run state. A session runs exactly once; terminal
// states are final and a new Session is needed to run again.
type Session struct {
	id     string
	cfg    types.SessionConfig
	agents [2]*Agent

	retryer  retry.Retryer
	logger   *zap.Logger
	observer Observer

	mu        sync.RWMutex
	state     State
	turn      int
	turnErr   *TurnError
	events    chan Event
	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// NewSession validates the configuration and wires the two agents
// together. No network traffic happens here.
func NewSession(agent1, agent2 *Agent, opts Options) (*Session, error) {
	if agent1 == nil || agent2 == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "both agents are required")
	}
	if agent1.Provider == nil || agent2.Provider == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "both agents need a provider")
	}
	if err := opts.Session.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}

	for _, agent := range []*Agent{agent1, agent2} {
		if agent.Store != nil {
			continue
		}
		trim := TrimOptions{
			KeepLastMessages: opts.Session.KeepLastMessages,
			MaxContextTokens: opts.Session.MaxContextTokens,
			Tokenizer:        tokenizer.ForModel(agent.Config.Model),
		}
		agent.Store = NewStore(agent.Config.SystemPrompt, trim)
	}

	return &Session{
		id:       uuid.NewString(),
		cfg:      opts.Session,
		agents:   [2]*Agent{agent1, agent2},
		retryer:  retry.NewBackoffRetryer(opts.RetryPolicy, logger),
		logger:   logger.With(zap.String("component", "conversation")),
		observer: opts.Observer,
		state:    StateIdle,
		events:   make(chan Event, buffer),
		stop:     make(chan struct{}),
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current run state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Turns returns the number of completed turns.
func (s *Session) Turns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turn
}

// Err returns the failure attribution after a Failed run, nil
// otherwise.
func (s *Session) Err() *TurnError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnErr
}

// Transcript returns a copy of one agent's full untrimmed history.
// Valid in any state, including after Failed.
func (s *Session) Transcript(agentIdx int) ([]types.Message, error) {
	if agentIdx < 0 || agentIdx >= len(s.agents) {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("agent index out of range: %d", agentIdx))
	}
	return s.agents[agentIdx].Store.Full(), nil
}

// Stop requests cooperative cancellation. Safe to call from any
// goroutine, any number of times; a no-op once the session is
// terminal.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// transition moves the state machine, rejecting illegal moves.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	from := s.state
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return ErrInvalidTransition{From: from, To: to}
	}
	s.state = to
	s.mu.Unlock()

	s.logger.Info("session state changed",
		zap.String("session_id", s.id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.publish(Event{Type: EventStateChanged, From: from, To: to})
	if s.observer != nil {
		s.observer.StateChanged(s.id, from, to)
	}
	if to.Terminal() {
		s.closeOnce.Do(func() { close(s.events) })
	}
	return nil
}
