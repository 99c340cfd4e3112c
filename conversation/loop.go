package conversation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/duotalk/duotalk/llm"
	"github.com/duotalk/duotalk/llm/retry"
	"github.com/duotalk/duotalk/types"
)

// Run drives the conversation until it reaches a terminal state and
// returns that state. The loop is strictly sequential: one provider
// call in flight at a time, speaker alternating by turn parity.
//
// Run may be called once per session. Calling it again, or on a
// terminal session, returns ErrInvalidTransition.
func (s *Session) Run(ctx context.Context) (State, error) {
	if err := s.transition(StateRunning); err != nil {
		return s.State(), err
	}

	// MaxTurns == 0 完成一个空会话：零次 Provider 调用
	if s.cfg.MaxTurns == 0 {
		_ = s.transition(StateCompleted)
		return StateCompleted, nil
	}

	// 初始提示词作为用户消息只注入首发言者的上下文。
	// 空提示词原样注入，接不接受由 Provider 决定
	seed := types.NewUserMessage(s.cfg.InitialPrompt)
	s.agents[0].Store.Append(seed)
	s.publish(Event{Type: EventMessageAppended, Turn: 0, Agent: s.agents[0].Config.Name, Message: &seed})

	for s.Turns() < s.cfg.MaxTurns {
		// 每轮开头检查取消
		if cancelled(ctx, s.stop) {
			_ = s.transition(StateCancelled)
			return StateCancelled, nil
		}

		turn := s.Turns()
		speaker := s.agents[turn%2]
		listener := s.agents[(turn+1)%2]

		reply, attempts, err := s.takeTurn(ctx, speaker)
		if err != nil {
			// 取消不算失败
			if cancelled(ctx, s.stop) {
				_ = s.transition(StateCancelled)
				return StateCancelled, nil
			}
			turnErr := &TurnError{TurnIndex: turn, Agent: speaker.Config.Name, Err: err}
			s.mu.Lock()
			s.turnErr = turnErr
			s.mu.Unlock()
			if s.observer != nil {
				s.observer.TurnFailed(s.id, speaker.Config.Name, attempts)
			}
			s.logger.Error("turn failed",
				zap.String("session_id", s.id),
				zap.Int("turn", turn),
				zap.String("agent", speaker.Config.Name),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			_ = s.transition(StateFailed)
			return StateFailed, turnErr
		}

		// 一步完成双写：发言者记 assistant，倾听者记同内容的 user
		assistantMsg := types.NewAssistantMessage(reply.FirstContent())
		assistantMsg.Name = speaker.Config.Name
		assistantMsg.TurnIndex = turn
		userMsg := types.NewUserMessage(reply.FirstContent())
		userMsg.Name = speaker.Config.Name
		userMsg.TurnIndex = turn
		speaker.Store.Append(assistantMsg)
		listener.Store.Append(userMsg)

		s.mu.Lock()
		s.turn++
		s.mu.Unlock()

		s.publish(Event{Type: EventMessageAppended, Turn: turn, Agent: speaker.Config.Name, Message: &assistantMsg})
		if s.observer != nil {
			s.observer.TurnCompleted(s.id, speaker.Config.Name, attempts, reply.Usage)
		}
		s.logger.Debug("turn completed",
			zap.String("session_id", s.id),
			zap.Int("turn", turn),
			zap.String("agent", speaker.Config.Name),
			zap.Int("attempts", attempts),
		)

		// 回合间延迟，取消可中断
		if s.cfg.TurnDelay > 0 && s.Turns() < s.cfg.MaxTurns {
			if !sleep(ctx, s.stop, s.cfg.TurnDelay) {
				_ = s.transition(StateCancelled)
				return StateCancelled, nil
			}
		}
	}

	_ = s.transition(StateCompleted)
	return StateCompleted, nil
}

// takeTurn snapshots the speaker's context and executes one
// retry-wrapped provider call. Returns the reply and how many attempts
// were used.
func (s *Session) takeTurn(ctx context.Context, speaker *Agent) (*llm.ChatResponse, int, error) {
	attempts := 0
	req := &llm.ChatRequest{
		Model:    speaker.Config.Model,
		Messages: speaker.Store.Snapshot(),
	}

	reply, err := retry.DoWithResultTyped(s.retryer, ctx, func() (*llm.ChatResponse, error) {
		attempts++
		start := time.Now()
		resp, callErr := speaker.Provider.Completion(ctx, req)
		if s.observer != nil {
			s.observer.ProviderRequest(s.id, speaker.Provider.Name(), req.Model, time.Since(start), callErr == nil)
		}
		return resp, callErr
	})
	return reply, attempts, err
}

// cancelled reports whether the caller has requested a stop, either
// through the context or Session.Stop.
func cancelled(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// sleep waits for d and reports true, or false when the wait was
// interrupted by cancellation.
func sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
