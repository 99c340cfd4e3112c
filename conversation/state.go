package conversation

import "fmt"

// State 定义会话生命周期状态
type State string

const (
	StateIdle      State = "idle"      // Created, not started
	StateRunning   State = "running"   // Turn loop executing
	StateCompleted State = "completed" // Reached the configured turn count
	StateCancelled State = "cancelled" // Stopped by the caller
	StateFailed    State = "failed"    // A turn failed after retries
)

// Terminal 报告状态是否为终态。终态之后会话不可重启。
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// validTransitions 定义合法的状态转换
var validTransitions = map[State][]State{
	StateIdle:    {StateRunning, StateCancelled},
	StateRunning: {StateCompleted, StateCancelled, StateFailed},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}
