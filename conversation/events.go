package conversation

import (
	"time"

	"github.com/duotalk/duotalk/types"
)

// EventType 事件类型
type EventType string

const (
	EventMessageAppended EventType = "message_appended"
	EventStateChanged    EventType = "state_changed"
)

// Event is one observation from a running session. MessageAppended
// events carry the speaker and the message; StateChanged events carry
// the transition.
type Event struct {
	Type EventType
	Time time.Time

	// MessageAppended fields.
	Turn    int
	Agent   string
	Message *types.Message

	// StateChanged fields.
	From State
	To   State
}

// publish 发布事件。通道满了就丢弃，绝不阻塞回合循环。
func (s *Session) publish(evt Event) {
	evt.Time = time.Now()
	select {
	case s.events <- evt:
	default:
	}
}

// Events returns the session's event stream. The channel is buffered
// and closed when the session reaches a terminal state. Slow consumers
// lose events rather than stalling the loop.
func (s *Session) Events() <-chan Event {
	return s.events
}
