package stream

import (
	"fmt"

	"github.com/Davincible/modelrelay/internal/message"
)

// State of one translated stream.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateTextActive
	StateThinkingActive
	StateToolUseActive
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateTextActive:
		return "text_active"
	case StateThinkingActive:
		return "thinking_active"
	case StateToolUseActive:
		return "tool_use_active"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Machine validates the event ordering of a single stream. Each block start
// selects a sub-state until its matching stop; an error event is accepted
// from any non-terminal state.
type Machine struct {
	state       State
	activeIndex int
}

// NewMachine returns a machine in the idle state.
func NewMachine() *Machine {
	return &Machine{state: StateIdle, activeIndex: -1}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Apply advances the machine by one event, rejecting transitions the
// normalized protocol does not allow.
func (m *Machine) Apply(ev Event) error {
	if ev.Type == EventError {
		if m.state == StateDone {
			return fmt.Errorf("error event after message_stop")
		}

		m.state = StateError

		return nil
	}

	switch m.state {
	case StateIdle:
		if ev.Type != EventMessageStart {
			return fmt.Errorf("stream must open with message_start, got %s", ev.Type)
		}

		m.state = StateStreaming

	case StateStreaming:
		switch ev.Type {
		case EventBlockStart:
			next, err := blockState(ev.Kind)
			if err != nil {
				return err
			}

			m.state = next
			m.activeIndex = ev.Index
		case EventMessageStop:
			m.state = StateDone
		default:
			return fmt.Errorf("unexpected %s while streaming", ev.Type)
		}

	case StateTextActive, StateThinkingActive, StateToolUseActive:
		switch ev.Type {
		case EventBlockDelta:
			if ev.Index != m.activeIndex {
				return fmt.Errorf("delta for block %d while block %d is active", ev.Index, m.activeIndex)
			}
		case EventBlockStop:
			if ev.Index != m.activeIndex {
				return fmt.Errorf("stop for block %d while block %d is active", ev.Index, m.activeIndex)
			}

			m.state = StateStreaming
			m.activeIndex = -1
		default:
			return fmt.Errorf("unexpected %s inside a content block", ev.Type)
		}

	case StateDone, StateError:
		return fmt.Errorf("event %s after stream terminated in state %s", ev.Type, m.state)
	}

	return nil
}

func blockState(kind message.BlockKind) (State, error) {
	switch kind {
	case message.KindText:
		return StateTextActive, nil
	case message.KindThinking:
		return StateThinkingActive, nil
	case message.KindToolUse:
		return StateToolUseActive, nil
	default:
		return StateError, fmt.Errorf("block start with unknown kind %q", kind)
	}
}
