package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/modelrelay/internal/message"
)

func TestMachine_HappyPath(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, StateIdle, m.State())

	events := []Event{
		{Type: EventMessageStart, MessageID: "msg_1"},
		{Type: EventBlockStart, Index: 0, Kind: message.KindThinking},
		{Type: EventBlockDelta, Index: 0, Kind: message.KindThinking, Text: "hmm"},
		{Type: EventBlockDelta, Index: 0, Kind: message.KindThinking, Signature: message.Signature("sig")},
		{Type: EventBlockStop, Index: 0, Kind: message.KindThinking},
		{Type: EventBlockStart, Index: 1, Kind: message.KindText},
		{Type: EventBlockDelta, Index: 1, Kind: message.KindText, Text: "answer"},
		{Type: EventBlockStop, Index: 1, Kind: message.KindText},
		{Type: EventMessageStop, StopReason: message.StopEndTurn},
	}

	for _, ev := range events {
		require.NoError(t, m.Apply(ev), "event %s", ev.Type)
	}

	assert.Equal(t, StateDone, m.State())
}

func TestMachine_BlockSubStates(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Apply(Event{Type: EventMessageStart}))

	require.NoError(t, m.Apply(Event{Type: EventBlockStart, Index: 0, Kind: message.KindToolUse}))
	assert.Equal(t, StateToolUseActive, m.State())

	require.NoError(t, m.Apply(Event{Type: EventBlockStop, Index: 0}))
	assert.Equal(t, StateStreaming, m.State())
}

func TestMachine_RejectsOutOfOrderEvents(t *testing.T) {
	// Delta before any message_start
	m := NewMachine()
	err := m.Apply(Event{Type: EventBlockDelta, Index: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message_start")

	// Delta with no open block
	m = NewMachine()
	require.NoError(t, m.Apply(Event{Type: EventMessageStart}))
	require.Error(t, m.Apply(Event{Type: EventBlockDelta, Index: 0}))

	// Delta for the wrong index
	m = NewMachine()
	require.NoError(t, m.Apply(Event{Type: EventMessageStart}))
	require.NoError(t, m.Apply(Event{Type: EventBlockStart, Index: 0, Kind: message.KindText}))
	require.Error(t, m.Apply(Event{Type: EventBlockDelta, Index: 1}))

	// Nested block start
	m = NewMachine()
	require.NoError(t, m.Apply(Event{Type: EventMessageStart}))
	require.NoError(t, m.Apply(Event{Type: EventBlockStart, Index: 0, Kind: message.KindText}))
	require.Error(t, m.Apply(Event{Type: EventBlockStart, Index: 1, Kind: message.KindText}))

	// message_stop with a block still open
	m = NewMachine()
	require.NoError(t, m.Apply(Event{Type: EventMessageStart}))
	require.NoError(t, m.Apply(Event{Type: EventBlockStart, Index: 0, Kind: message.KindText}))
	require.Error(t, m.Apply(Event{Type: EventMessageStop}))
}

func TestMachine_ErrorFromAnyNonTerminalState(t *testing.T) {
	errEvent := Event{Type: EventError, Err: assert.AnError}

	// From idle
	m := NewMachine()
	require.NoError(t, m.Apply(errEvent))
	assert.Equal(t, StateError, m.State())

	// From streaming
	m = NewMachine()
	require.NoError(t, m.Apply(Event{Type: EventMessageStart}))
	require.NoError(t, m.Apply(errEvent))
	assert.Equal(t, StateError, m.State())

	// Mid-block
	m = NewMachine()
	require.NoError(t, m.Apply(Event{Type: EventMessageStart}))
	require.NoError(t, m.Apply(Event{Type: EventBlockStart, Index: 0, Kind: message.KindThinking}))
	require.NoError(t, m.Apply(errEvent))
	assert.Equal(t, StateError, m.State())

	// Not after the stream already completed
	m = NewMachine()
	require.NoError(t, m.Apply(Event{Type: EventMessageStart}))
	require.NoError(t, m.Apply(Event{Type: EventMessageStop}))
	require.Error(t, m.Apply(errEvent))
}

func TestMachine_NoEventsAfterTerminal(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Apply(Event{Type: EventMessageStart}))
	require.NoError(t, m.Apply(Event{Type: EventMessageStop}))

	require.Error(t, m.Apply(Event{Type: EventMessageStart}))
	require.Error(t, m.Apply(Event{Type: EventBlockStart, Index: 0, Kind: message.KindText}))
}
